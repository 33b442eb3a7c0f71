// Package session owns the lifecycle of one administrative SSH connection
// to a firewall device. The device speaks a line-oriented command protocol:
// one command per round trip, raw text back. The manager keeps no memory of
// prior commands; every state change lives on the device.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"grimm.is/icebox/internal/logging"
)

var (
	// ErrConnectTimeout is returned when the transport cannot be
	// established within the connect timeout.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrAuthFailed is returned when the device rejects the credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrHostUnreachable is returned on network-level connection failure.
	ErrHostUnreachable = errors.New("host unreachable")

	// ErrCommandTimeout is returned when the device does not reply within
	// the command timeout.
	ErrCommandTimeout = errors.New("command timeout")

	// ErrSessionClosed is returned when a command is issued on a session
	// that was already torn down.
	ErrSessionClosed = errors.New("session closed")
)

// Config describes how to reach and authenticate to the device.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// ConnectTimeout bounds transport establishment. Zero means 15s.
	ConnectTimeout time.Duration
	// CommandTimeout bounds each command round trip. Zero means 30s.
	CommandTimeout time.Duration

	// Classifier decides whether a raw device reply means success.
	// Nil means DefaultClassifier().
	Classifier Classifier

	// HostKeyCallback overrides host key verification. Nil accepts any
	// key; these devices are reached over the management network and
	// rarely have distributable host keys.
	HostKeyCallback ssh.HostKeyCallback
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Conn is one authenticated session. It owns its transport exclusively and
// is never shared across invocations.
type Conn interface {
	// Exec sends one command line and returns the classified reply.
	Exec(ctx context.Context, line string) (CommandResult, error)
	// Close releases the connection. Idempotent.
	Close() error
}

// Dialer establishes device sessions. The quarantine engine depends on this
// interface so tests can substitute a fake device.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Conn, error)
}

// SSHDialer dials real devices over SSH with password authentication.
type SSHDialer struct {
	Logger *logging.Logger
}

// Dial opens the transport and authenticates. Failures are classified as
// ErrConnectTimeout, ErrAuthFailed or ErrHostUnreachable.
func (d *SSHDialer) Dial(ctx context.Context, cfg Config) (Conn, error) {
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	hostKey := cfg.HostKeyCallback
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey()
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	logger := d.Logger
	if logger == nil {
		logger = logging.Default().WithComponent("session")
	}

	client, err := ssh.Dial("tcp", cfg.addr(), clientCfg)
	if err != nil {
		return nil, classifyDialError(err)
	}

	logger.Debug("session opened", "addr", cfg.addr(), "user", cfg.Username)

	classifier := cfg.Classifier
	if classifier == nil {
		classifier = DefaultClassifier()
	}

	cmdTimeout := cfg.CommandTimeout
	if cmdTimeout == 0 {
		cmdTimeout = 30 * time.Second
	}

	return &sshConn{
		client:     client,
		classifier: classifier,
		timeout:    cmdTimeout,
		logger:     logger,
	}, nil
}

// classifyDialError maps transport and handshake errors onto the session
// error taxonomy.
func classifyDialError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "permission denied") {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	}
	if strings.Contains(msg, "i/o timeout") {
		return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrHostUnreachable, err)
}

type sshConn struct {
	client     *ssh.Client
	classifier Classifier
	timeout    time.Duration
	logger     *logging.Logger

	mu     sync.Mutex
	closed bool
}

type execOutcome struct {
	out []byte
	err error
}

// Exec runs one command on a fresh exec channel and waits for the device's
// synchronous reply.
func (c *sshConn) Exec(ctx context.Context, line string) (CommandResult, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return CommandResult{}, ErrSessionClosed
	}
	client := c.client
	c.mu.Unlock()

	sess, err := client.NewSession()
	if err != nil {
		return CommandResult{}, fmt.Errorf("%w: %v", ErrSessionClosed, err)
	}
	defer sess.Close()

	ch := make(chan execOutcome, 1)
	go func() {
		out, err := sess.CombinedOutput(line)
		ch <- execOutcome{out: out, err: err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case outcome := <-ch:
		raw := string(outcome.out)
		// A non-zero remote exit status still carries the device's
		// reply; the classifier decides what it means.
		var exitErr *ssh.ExitError
		if outcome.err != nil && !errors.As(outcome.err, &exitErr) {
			return CommandResult{Raw: raw}, fmt.Errorf("command %q failed: %w", line, outcome.err)
		}
		result := c.classifier.Classify(line, raw)
		c.logger.Debug("command executed", "command", line, "ok", result.OK)
		return result, nil
	case <-timer.C:
		sess.Close()
		return CommandResult{}, fmt.Errorf("%w: %q", ErrCommandTimeout, line)
	case <-ctx.Done():
		sess.Close()
		return CommandResult{}, ctx.Err()
	}
}

// Close tears down the transport. Safe to call more than once.
func (c *sshConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}
