package session

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyDialError_AuthFailure(t *testing.T) {
	err := errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain")

	classified := classifyDialError(err)
	assert.ErrorIs(t, classified, ErrAuthFailed)
}

func TestClassifyDialError_Timeout(t *testing.T) {
	var netErr net.Error = timeoutErr{}

	classified := classifyDialError(netErr)
	assert.ErrorIs(t, classified, ErrConnectTimeout)
}

func TestClassifyDialError_Unreachable(t *testing.T) {
	err := errors.New("dial tcp 192.0.2.1:22: connect: no route to host")

	classified := classifyDialError(err)
	assert.ErrorIs(t, classified, ErrHostUnreachable)
}

func TestClassifyDialError_RefusedIsUnreachable(t *testing.T) {
	err := errors.New("dial tcp 192.0.2.1:22: connect: connection refused")

	classified := classifyDialError(err)
	assert.ErrorIs(t, classified, ErrHostUnreachable)
}

func TestConfigAddr_DefaultsPort(t *testing.T) {
	cfg := Config{Host: "192.168.1.15"}
	assert.Equal(t, "192.168.1.15:22", cfg.addr())

	cfg.Port = 2222
	assert.Equal(t, "192.168.1.15:2222", cfg.addr())
}

func TestConfigAddr_IPv6(t *testing.T) {
	cfg := Config{Host: "2001:db8::1", Port: 22}
	assert.Equal(t, "[2001:db8::1]:22", cfg.addr())
}

func TestSSHDialer_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network dial in short mode")
	}

	d := &SSHDialer{}
	cfg := Config{
		// RFC 5737 TEST-NET-1, guaranteed unroutable.
		Host:           "192.0.2.1",
		Port:           22,
		Username:       "admin",
		Password:       "x",
		ConnectTimeout: 500 * time.Millisecond,
	}

	_, err := d.Dial(t.Context(), cfg)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	ok := errors.Is(err, ErrConnectTimeout) || errors.Is(err, ErrHostUnreachable)
	assert.True(t, ok, "got %v", err)
}
