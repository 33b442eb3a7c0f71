// Package quarantine sequences a timed network block on a firewall device:
// apply the shun, hold it for the configured interval, then remove it. The
// sequence is strictly ordered and single-pass. Device commands are never
// retried; the protocol gives no idempotency signal for a repeated shun, so
// a blind retry could mask a real failure.
package quarantine

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"

	"grimm.is/icebox/internal/clock"
	"grimm.is/icebox/internal/config"
	"grimm.is/icebox/internal/logging"
	"grimm.is/icebox/internal/metrics"
	"grimm.is/icebox/internal/session"
)

var (
	// ErrBlockFailed is returned when the shun command is rejected or
	// lost. The address was never blocked.
	ErrBlockFailed = errors.New("block command failed")

	// ErrUnblockFailed is returned when the removal command fails after a
	// successful block. This is the worse failure class: the address is
	// still blocked on the device and needs operator attention.
	ErrUnblockFailed = errors.New("block applied but not removed")
)

// Record is the in-memory trace of one remediation run. It lives only for
// the invocation; a crash mid-hold leaves the shun on the device with no
// automatic cleanup.
type Record struct {
	ID       string
	Instance string
	Address  netip.Addr

	AppliedAt time.Time
	RemovedAt time.Time

	State State
	// Path is every state visited, in order.
	Path []State
	// Blocked is true while the address is shunned on the device as far
	// as this run knows.
	Blocked bool

	// Transcript is the concatenated raw dialogue with the device,
	// preserved on every terminal state.
	Transcript string

	Err error
}

// Sink receives finished records, e.g. for the audit history database.
type Sink interface {
	RecordAction(ctx context.Context, rec *Record) error
}

// Options are optional engine collaborators.
type Options struct {
	Clock   clock.Clock
	Logger  *logging.Logger
	Metrics *metrics.Registry
	Audit   Sink

	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// Engine drives the quarantine state machine over a session.Dialer.
type Engine struct {
	dialer  session.Dialer
	clk     clock.Clock
	logger  *logging.Logger
	metrics *metrics.Registry
	audit   Sink

	connectTimeout time.Duration
	commandTimeout time.Duration
}

// New creates an engine. Only the dialer is required.
func New(dialer session.Dialer, opts Options) *Engine {
	e := &Engine{
		dialer:         dialer,
		clk:            opts.Clock,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		audit:          opts.Audit,
		connectTimeout: opts.ConnectTimeout,
		commandTimeout: opts.CommandTimeout,
	}
	if e.clk == nil {
		e.clk = clock.RealClock{}
	}
	if e.logger == nil {
		e.logger = logging.Default().WithComponent("quarantine")
	}
	if e.metrics == nil {
		e.metrics = metrics.Get()
	}
	return e
}

// Remediate runs the full sequence against the instance's device: open a
// session, shun the address, hold for the instance's quarantine interval,
// remove the shun, close the session. The session is closed exactly once on
// every path, and the returned record carries the transcript even when the
// run fails.
//
// Cancelling ctx during the hold aborts the run and leaves the shun applied
// on the device; there is no automatic rollback on interrupt.
func (e *Engine) Remediate(ctx context.Context, inst *config.Instance, addr netip.Addr) (*Record, error) {
	rec := &Record{
		ID:       uuid.NewString(),
		Instance: inst.Name,
		Address:  addr,
		State:    StateIdle,
		Path:     []State{StateIdle},
	}

	var transcript strings.Builder
	logger := e.logger.WithFields(map[string]any{
		"run":      rec.ID,
		"instance": inst.Name,
		"address":  addr.String(),
	})

	e.transition(rec, logger, StateConnecting)
	conn, err := e.dialer.Dial(ctx, session.Config{
		Host:           inst.FirewallIP,
		Port:           inst.FirewallPort,
		Username:       inst.FirewallUsername,
		Password:       inst.FirewallPassword,
		ConnectTimeout: e.connectTimeout,
		CommandTimeout: e.commandTimeout,
	})
	if err != nil {
		// No session was created, so there is nothing to close and no
		// block to undo.
		return e.fail(ctx, rec, logger, &transcript, fmt.Errorf("open session to %s: %w", inst.FirewallIP, err))
	}

	closed := false
	closeSession := func() {
		if closed {
			return
		}
		closed = true
		if cerr := conn.Close(); cerr != nil {
			// A close failure never overrides the terminal state.
			logger.Warn("failed to close session", "error", cerr)
		}
	}
	defer closeSession()

	e.transition(rec, logger, StateBlocking)
	blockCmd := "shun " + addr.String()
	res, err := e.execute(ctx, conn, &transcript, blockCmd)
	if err != nil {
		closeSession()
		return e.fail(ctx, rec, logger, &transcript, fmt.Errorf("%w: %v", ErrBlockFailed, err))
	}
	if !res.OK {
		closeSession()
		return e.fail(ctx, rec, logger, &transcript, fmt.Errorf("%w: device replied %q", ErrBlockFailed, strings.TrimSpace(res.Raw)))
	}

	// The hold is measured from the observed success of the block command,
	// not from invocation start, so slow authentication cannot shorten the
	// effective quarantine.
	rec.AppliedAt = e.clk.Now()
	rec.Blocked = true
	e.transition(rec, logger, StateHolding)
	logger.Info("shun applied, holding", "quarantine_seconds", inst.QuarantineTime)

	timer := e.clk.NewTimer(inst.QuarantineDuration())
	defer timer.Stop()
	if err := timer.Wait(ctx); err != nil {
		closeSession()
		return e.fail(ctx, rec, logger, &transcript,
			fmt.Errorf("hold interrupted, %s remains blocked on the device: %w", addr, err))
	}

	// The removal is issued unconditionally after the hold. The device
	// treats removal of an absent shun as a no-op, so there is no
	// verification round trip before it.
	e.transition(rec, logger, StateUnblocking)
	unblockCmd := "no shun " + addr.String()
	res, err = e.execute(ctx, conn, &transcript, unblockCmd)
	if err != nil {
		closeSession()
		return e.fail(ctx, rec, logger, &transcript, fmt.Errorf("%w: %v", ErrUnblockFailed, err))
	}
	if !res.OK {
		closeSession()
		return e.fail(ctx, rec, logger, &transcript, fmt.Errorf("%w: device replied %q", ErrUnblockFailed, strings.TrimSpace(res.Raw)))
	}

	rec.Blocked = false
	rec.RemovedAt = e.clk.Now()
	closeSession()

	e.transition(rec, logger, StateDone)
	rec.Transcript = transcript.String()
	e.metrics.QuarantinesTotal.WithLabelValues(rec.Instance, "done").Inc()
	e.metrics.HoldSeconds.Observe(rec.RemovedAt.Sub(rec.AppliedAt).Seconds())
	logger.Info("shun removed, quarantine complete",
		"held", rec.RemovedAt.Sub(rec.AppliedAt).String())

	e.record(ctx, rec, logger)
	return rec, nil
}

// execute sends one command and appends the exchange to the transcript.
func (e *Engine) execute(ctx context.Context, conn session.Conn, transcript *strings.Builder, line string) (session.CommandResult, error) {
	transcript.WriteString("> " + line + "\n")
	res, err := conn.Exec(ctx, line)
	if res.Raw != "" {
		transcript.WriteString(strings.TrimRight(res.Raw, "\n") + "\n")
	}

	verdict := "ok"
	if err != nil || !res.OK {
		verdict = "rejected"
	}
	e.metrics.CommandsTotal.WithLabelValues(commandName(line), verdict).Inc()
	return res, err
}

func (e *Engine) transition(rec *Record, logger *logging.Logger, next State) {
	logger.Debug("state transition", "from", rec.State.String(), "to", next.String())
	rec.State = next
	rec.Path = append(rec.Path, next)
}

// fail moves the record to Errored and reports the terminal outcome.
func (e *Engine) fail(ctx context.Context, rec *Record, logger *logging.Logger, transcript *strings.Builder, err error) (*Record, error) {
	rec.State = StateErrored
	rec.Path = append(rec.Path, StateErrored)
	rec.Err = err
	rec.Transcript = transcript.String()

	e.metrics.QuarantinesTotal.WithLabelValues(rec.Instance, Outcome(err)).Inc()
	logger.Error("remediation failed", "outcome", Outcome(err), "error", err)

	e.record(ctx, rec, logger)
	return rec, err
}

func (e *Engine) record(ctx context.Context, rec *Record, logger *logging.Logger) {
	if e.audit == nil {
		return
	}
	// The history write must survive the interrupt that ended the run.
	if err := e.audit.RecordAction(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("failed to record quarantine history", "error", err)
	}
}

// Outcome maps a terminal error onto a short label used for metrics and
// the audit history. A nil error is "done".
func Outcome(err error) string {
	switch {
	case err == nil:
		return "done"
	case errors.Is(err, ErrUnblockFailed):
		return "unblock_failed"
	case errors.Is(err, ErrBlockFailed):
		return "block_failed"
	case errors.Is(err, session.ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, session.ErrConnectTimeout), errors.Is(err, session.ErrHostUnreachable):
		return "connect_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "interrupted"
	default:
		return "error"
	}
}

func commandName(line string) string {
	if strings.HasPrefix(line, "no ") {
		return "no " + commandName(line[3:])
	}
	if i := strings.IndexByte(line, ' '); i > 0 {
		return line[:i]
	}
	return line
}
