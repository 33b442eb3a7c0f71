package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/icebox/internal/audit"
	"grimm.is/icebox/internal/config"
	"grimm.is/icebox/internal/logging"
	"grimm.is/icebox/internal/quarantine"
	"grimm.is/icebox/internal/session"
)

// ErrUsage marks argument errors that should print usage help.
var ErrUsage = errors.New("usage error")

// RunShun drives one full quarantine: resolve the instance, block the
// offending address on its firewall, hold for the configured interval,
// unblock, and print the device transcript to stdout.
//
// An interrupt during the hold aborts the run and leaves the shun applied
// on the device.
func RunShun(configFile, instanceName, address string, verbose bool) error {
	logger := logging.Default().WithComponent("shun")
	if verbose {
		logging.Default().SetLevel(logging.LevelDebug)
	}

	addr, err := netip.ParseAddr(address)
	if err != nil {
		// Hostnames are deliberately not resolved; the policy engine
		// supplies literals.
		return fmt.Errorf("%w: offending address %q is not an IP literal", ErrUsage, address)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	inst, err := cfg.Lookup(instanceName)
	if err != nil {
		return err
	}

	opts := quarantine.Options{Logger: logger}
	if cfg.Audit != nil {
		path := cfg.Audit.Path
		if path == "" {
			path = audit.DefaultPath
		}
		store, err := audit.NewStore(path, cfg.Audit.RetentionDays)
		if err != nil {
			// History is best-effort; the remediation itself matters more.
			logger.Warn("quarantine history unavailable", "error", err)
		} else {
			defer store.Close()
			opts.Audit = store
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := quarantine.New(&session.SSHDialer{Logger: logger}, opts)
	rec, err := engine.Remediate(ctx, inst, addr)

	// The raw device dialogue is the primary debugging aid; print it even
	// when the run failed.
	if rec != nil && rec.Transcript != "" {
		fmt.Print(rec.Transcript)
	}
	if err != nil {
		return err
	}

	logger.Info("quarantine complete", "instance", inst.Name, "address", addr.String())
	return nil
}

// ExitCode maps a command error onto the process exit status. Distinct
// codes separate "never blocked" from "blocked and not removed", which
// callers treat very differently.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, quarantine.ErrUnblockFailed):
		return 4
	case errors.Is(err, quarantine.ErrBlockFailed):
		return 3
	case errors.Is(err, session.ErrAuthFailed),
		errors.Is(err, session.ErrConnectTimeout),
		errors.Is(err, session.ErrHostUnreachable),
		errors.Is(err, session.ErrCommandTimeout),
		errors.Is(err, session.ErrSessionClosed):
		return 2
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 5
	default:
		return 1
	}
}
