package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"grimm.is/icebox/internal/audit"
	"grimm.is/icebox/internal/config"
)

// RunHistory prints recent quarantine runs from the history database.
func RunHistory(configFile string, limit int) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	path := audit.DefaultPath
	retention := 0
	if cfg.Audit != nil {
		if cfg.Audit.Path != "" {
			path = cfg.Audit.Path
		}
		retention = cfg.Audit.RetentionDays
	}

	store, err := audit.NewStore(path, retention)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.Prune(); err != nil {
		return err
	}

	entries, err := store.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No quarantine history.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "APPLIED\tINSTANCE\tADDRESS\tHELD\tOUTCOME")
	for _, e := range entries {
		applied := "-"
		if !e.AppliedAt.IsZero() {
			applied = e.AppliedAt.Local().Format(time.DateTime)
		}
		held := "-"
		if !e.AppliedAt.IsZero() && !e.RemovedAt.IsZero() {
			held = e.RemovedAt.Sub(e.AppliedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", applied, e.Instance, e.Address, held, e.Outcome)
	}
	return w.Flush()
}
