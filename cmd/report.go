package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/icebox/internal/config"
	"grimm.is/icebox/internal/logging"
	"grimm.is/icebox/internal/report"
)

// RunReport exports activity events in [from, to) to a CSV file. Dates are
// accepted as YYYY-MM-DD (whole days, local time) or RFC3339 instants.
func RunReport(configFile, fromArg, toArg, outFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if cfg.Report == nil {
		return fmt.Errorf("%w: no report block in %s", ErrUsage, configFile)
	}

	from, err := parseTimeArg(fromArg)
	if err != nil {
		return fmt.Errorf("%w: -from: %v", ErrUsage, err)
	}
	to, err := parseTimeArg(toArg)
	if err != nil {
		return fmt.Errorf("%w: -to: %v", ErrUsage, err)
	}
	if !to.After(from) {
		return fmt.Errorf("%w: -to must be after -from", ErrUsage)
	}

	if outFile == "" {
		outFile = fmt.Sprintf("activity_%s.csv", from.Format("2006_01_02"))
	}
	w, err := report.OpenCSV(outFile)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.Default().WithComponent("report")
	client := report.NewClient(cfg.Report, report.Options{Logger: logger})

	start := time.Now()
	total, err := client.Export(ctx, from, to, w)
	if err != nil {
		return err
	}

	logger.Info("export finished", "events", total, "file", outFile,
		"elapsed", time.Since(start).Round(time.Second).String())
	fmt.Printf("%d events saved to %s\n", total, outFile)
	return nil
}

func parseTimeArg(arg string) (time.Time, error) {
	if arg == "" {
		return time.Time{}, fmt.Errorf("missing value")
	}
	if t, err := time.ParseInLocation("2006-01-02", arg, time.Local); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, arg)
}
