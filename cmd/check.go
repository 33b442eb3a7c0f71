package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"grimm.is/icebox/internal/config"
)

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(configFile string, verbose bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Printf("Configuration valid!\n")
	fmt.Printf("Instances: %d\n", len(cfg.Instances))
	fmt.Printf("Report exporter: %v\n", cfg.Report != nil)
	fmt.Printf("History database: %v\n", cfg.Audit != nil)

	if verbose && len(cfg.Instances) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tFIREWALL\tPORT\tQUARANTINE\tDESCRIPTION")
		for _, inst := range cfg.Instances {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				inst.Name, inst.FirewallIP, inst.FirewallPort,
				inst.QuarantineDuration(), inst.Description)
		}
		w.Flush()
	}

	return nil
}
