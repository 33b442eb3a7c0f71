package main

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/icebox/cmd"
	"grimm.is/icebox/internal/config"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "shun":
		shunFlags := flag.NewFlagSet("shun", flag.ExitOnError)
		configFile := shunFlags.String("config", config.DefaultPath, "Configuration file")
		shunFlags.StringVar(configFile, "c", config.DefaultPath, "Configuration file (short)")

		verbose := shunFlags.Bool("verbose", false, "Log device dialogue and state transitions")
		shunFlags.BoolVar(verbose, "v", false, "Verbose (short)")

		shunFlags.Parse(os.Args[2:])

		if shunFlags.NArg() != 2 {
			fmt.Fprintf(os.Stderr, "usage: icebox shun [-config file] <instance> <address>\n")
			os.Exit(1)
		}

		err := cmd.RunShun(*configFile, shunFlags.Arg(0), shunFlags.Arg(1), *verbose)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Shun failed: %v\n", err)
		}
		os.Exit(cmd.ExitCode(err))

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		configFile := checkFlags.String("config", config.DefaultPath, "Configuration file")
		verbose := checkFlags.Bool("v", false, "Print per-instance details")
		checkFlags.Parse(os.Args[2:])

		if checkFlags.NArg() > 0 {
			*configFile = checkFlags.Arg(0)
		}

		if err := cmd.RunCheck(*configFile, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "probe":
		probeFlags := flag.NewFlagSet("probe", flag.ExitOnError)
		configFile := probeFlags.String("config", config.DefaultPath, "Configuration file")
		probeFlags.Parse(os.Args[2:])

		if probeFlags.NArg() < 1 || probeFlags.NArg() > 2 {
			fmt.Fprintf(os.Stderr, "usage: icebox probe [-config file] <instance> [address]\n")
			os.Exit(1)
		}

		address := ""
		if probeFlags.NArg() == 2 {
			address = probeFlags.Arg(1)
		}
		if err := cmd.RunProbe(*configFile, probeFlags.Arg(0), address); err != nil {
			fmt.Fprintf(os.Stderr, "Probe failed: %v\n", err)
			os.Exit(1)
		}

	case "report":
		reportFlags := flag.NewFlagSet("report", flag.ExitOnError)
		configFile := reportFlags.String("config", config.DefaultPath, "Configuration file")
		from := reportFlags.String("from", "", "Start of the export window (YYYY-MM-DD or RFC3339)")
		to := reportFlags.String("to", "", "End of the export window (YYYY-MM-DD or RFC3339)")
		out := reportFlags.String("out", "", "Output CSV file (default activity_<from>.csv)")
		reportFlags.Parse(os.Args[2:])

		if err := cmd.RunReport(*configFile, *from, *to, *out); err != nil {
			fmt.Fprintf(os.Stderr, "Report failed: %v\n", err)
			os.Exit(1)
		}

	case "history":
		historyFlags := flag.NewFlagSet("history", flag.ExitOnError)
		configFile := historyFlags.String("config", config.DefaultPath, "Configuration file")
		limit := historyFlags.Int("n", 20, "Number of entries to show")
		historyFlags.Parse(os.Args[2:])

		if err := cmd.RunHistory(*configFile, *limit); err != nil {
			fmt.Fprintf(os.Stderr, "History failed: %v\n", err)
			os.Exit(1)
		}

	case "version", "--version":
		fmt.Printf("icebox %s\n", version)

	case "help", "--help", "-h":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `icebox - timed firewall quarantine

Usage:
  icebox shun [-config file] [-v] <instance> <address>
      Block <address> on the instance's firewall, hold for the configured
      quarantine interval, then unblock. Prints the device transcript.

      Exit codes: 0 done, 1 config/usage error, 2 connect or auth failure,
      3 block failed, 4 block applied but not removed, 5 interrupted.

  icebox check [-v] [-config file]
      Validate the configuration file.

  icebox probe [-config file] <instance> [address]
      Check device reachability; optionally reverse-resolve an address.

  icebox report [-config file] -from DATE -to DATE [-out file.csv]
      Export cloud activity logs to CSV.

  icebox history [-config file] [-n N]
      Show recent quarantine runs.

  icebox version
      Print the version.

Default configuration file: %s
`, config.DefaultPath)
}
