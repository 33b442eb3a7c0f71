package cmd

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"grimm.is/icebox/internal/config"
	"grimm.is/icebox/internal/logging"
	"grimm.is/icebox/internal/probe"
)

// RunProbe checks reachability of an instance's device without touching
// its block list. An optional address argument adds a reverse-DNS lookup
// of the would-be offender.
func RunProbe(configFile, instanceName, address string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	inst, err := cfg.Lookup(instanceName)
	if err != nil {
		return err
	}

	var offender netip.Addr
	if address != "" {
		offender, err = netip.ParseAddr(address)
		if err != nil {
			return fmt.Errorf("%w: %q is not an IP literal", ErrUsage, address)
		}
	}

	p := &probe.Prober{Logger: logging.Default().WithComponent("probe")}
	res, err := p.Run(context.Background(), inst, offender)
	if err != nil {
		return err
	}

	fmt.Printf("Device %s (instance %q)\n", res.Host, inst.Name)
	if res.ICMPReachable {
		fmt.Printf("  icmp: reachable, avg rtt %s\n", res.AvgRTT)
	} else {
		fmt.Printf("  icmp: no reply\n")
	}
	if res.PortOpen {
		fmt.Printf("  tcp %d: open\n", res.Port)
	} else {
		fmt.Printf("  tcp %d: closed or filtered\n", res.Port)
	}
	if offender.IsValid() {
		if len(res.PTR) > 0 {
			fmt.Printf("  %s resolves to %s\n", offender, strings.Join(res.PTR, ", "))
		} else {
			fmt.Printf("  %s has no PTR record\n", offender)
		}
	}
	return nil
}
