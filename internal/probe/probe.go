// Package probe answers "can this instance's device be reached at all"
// without touching the device's block list. Operators run it before blaming
// the remediation path for a connectivity problem.
package probe

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/miekg/dns"
	probing "github.com/prometheus-community/pro-bing"

	"grimm.is/icebox/internal/config"
	"grimm.is/icebox/internal/logging"
)

// Result is one diagnostic pass against an instance's device.
type Result struct {
	Host          string
	ICMPReachable bool
	AvgRTT        time.Duration
	PortOpen      bool
	Port          int

	// PTR holds reverse-DNS names for the offending address, when one
	// was given.
	PTR []string
}

// Prober runs read-only reachability checks.
type Prober struct {
	Logger  *logging.Logger
	Timeout time.Duration

	// ResolvConf overrides the resolver configuration file for PTR
	// lookups. Empty means /etc/resolv.conf.
	ResolvConf string
}

func (p *Prober) timeout() time.Duration {
	if p.Timeout == 0 {
		return 3 * time.Second
	}
	return p.Timeout
}

func (p *Prober) logger() *logging.Logger {
	if p.Logger == nil {
		return logging.Default().WithComponent("probe")
	}
	return p.Logger
}

// Run checks the instance's device: ICMP echo, then a TCP dial of the
// administrative port. When offender is valid, its PTR records are looked
// up as well. Partial failures are reported in the Result, not as errors.
func (p *Prober) Run(ctx context.Context, inst *config.Instance, offender netip.Addr) (*Result, error) {
	res := &Result{Host: inst.FirewallIP, Port: inst.FirewallPort}

	reachable, rtt, err := p.ping(ctx, inst.FirewallIP)
	if err != nil {
		p.logger().Warn("icmp probe failed", "host", inst.FirewallIP, "error", err)
	}
	res.ICMPReachable = reachable
	res.AvgRTT = rtt

	res.PortOpen = p.checkPort(ctx, inst.FirewallIP, inst.FirewallPort)

	if offender.IsValid() {
		names, err := p.ReverseLookup(ctx, offender)
		if err != nil {
			p.logger().Debug("reverse lookup failed", "address", offender.String(), "error", err)
		}
		res.PTR = names
	}

	return res, nil
}

func (p *Prober) ping(ctx context.Context, host string) (bool, time.Duration, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false, 0, fmt.Errorf("create pinger: %w", err)
	}
	pinger.Count = 3
	pinger.Timeout = p.timeout()
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return false, 0, err
	}

	stats := pinger.Statistics()
	return stats.PacketsRecv > 0, stats.AvgRtt, nil
}

func (p *Prober) checkPort(ctx context.Context, host string, port int) bool {
	d := net.Dialer{Timeout: p.timeout()}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// ReverseLookup queries PTR records for addr against the system resolver.
func (p *Prober) ReverseLookup(ctx context.Context, addr netip.Addr) ([]string, error) {
	reverse, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return nil, fmt.Errorf("build reverse name: %w", err)
	}

	resolvConf := p.ResolvConf
	if resolvConf == "" {
		resolvConf = "/etc/resolv.conf"
	}
	cfg, _ := dns.ClientConfigFromFile(resolvConf)
	if cfg == nil || len(cfg.Servers) == 0 {
		cfg = &dns.ClientConfig{Servers: []string{"1.1.1.1"}, Port: "53", Timeout: 2}
	}

	m := new(dns.Msg)
	m.SetQuestion(reverse, dns.TypePTR)

	c := &dns.Client{Timeout: p.timeout()}
	r, _, err := c.ExchangeContext(ctx, m, net.JoinHostPort(cfg.Servers[0], cfg.Port))
	if err != nil {
		return nil, err
	}
	if r.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("PTR query for %s: rcode %s", addr, dns.RcodeToString[r.Rcode])
	}

	var names []string
	for _, rr := range r.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			names = append(names, ptr.Ptr)
		}
	}
	return names, nil
}
