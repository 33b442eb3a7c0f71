// Package config loads and validates the instance configuration file.
//
// The file is HCL (JSON is accepted with a .json extension) and contains one
// instance block per remediation deployment, plus optional report and audit
// blocks:
//
//	instance "Quarantine_IP" {
//	  description       = "edge ASA quarantine"
//	  firewall_ip       = "192.168.1.15"
//	  firewall_username = "admin"
//	  firewall_password = "secret"
//	  quarantine_time   = 180
//	}
//
// Missing or non-numeric required fields fail at decode time; they are never
// defaulted silently.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// DefaultPath is the default configuration file location.
const DefaultPath = "/etc/icebox/icebox.hcl"

// DefaultFirewallPort is used when an instance omits firewall_port.
const DefaultFirewallPort = 22

var (
	// ErrInstanceNotFound is returned when no instance block matches the
	// requested name.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrInstanceInvalid is returned when an instance block is present but
	// semantically unusable.
	ErrInstanceInvalid = errors.New("invalid instance configuration")
)

// Config is the root of the configuration file.
type Config struct {
	Instances []Instance    `hcl:"instance,block"`
	Report    *ReportConfig `hcl:"report,block"`
	Audit     *AuditConfig  `hcl:"audit,block"`
}

// Instance describes one remediation deployment: the firewall device it
// manages and how long a shun is held there.
type Instance struct {
	Name             string `hcl:"name,label"`
	Description      string `hcl:"description,optional"`
	FirewallIP       string `hcl:"firewall_ip"`
	FirewallPort     int    `hcl:"firewall_port,optional"`
	FirewallUsername string `hcl:"firewall_username"`
	FirewallPassword string `hcl:"firewall_password"`
	QuarantineTime   int    `hcl:"quarantine_time"`
}

// QuarantineDuration returns the hold interval as a time.Duration.
func (i *Instance) QuarantineDuration() time.Duration {
	return time.Duration(i.QuarantineTime) * time.Second
}

// ReportConfig configures the activity-report exporter.
type ReportConfig struct {
	APIURL           string `hcl:"api_url,optional"`
	ClientID         string `hcl:"client_id"`
	ClientSecret     string `hcl:"client_secret"`
	PageSize         int    `hcl:"page_size,optional"`
	OffsetCeiling    int    `hcl:"offset_ceiling,optional"`
	MaxRequestsPerHr int    `hcl:"max_requests_per_hour,optional"`
}

// AuditConfig configures the local quarantine history database.
type AuditConfig struct {
	Path          string `hcl:"path,optional"`
	RetentionDays int    `hcl:"retention_days,optional"`
}

// Load reads and validates a configuration file. The parser is chosen by
// file extension (.hcl or .json).
func Load(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadBytes parses configuration from memory. The filename selects the
// parser by extension, as with Load.
func LoadBytes(data []byte, filename string) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, data, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks semantic constraints and applies defaults for optional
// fields.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Instances))
	for i := range c.Instances {
		inst := &c.Instances[i]
		if inst.Name == "" {
			return fmt.Errorf("%w: instance with empty name", ErrInstanceInvalid)
		}
		if seen[inst.Name] {
			return fmt.Errorf("%w: duplicate instance %q", ErrInstanceInvalid, inst.Name)
		}
		seen[inst.Name] = true

		if inst.FirewallIP == "" {
			return fmt.Errorf("%w: instance %q: firewall_ip is required", ErrInstanceInvalid, inst.Name)
		}
		if inst.FirewallUsername == "" {
			return fmt.Errorf("%w: instance %q: firewall_username is required", ErrInstanceInvalid, inst.Name)
		}
		if inst.FirewallPort == 0 {
			inst.FirewallPort = DefaultFirewallPort
		}
		if inst.FirewallPort < 1 || inst.FirewallPort > 65535 {
			return fmt.Errorf("%w: instance %q: firewall_port %d out of range", ErrInstanceInvalid, inst.Name, inst.FirewallPort)
		}
		if inst.QuarantineTime < 0 {
			return fmt.Errorf("%w: instance %q: quarantine_time must be >= 0", ErrInstanceInvalid, inst.Name)
		}
	}

	if c.Report != nil {
		if c.Report.APIURL == "" {
			c.Report.APIURL = "https://api.sse.cisco.com"
		}
		if c.Report.PageSize == 0 {
			c.Report.PageSize = 1000
		}
		if c.Report.OffsetCeiling == 0 {
			c.Report.OffsetCeiling = 10000
		}
		if c.Report.MaxRequestsPerHr == 0 {
			c.Report.MaxRequestsPerHr = 5000
		}
	}

	return nil
}

// Lookup returns the named instance configuration.
func (c *Config) Lookup(name string) (*Instance, error) {
	for i := range c.Instances {
		if c.Instances[i].Name == name {
			return &c.Instances[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInstanceNotFound, name)
}
