package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHCL = `
instance "Quarantine_IP" {
  description       = "edge ASA quarantine"
  firewall_ip       = "192.168.1.15"
  firewall_username = "admin"
  firewall_password = "secret"
  quarantine_time   = 180
}

instance "Lab" {
  firewall_ip       = "10.0.0.1"
  firewall_port     = 2222
  firewall_username = "lab"
  firewall_password = "lab"
  quarantine_time   = 0
}
`

func TestLoadBytes_ParsesInstances(t *testing.T) {
	cfg, err := LoadBytes([]byte(sampleHCL), "icebox.hcl")
	require.NoError(t, err)
	require.Len(t, cfg.Instances, 2)

	inst, err := cfg.Lookup("Quarantine_IP")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.15", inst.FirewallIP)
	assert.Equal(t, "admin", inst.FirewallUsername)
	assert.Equal(t, 180, inst.QuarantineTime)
	assert.Equal(t, 180*time.Second, inst.QuarantineDuration())
	assert.Equal(t, DefaultFirewallPort, inst.FirewallPort, "port should default to 22")

	lab, err := cfg.Lookup("Lab")
	require.NoError(t, err)
	assert.Equal(t, 2222, lab.FirewallPort)
	assert.Equal(t, 0, lab.QuarantineTime, "zero quarantine is valid")
}

func TestLookup_UnknownInstance(t *testing.T) {
	cfg, err := LoadBytes([]byte(sampleHCL), "icebox.hcl")
	require.NoError(t, err)

	_, err = cfg.Lookup("nope")
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestLoadBytes_MissingRequiredField(t *testing.T) {
	hcl := `
instance "broken" {
  firewall_ip       = "10.0.0.1"
  firewall_username = "admin"
  firewall_password = "x"
}
`
	_, err := LoadBytes([]byte(hcl), "icebox.hcl")
	assert.Error(t, err, "missing quarantine_time must fail, not default")
}

func TestLoadBytes_NonNumericQuarantineTime(t *testing.T) {
	hcl := `
instance "broken" {
  firewall_ip       = "10.0.0.1"
  firewall_username = "admin"
  firewall_password = "x"
  quarantine_time   = "soon"
}
`
	_, err := LoadBytes([]byte(hcl), "icebox.hcl")
	assert.Error(t, err)
}

func TestValidate_NegativeQuarantineTime(t *testing.T) {
	hcl := `
instance "broken" {
  firewall_ip       = "10.0.0.1"
  firewall_username = "admin"
  firewall_password = "x"
  quarantine_time   = -5
}
`
	_, err := LoadBytes([]byte(hcl), "icebox.hcl")
	assert.ErrorIs(t, err, ErrInstanceInvalid)
}

func TestValidate_DuplicateInstanceNames(t *testing.T) {
	hcl := `
instance "dup" {
  firewall_ip       = "10.0.0.1"
  firewall_username = "a"
  firewall_password = "b"
  quarantine_time   = 1
}
instance "dup" {
  firewall_ip       = "10.0.0.2"
  firewall_username = "a"
  firewall_password = "b"
  quarantine_time   = 1
}
`
	_, err := LoadBytes([]byte(hcl), "icebox.hcl")
	assert.ErrorIs(t, err, ErrInstanceInvalid)
}

func TestValidate_PortOutOfRange(t *testing.T) {
	hcl := `
instance "broken" {
  firewall_ip       = "10.0.0.1"
  firewall_port     = 70000
  firewall_username = "a"
  firewall_password = "b"
  quarantine_time   = 1
}
`
	_, err := LoadBytes([]byte(hcl), "icebox.hcl")
	assert.ErrorIs(t, err, ErrInstanceInvalid)
}

func TestValidate_ReportDefaults(t *testing.T) {
	hcl := `
report {
  client_id     = "id"
  client_secret = "secret"
}
`
	cfg, err := LoadBytes([]byte(hcl), "icebox.hcl")
	require.NoError(t, err)
	require.NotNil(t, cfg.Report)
	assert.Equal(t, "https://api.sse.cisco.com", cfg.Report.APIURL)
	assert.Equal(t, 1000, cfg.Report.PageSize)
	assert.Equal(t, 10000, cfg.Report.OffsetCeiling)
	assert.Equal(t, 5000, cfg.Report.MaxRequestsPerHr)
}

func TestLoadBytes_JSON(t *testing.T) {
	jsonCfg := `{
  "instance": {
    "FromJSON": {
      "firewall_ip": "172.16.0.1",
      "firewall_username": "admin",
      "firewall_password": "pw",
      "quarantine_time": 60
    }
  }
}`
	cfg, err := LoadBytes([]byte(jsonCfg), "icebox.json")
	require.NoError(t, err)

	inst, err := cfg.Lookup("FromJSON")
	require.NoError(t, err)
	assert.Equal(t, 60, inst.QuarantineTime)
}

func TestLoadBytes_ErrorsAreNotInstanceErrors(t *testing.T) {
	_, err := LoadBytes([]byte(`instance "x" {`), "icebox.hcl")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInstanceNotFound))
}
