package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `PoolAddress = "0x0000000000000000000000000000000000000f00"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("RPCAddress = %q, want :8080", cfg.RPCAddress)
	}
	if cfg.MetricsAddress != ":9090" {
		t.Fatalf("MetricsAddress = %q, want :9090", cfg.MetricsAddress)
	}
	if cfg.ComplainWindowSecs != 7*24*60*60 {
		t.Fatalf("ComplainWindowSecs = %d, want one week", cfg.ComplainWindowSecs)
	}
	if cfg.CancelWindowSecs != 24*60*60 {
		t.Fatalf("CancelWindowSecs = %d, want one day", cfg.CancelWindowSecs)
	}
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
RPCAddress = ":7466"
MetricsAddress = ":7467"
DataDir = "/tmp/vnet"
NetworkName = "vouchernet-test"
PoolAddress = "0x00000000000000000000000000000000000000AB"
ComplainWindowSecs = 3600
CancelWindowSecs = 600

[[Genesis]]
Address = "0x1111111111111111111111111111111111111111"
Asset = "VNT"
Balance = "1000000"

[Telemetry]
Endpoint = "collector:4318"
Insecure = true
Traces = true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCAddress != ":7466" || cfg.NetworkName != "vouchernet-test" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Genesis) != 1 || cfg.Genesis[0].Balance != "1000000" {
		t.Fatalf("genesis not parsed: %+v", cfg.Genesis)
	}
	if !cfg.Telemetry.Traces || cfg.Telemetry.Endpoint != "collector:4318" {
		t.Fatalf("telemetry not parsed: %+v", cfg.Telemetry)
	}
}

func TestLoadRejectsMissingPool(t *testing.T) {
	path := writeConfig(t, `RPCAddress = ":7466"`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing pool address")
	}
}

func TestLoadRejectsShortPoolAddress(t *testing.T) {
	path := writeConfig(t, `PoolAddress = "0xf00"`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed pool address")
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PoolAddress == "" {
		t.Fatal("default config missing pool address")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	// A second load reads the file back.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.PoolAddress != cfg.PoolAddress {
		t.Fatal("reloaded config differs from created default")
	}
}
