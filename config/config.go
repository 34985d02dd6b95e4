package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the daemon configuration loaded from a TOML file.
type Config struct {
	RPCAddress         string           `toml:"RPCAddress"`
	MetricsAddress     string           `toml:"MetricsAddress"`
	DataDir            string           `toml:"DataDir"`
	NetworkName        string           `toml:"NetworkName"`
	PoolAddress        string           `toml:"PoolAddress"`
	ComplainWindowSecs int64            `toml:"ComplainWindowSecs"`
	CancelWindowSecs   int64            `toml:"CancelWindowSecs"`
	Genesis            []GenesisAccount `toml:"Genesis,omitempty"`
	Telemetry          Telemetry        `toml:"Telemetry"`
}

// GenesisAccount seeds an account balance when the data directory is first
// initialised.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Asset   string `toml:"Asset"`
	Balance string `toml:"Balance"`
}

// Telemetry configures the OpenTelemetry exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vouchernet-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "vouchernet-local"
	}
	if cfg.ComplainWindowSecs <= 0 {
		cfg.ComplainWindowSecs = 7 * 24 * 60 * 60
	}
	if cfg.CancelWindowSecs <= 0 {
		cfg.CancelWindowSecs = 24 * 60 * 60
	}
}

// Validate rejects configurations the daemon cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	pool := strings.TrimSpace(cfg.PoolAddress)
	if pool == "" {
		return fmt.Errorf("config: PoolAddress is required")
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(pool, "0x"), "0X")
	if len(trimmed) != 40 {
		return fmt.Errorf("config: PoolAddress must be a 20-byte hex address")
	}
	for _, acct := range cfg.Genesis {
		if strings.TrimSpace(acct.Address) == "" {
			return fmt.Errorf("config: genesis account address required")
		}
		if strings.TrimSpace(acct.Balance) == "" {
			return fmt.Errorf("config: genesis balance required for %s", acct.Address)
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:         ":8080",
		MetricsAddress:     ":9090",
		DataDir:            "./vouchernet-data",
		NetworkName:        "vouchernet-local",
		PoolAddress:        "0x0000000000000000000000000000000000000f00",
		ComplainWindowSecs: 7 * 24 * 60 * 60,
		CancelWindowSecs:   24 * 60 * 60,
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
