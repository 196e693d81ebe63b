// Package config loads CLI configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds the process configuration. Cloud tokens are optional:
// they are only required when a command targets that provider.
type Config struct {
	// InventoryPath is the YAML inventory file.
	InventoryPath string `env:"SHIPMATE_INVENTORY"`

	// HistoryPath is the SQLite run-history database.
	HistoryPath string `env:"SHIPMATE_HISTORY_DB"`

	HetznerToken      string `env:"HCLOUD_TOKEN"`
	DigitalOceanToken string `env:"DIGITALOCEAN_TOKEN"`

	LogLevel  string `env:"SHIPMATE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"SHIPMATE_LOG_FORMAT" envDefault:"console"`
}

// Load parses the environment and fills path defaults under the user's
// home directory.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.InventoryPath == "" || cfg.HistoryPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		if cfg.InventoryPath == "" {
			cfg.InventoryPath = filepath.Join(home, ".shipmate", "inventory.yml")
		}
		if cfg.HistoryPath == "" {
			cfg.HistoryPath = filepath.Join(home, ".shipmate", "history.db")
		}
	}

	return cfg, nil
}
