// internal/config/config.go
package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Database selects the backing store. Postgres DSNs typically point at a
// serverless instance that suspends when idle; the retry settings below
// govern how long we wait for it to wake.
type Database struct {
	Driver string `json:"driver"` // sqlite | postgres | mysql
	DSN    string `json:"dsn"`
}

type Retry struct {
	MaxAttempts int `json:"max_attempts"`
	BaseDelayMs int `json:"base_delay_ms"`
}

type Config struct {
	Database    Database `json:"database"`
	Container   string   `json:"container"`    // logical locator prefix recorded on every file
	WatchDir    string   `json:"watch_dir"`    // directory polled for CSV drops
	PollSeconds int      `json:"poll_seconds"` // watch interval
	Retry       Retry    `json:"retry"`
}

// LoadOrCreate reads the config file, writing one with defaults on first
// run. The second return value reports whether a new file was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{
				Database:    Database{Driver: "sqlite", DSN: "ingest.db"},
				Container:   "products-dev",
				WatchDir:    "./csv_in",
				PollSeconds: 10,
				Retry:       Retry{MaxAttempts: 4, BaseDelayMs: 500},
			}
			if err := Save(path, cfg); err != nil {
				return nil, false, fmt.Errorf("write default config: %w", err)
			}
			return cfg, true, nil
		}
		return nil, false, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, false, fmt.Errorf("parse config: %w", err)
	}
	if cfg.PollSeconds <= 0 {
		cfg.PollSeconds = 10
	}
	if cfg.Container == "" {
		cfg.Container = "products-dev"
	}
	return &cfg, false, nil
}

func Save(path string, cfg *Config) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
