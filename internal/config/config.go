// Package config loads the YAML service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/MJE43/baccarat-roads/internal/roads"
	"github.com/MJE43/baccarat-roads/internal/table"
)

type Server struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Database struct {
	// Path of the SQLite file. Empty disables run persistence.
	Path string `yaml:"path"`
}

// Live configures the live table tracker.
type Live struct {
	// Path of the live SQLite file. Empty disables the /live routes.
	Path string `yaml:"path"`
	// Token required in X-Ingest-Token on ingest. Empty disables the check.
	Token string `yaml:"token"`
}

type Roads struct {
	Columns int `yaml:"columns"`
}

type Scan struct {
	// Workers of zero uses GOMAXPROCS.
	Workers   int `yaml:"workers"`
	TimeoutMs int `yaml:"timeout_ms"`
	HitLimit  int `yaml:"hit_limit"`
	// MaxRange caps nonce_end - nonce_start + 1 per request.
	MaxRange uint64 `yaml:"max_range"`
}

type Config struct {
	Server   Server       `yaml:"server"`
	Database Database     `yaml:"database"`
	Live     Live         `yaml:"live"`
	Shoe     table.Config `yaml:"shoe"`
	Roads    Roads        `yaml:"roads"`
	Scan     Scan         `yaml:"scan"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Database: Database{Path: "baccarat.db"},
		Shoe:     table.DefaultConfig(),
		Roads:    Roads{Columns: roads.DefaultColumns},
		Scan: Scan{
			TimeoutMs: 30000,
			HitLimit:  1000,
			MaxRange:  1_000_000,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var err error
	if c.Server.Addr == "" {
		err = multierr.Append(err, errors.New("server.addr is required"))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		err = multierr.Append(err, errors.New("server timeouts must not be negative"))
	}
	if c.Shoe.Decks < 1 || c.Shoe.Decks > 16 {
		err = multierr.Append(err, fmt.Errorf("shoe.decks must be between 1 and 16, got %d", c.Shoe.Decks))
	}
	if c.Shoe.ReshuffleAt < 0 || c.Shoe.ReshuffleAt >= c.Shoe.Decks*52 {
		err = multierr.Append(err, fmt.Errorf("shoe.reshuffle_at out of range: %d", c.Shoe.ReshuffleAt))
	}
	if c.Roads.Columns < 1 {
		err = multierr.Append(err, fmt.Errorf("roads.columns must be positive, got %d", c.Roads.Columns))
	}
	if c.Scan.Workers < 0 {
		err = multierr.Append(err, fmt.Errorf("scan.workers must not be negative, got %d", c.Scan.Workers))
	}
	if c.Scan.TimeoutMs < 0 || c.Scan.HitLimit < 0 {
		err = multierr.Append(err, errors.New("scan.timeout_ms and scan.hit_limit must not be negative"))
	}
	return err
}
