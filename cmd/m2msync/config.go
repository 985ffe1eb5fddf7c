package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/syssam/m2m"
	"github.com/syssam/m2m/dialect"
	"github.com/syssam/m2m/sqlstore"
)

// Config holds the process configuration.
type Config struct {
	Driver      string // database/sql driver name: postgres, pgx, mysql or sqlite
	DSN         string
	Relations   string // path of the relation file
	Debug       bool
	Tx          bool
	Workers     int
	MetricsFile string // optional Prometheus textfile written on exit
}

// loadConfig reads the configuration from M2M_* environment variables.
func loadConfig(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("M2M")
	v.AutomaticEnv()

	v.SetDefault("DIALECT", dialect.SQLite)
	v.SetDefault("RELATIONS", "relations.yaml")
	v.SetDefault("DEBUG", false)
	v.SetDefault("TX", false)
	v.SetDefault("WORKERS", 4)

	cfg := &Config{
		Driver:      v.GetString("DIALECT"),
		DSN:         v.GetString("DSN"),
		Relations:   v.GetString("RELATIONS"),
		Debug:       v.GetBool("DEBUG"),
		Tx:          v.GetBool("TX"),
		Workers:     v.GetInt("WORKERS"),
		MetricsFile: v.GetString("METRICS_FILE"),
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("M2M_DSN is required")
	}
	switch dialect.Normalize(cfg.Driver) {
	case dialect.Postgres, dialect.MySQL, dialect.SQLite:
	default:
		return nil, fmt.Errorf("unsupported M2M_DIALECT %q", cfg.Driver)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}

// fileConfig is the relation file.
type fileConfig struct {
	sqlstore.SchemaConfig `yaml:",inline"`
	// Strict checks all relations on startup.
	Strict bool `yaml:"strict"`
	// Missing is the policy for desired keys without target: abort, skip or collect.
	Missing string                   `yaml:"missing"`
	Owners  map[string]m2m.Relations `yaml:"owners"`
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(fc.Owners) == 0 {
		return nil, fmt.Errorf("%s: %w", path, m2m.NewConfigError("", "owners"))
	}
	return &fc, nil
}

// parseKeys parses a comma separated key list. Each key is an integer,
// a UUID, or else a string.
func parseKeys(s string) []any {
	keys := []any{}
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if n, err := strconv.ParseInt(f, 10, 64); err == nil {
			keys = append(keys, n)
		} else if id, err := uuid.Parse(f); err == nil {
			keys = append(keys, id)
		} else {
			keys = append(keys, f)
		}
	}
	return keys
}
