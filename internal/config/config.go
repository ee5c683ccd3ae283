// Package config reads the xpgcheck configuration from viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"xorkevin.dev/kerrors"
)

const (
	KeyDSN      = "dsn"
	KeyDriver   = "driver"
	KeyMaxConns = "maxconns"
	KeyTypes    = "types"
	KeyTables   = "tables"
	KeyDebug    = "debug"
)

const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

var (
	// ErrInvalidConfig is returned when the configuration fails validation
	ErrInvalidConfig errInvalidConfig
)

type (
	errInvalidConfig struct{}
)

func (e errInvalidConfig) Error() string {
	return "Invalid config"
}

type (
	// Config is the database and schema configuration
	Config struct {
		DSN      string
		Driver   string
		MaxConns int
		Types    []string
		Tables   []string
		Debug    bool
	}
)

// SetDefaults installs the default values into v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDriver, DriverPQ)
	v.SetDefault(KeyMaxConns, 10)
	v.SetDefault(KeyTypes, []string{})
	v.SetDefault(KeyTables, []string{})
	v.SetDefault(KeyDebug, false)
}

// Load reads and validates the config held by v
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	c := &Config{
		DSN:      strings.TrimSpace(v.GetString(KeyDSN)),
		Driver:   strings.ToLower(strings.TrimSpace(v.GetString(KeyDriver))),
		MaxConns: v.GetInt(KeyMaxConns),
		Types:    cleanList(v.GetStringSlice(KeyTypes)),
		Tables:   cleanList(v.GetStringSlice(KeyTables)),
		Debug:    v.GetBool(KeyDebug),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the config for missing or out of range values
func (c *Config) Validate() error {
	if c.DSN == "" {
		return kerrors.WithKind(nil, ErrInvalidConfig, "No database dsn provided")
	}
	switch c.Driver {
	case DriverPQ, DriverPGX:
	default:
		return kerrors.WithKind(nil, ErrInvalidConfig, fmt.Sprintf("Unsupported driver %q", c.Driver))
	}
	if c.MaxConns < 0 {
		return kerrors.WithKind(nil, ErrInvalidConfig, fmt.Sprintf("Invalid maxconns %d", c.MaxConns))
	}
	return nil
}

// cleanList trims entries and drops empty ones. Env values arrive as one
// comma separated string.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
