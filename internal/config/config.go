// Package config loads and validates streamgate configuration from TOML.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains relay server settings.
type Server struct {
	Bind string `toml:"bind"`
	// PublicBaseURL is the URL clients use to reach this server. Relay
	// paths written into manifests are relative, so this only matters for
	// URLs printed to operators.
	PublicBaseURL string `toml:"public_base_url"`
	// ProbeSizeKiB is the size of the bandwidth probe body.
	ProbeSizeKiB int `toml:"probe_size_kib"`
}

// Token contains capability token settings.
type Token struct {
	Secret          string `toml:"secret"`
	LifetimeMinutes int    `toml:"lifetime_minutes"`
}

// Resolver contains source resolution cache settings.
type Resolver struct {
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
}

// Catalog contains the bundled catalog backend settings.
type Catalog struct {
	Path string `toml:"path"`
}

// History contains the bundled watch-history backend settings.
type History struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"`
}

// Logging contains logger settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the root configuration document.
type Config struct {
	Server   Server   `toml:"server"`
	Token    Token    `toml:"token"`
	Resolver Resolver `toml:"resolver"`
	Catalog  Catalog  `toml:"catalog"`
	History  History  `toml:"history"`
	Logging  Logging  `toml:"logging"`
}

// TokenLifetime returns the configured token lifetime as a duration.
func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.Token.LifetimeMinutes) * time.Minute
}

// CacheTTL returns the configured resolver cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Resolver.CacheTTLSeconds) * time.Second
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "streamgate.toml"
	}
	return filepath.Join(home, ".config", "streamgate", "config.toml")
}

// Sample returns the embedded sample configuration document.
func Sample() string {
	return sampleConfig
}

// Load reads the configuration at path, falling back to DefaultPath when
// path is empty. A missing file yields defaults; the returned bool reports
// whether a file was actually read.
func Load(path string) (*Config, bool, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.normalize()
			return cfg, false, cfg.Validate()
		}
		return nil, false, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return nil, false, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, true, err
	}
	return cfg, true, nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Token.Secret) == "" {
		return errors.New("config: token.secret must be set")
	}
	if c.Server.Bind == "" {
		return errors.New("config: server.bind must not be empty")
	}
	if c.Token.LifetimeMinutes <= 0 {
		return errors.New("config: token.lifetime_minutes must be positive")
	}
	if c.Resolver.CacheTTLSeconds <= 0 {
		return errors.New("config: resolver.cache_ttl_seconds must be positive")
	}
	if c.Server.ProbeSizeKiB <= 0 {
		return errors.New("config: server.probe_size_kib must be positive")
	}
	switch c.Logging.Format {
	case "", "auto", "json", "console":
	default:
		return fmt.Errorf("config: logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) normalize() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	c.Server.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicBaseURL), "/")
	c.Token.Secret = strings.TrimSpace(c.Token.Secret)
	c.Catalog.Path = strings.TrimSpace(c.Catalog.Path)
	c.History.DBPath = strings.TrimSpace(c.History.DBPath)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}
