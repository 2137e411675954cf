package client

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultProbeInterval is the spacing between bandwidth probes.
const DefaultProbeInterval = 30 * time.Second

// Config holds configuration for the playback controller.
type Config struct {
	// ServerURL is the base URL of the relay server. Required.
	ServerURL string

	// UserID identifies the viewer to the token endpoint. Required.
	UserID string

	// Player is the embedded player to drive. Required.
	Player Player

	// HTTPClient is the client used for token and probe requests.
	// If nil, http.DefaultClient is used.
	HTTPClient *http.Client

	// Logger is an optional diagnostics logger.
	Logger Logger

	// ProbeInterval overrides the bandwidth probe spacing.
	// If zero, DefaultProbeInterval is used.
	ProbeInterval time.Duration
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return errors.New("client: ServerURL is required")
	}
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("client: UserID is required")
	}
	if c.Player == nil {
		return errors.New("client: Player is required")
	}
	return nil
}

func (c *Config) normalize() {
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
}
