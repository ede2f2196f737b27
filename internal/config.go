package internal

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kukula/lattice/internal/diag"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Rules     RulesConfig       `yaml:"rules"`
	Events    EventsConfig      `yaml:"events"`
}

type section interface {
	Validate() error
}

// Validate validates every section and names the first one that fails.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		s    section
	}{
		{"app", &c.App},
		{"workspace", &c.Workspace},
		{"sqlite", &c.SQLite},
		{"auth", &c.Auth},
		{"rules", &c.Rules},
		{"events", &c.Events},
	}
	for _, sec := range sections {
		if err := sec.s.Validate(); err != nil {
			return fmt.Errorf("%s: %w", sec.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration. An empty Host listens on
// all interfaces.
type HTTPConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

// WorkspaceConfig holds the path to the directory of model files.
type WorkspaceConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// RulesConfig controls which validation rules run and how.
type RulesConfig struct {
	// Parallel is the number of rules evaluated concurrently; 0 or 1 runs
	// them sequentially.
	Parallel int `yaml:"parallel"`
	// Disabled lists diagnostic codes whose rules are skipped.
	Disabled []string `yaml:"disabled"`
}

// Validate validates the rules configuration.
func (c *RulesConfig) Validate() error {
	known := make([]any, 0, len(diag.KnownCodes()))
	for _, code := range diag.KnownCodes() {
		known = append(known, string(code))
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Parallel, validation.Min(0), validation.Max(64)),
		validation.Field(&c.Disabled, validation.Each(validation.In(known...))),
	)
}

// DisabledCodes returns Disabled as diagnostic codes.
func (c *RulesConfig) DisabledCodes() []diag.Code {
	out := make([]diag.Code, len(c.Disabled))
	for i, s := range c.Disabled {
		out[i] = diag.Code(s)
	}
	return out
}

// EventsConfig holds SSE event configuration.
type EventsConfig struct {
	// Throttle is the minimum interval between workspace.updated events.
	Throttle time.Duration `yaml:"throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Throttle, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:            8080,
				ShutdownTimeout: 10 * time.Second,
			},
		},
		Workspace: WorkspaceConfig{
			Path: "./models",
		},
		SQLite: SQLiteConfig{
			Path: "./lattice.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Events: EventsConfig{
			Throttle: 2 * time.Second,
		},
	}
}
