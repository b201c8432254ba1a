// Package config implements the Config & Bootstrap layer (C9): built-in
// defaults merged with an optional site config.yaml via a structural merge
// (dario.cat/mergo), overridden field-by-field by environment variables
// (loaded from an optional .env via github.com/joho/godotenv), then
// validated once at startup. Grounded on the teacher's pkg/config package
// (loader.go's Initialize/load split, defaults.go's Defaults shape,
// errors.go's typed LoadError/ValidationError, merge.go's built-in+user
// merge idiom) and cmd/tarsy/main.go's .env-then-flags-then-load sequence.
package config

import (
	"time"

	"github.com/synthline/corestation/pkg/layout"
)

// StationConfig is the station connection surface. Username and Password
// are never read from YAML — env-only (STATION_USERNAME/STATION_PASSWORD),
// per §4.9, so they never land in a config file a user might commit.
type StationConfig struct {
	BaseURL   string
	Username  string
	Password  string
	Timeout   time.Duration
	VerifySSL bool
}

// PollingConfig controls the Coordinator's wait-idle/wait-with-progress
// cadence and the start-task glovebox environment gate.
type PollingConfig struct {
	Interval           time.Duration
	Deadline           time.Duration
	DeviceInitDeadline time.Duration
	WaterLimitPPM      float64
	O2LimitPPM         float64
}

// ChemicalDirectoryConfig points at the site's local chemical directory
// YAML and controls load-time dedup/alignment behavior.
type ChemicalDirectoryConfig struct {
	Path          string
	DedupFields   []string
	DeleteOnAlign bool
}

// SinkConfig configures the default filesystem Sink (pkg/sink.FileSink).
type SinkConfig struct {
	Dir           string
	RetentionDays int
}

// NotifierConfig configures the Slack-backed Notifier, grounded on the
// teacher's SlackYAMLConfig (Enabled/TokenEnv/Channel) shape. Token is
// resolved from the environment variable named by TokenEnv, never stored
// in YAML.
type NotifierConfig struct {
	Enabled  bool
	TokenEnv string
	Token    string
	Channel  string
}

// LoggingConfig builds the process-wide slog.Handler, exactly as
// cmd/tarsy/main.go derives its handler from two flat fields.
type LoggingConfig struct {
	Level  string // debug|info|warn|error
	Format string // text|json
}

// APIConfig controls whether and where the Operator API (C10) listens. A
// CLI-only deployment sets Enabled=false.
type APIConfig struct {
	Enabled    bool
	ListenAddr string
}

// Config is the fully resolved, validated configuration object returned by
// Load. It is the single object cmd/stationctl wires every other component
// from.
type Config struct {
	configDir string

	Station           StationConfig
	Polling           PollingConfig
	ChemicalDirectory ChemicalDirectoryConfig
	Sink              SinkConfig
	Notifier          NotifierConfig
	Logging           LoggingConfig
	API               APIConfig

	// TraySpecs is the effective tray-geometry table: the built-in
	// layout.BuiltinTraySpecs table plus any site-specific overrides from
	// config.yaml's tray_specs section. It is a fresh map computed at load
	// time — layout.BuiltinTraySpecs itself is never mutated, so loading a
	// second Config (as tests do) never leaks site overrides across
	// instances.
	TraySpecs map[layout.ResourceCode]layout.TraySpec
}

// ConfigDir returns the directory Config was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}
