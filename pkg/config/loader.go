package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/synthline/corestation/pkg/layout"
)

// yamlConfig is config.yaml's on-disk shape. Every field is optional —
// anything left unset keeps DefaultConfig's value, or, for
// boolean-sensitive fields, is resolved by an explicit *bool so an
// explicit `false` in YAML is distinguishable from "unset".
type yamlConfig struct {
	Station           *stationYAML                `yaml:"station"`
	Polling           *pollingYAML                 `yaml:"polling"`
	ChemicalDirectory *chemicalDirectoryYAML       `yaml:"chemical_directory"`
	TraySpecs         map[string]traySpecYAML      `yaml:"tray_specs"`
	Sink              *sinkYAML                    `yaml:"sink"`
	Notifier          *notifierYAML                `yaml:"notifier"`
	Logging           *loggingYAML                 `yaml:"logging"`
	API               *apiYAML                     `yaml:"api"`
}

type stationYAML struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	VerifySSL      *bool  `yaml:"verify_ssl"`
}

type pollingYAML struct {
	IntervalSeconds           int     `yaml:"interval_seconds"`
	DeadlineSeconds           int     `yaml:"deadline_seconds"`
	DeviceInitDeadlineSeconds int     `yaml:"device_init_deadline_seconds"`
	WaterLimitPPM             float64 `yaml:"water_limit_ppm"`
	O2LimitPPM                float64 `yaml:"o2_limit_ppm"`
}

type chemicalDirectoryYAML struct {
	Path          string   `yaml:"path"`
	DedupFields   []string `yaml:"dedup_fields"`
	DeleteOnAlign *bool    `yaml:"delete_on_align"`
}

// traySpecYAML describes a site-specific tray addition or override,
// keyed by a decimal resource-code string in yamlConfig.TraySpecs.
type traySpecYAML struct {
	DisplayName string `yaml:"display_name"`
	Cols        int    `yaml:"cols"`
	Rows        int    `yaml:"rows"`
	MediaCode   int    `yaml:"media_code"`
	MediaPhase  string `yaml:"media_phase"`
	DefaultUnit string `yaml:"default_unit"`
}

type sinkYAML struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

type notifierYAML struct {
	Enabled  *bool  `yaml:"enabled"`
	TokenEnv string `yaml:"token_env"`
	Channel  string `yaml:"channel"`
}

type loggingYAML struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type apiYAML struct {
	Enabled    *bool  `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads .env and config.yaml from configDir, merges them onto
// DefaultConfig, applies environment-variable overrides, resolves the
// effective tray-spec table, and validates the result. It is the sole
// entry point cmd/stationctl calls.
func Load(configDir string) (*Config, error) {
	envPath := filepath.Join(configDir, ".env")
	_ = godotenv.Load(envPath) // a missing .env is not an error — env may already be set

	raw, err := os.ReadFile(filepath.Join(configDir, "config.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError("config.yaml", fmt.Errorf("%w: %s", ErrConfigNotFound, configDir))
		}
		return nil, NewLoadError("config.yaml", err)
	}
	raw = ExpandEnv(raw)

	var y yamlConfig
	if err := yaml.Unmarshal(raw, &y); err != nil {
		return nil, NewLoadError("config.yaml", fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	cfg := DefaultConfig()
	cfg.configDir = configDir

	if err := applyYAML(cfg, &y); err != nil {
		return nil, NewLoadError("config.yaml", err)
	}
	applyEnvOverrides(cfg)
	cfg.TraySpecs = resolveTraySpecs(y.TraySpecs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyYAML merges y onto cfg. Numeric/string fields use mergo's
// structural override merge (mergo.Merge's usual non-zero-wins
// semantics are safe here — a site never wants interval_seconds: 0 or an
// empty base_url to "win"); boolean-sensitive fields are resolved
// manually via their YAML *bool, the way the teacher's
// resolveSlackConfig/resolveGitHubConfig do, so an explicit `false`
// survives the merge instead of being mistaken for "unset".
func applyYAML(cfg *Config, y *yamlConfig) error {
	if y.Station != nil {
		merged := cfg.Station
		overlay := StationConfig{BaseURL: y.Station.BaseURL}
		if y.Station.TimeoutSeconds > 0 {
			overlay.Timeout = time.Duration(y.Station.TimeoutSeconds) * time.Second
		}
		if err := mergo.Merge(&merged, overlay, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge station config: %w", err)
		}
		if y.Station.VerifySSL != nil {
			merged.VerifySSL = *y.Station.VerifySSL
		}
		cfg.Station = merged
	}

	if y.Polling != nil {
		overlay := PollingConfig{WaterLimitPPM: y.Polling.WaterLimitPPM, O2LimitPPM: y.Polling.O2LimitPPM}
		if y.Polling.IntervalSeconds > 0 {
			overlay.Interval = time.Duration(y.Polling.IntervalSeconds) * time.Second
		}
		if y.Polling.DeadlineSeconds > 0 {
			overlay.Deadline = time.Duration(y.Polling.DeadlineSeconds) * time.Second
		}
		if y.Polling.DeviceInitDeadlineSeconds > 0 {
			overlay.DeviceInitDeadline = time.Duration(y.Polling.DeviceInitDeadlineSeconds) * time.Second
		}
		if err := mergo.Merge(&cfg.Polling, overlay, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge polling config: %w", err)
		}
	}

	if y.ChemicalDirectory != nil {
		overlay := ChemicalDirectoryConfig{Path: y.ChemicalDirectory.Path, DedupFields: y.ChemicalDirectory.DedupFields}
		if err := mergo.Merge(&cfg.ChemicalDirectory, overlay, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge chemical directory config: %w", err)
		}
		if y.ChemicalDirectory.DeleteOnAlign != nil {
			cfg.ChemicalDirectory.DeleteOnAlign = *y.ChemicalDirectory.DeleteOnAlign
		}
	}

	if y.Sink != nil {
		overlay := SinkConfig{Dir: y.Sink.Dir, RetentionDays: y.Sink.RetentionDays}
		if err := mergo.Merge(&cfg.Sink, overlay, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge sink config: %w", err)
		}
	}

	if y.Notifier != nil {
		overlay := NotifierConfig{TokenEnv: y.Notifier.TokenEnv, Channel: y.Notifier.Channel}
		if err := mergo.Merge(&cfg.Notifier, overlay, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge notifier config: %w", err)
		}
		if y.Notifier.Enabled != nil {
			cfg.Notifier.Enabled = *y.Notifier.Enabled
		}
	}

	if y.Logging != nil {
		overlay := LoggingConfig{Level: y.Logging.Level, Format: y.Logging.Format}
		if err := mergo.Merge(&cfg.Logging, overlay, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge logging config: %w", err)
		}
	}

	if y.API != nil {
		overlay := APIConfig{ListenAddr: y.API.ListenAddr}
		if err := mergo.Merge(&cfg.API, overlay, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge api config: %w", err)
		}
		if y.API.Enabled != nil {
			cfg.API.Enabled = *y.API.Enabled
		}
	}

	return nil
}

// applyEnvOverrides resolves the env-only secrets: station credentials and
// the notifier token named by Notifier.TokenEnv.
func applyEnvOverrides(cfg *Config) {
	cfg.Station.Username = os.Getenv("STATION_USERNAME")
	cfg.Station.Password = os.Getenv("STATION_PASSWORD")
	if cfg.Notifier.TokenEnv != "" {
		cfg.Notifier.Token = os.Getenv(cfg.Notifier.TokenEnv)
	}
}

// resolveTraySpecs copies layout.BuiltinTraySpecs and layers site
// overrides on top, without mutating the shared package-level table.
func resolveTraySpecs(overrides map[string]traySpecYAML) map[layout.ResourceCode]layout.TraySpec {
	merged := make(map[layout.ResourceCode]layout.TraySpec, len(layout.BuiltinTraySpecs)+len(overrides))
	for code, spec := range layout.BuiltinTraySpecs {
		merged[code] = spec
	}
	for codeStr, o := range overrides {
		code, err := parseResourceCode(codeStr)
		if err != nil {
			continue
		}
		merged[code] = layout.TraySpec{
			Code:        code,
			DisplayName: o.DisplayName,
			Grid:        layout.Grid{Cols: o.Cols, Rows: o.Rows},
			MediaCode:   layout.ResourceCode(o.MediaCode),
			MediaPhase:  layout.MediaPhase(o.MediaPhase),
			DefaultUnit: o.DefaultUnit,
		}
	}
	return merged
}

func parseResourceCode(s string) (layout.ResourceCode, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return layout.ResourceCode(n), err
}
