package config

import "time"

// DefaultConfig returns the built-in configuration every site's config.yaml
// is layered on top of, grounded on the teacher's DefaultRetentionConfig /
// DefaultQueueConfig "start from sane defaults, let YAML override" idiom.
func DefaultConfig() *Config {
	return &Config{
		Station: StationConfig{
			Timeout:   15 * time.Second,
			VerifySSL: true,
		},
		Polling: PollingConfig{
			Interval:           5 * time.Second,
			Deadline:           10 * time.Minute,
			DeviceInitDeadline: 5 * time.Minute,
			WaterLimitPPM:      50,
			O2LimitPPM:         50,
		},
		ChemicalDirectory: ChemicalDirectoryConfig{
			DedupFields:   []string{"name", "cas"},
			DeleteOnAlign: false,
		},
		Sink: SinkConfig{
			Dir:           "./data",
			RetentionDays: 30,
		},
		Notifier: NotifierConfig{
			Enabled:  false,
			TokenEnv: "SLACK_BOT_TOKEN",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			Enabled:    true,
			ListenAddr: ":8090",
		},
	}
}
