package config

import (
	"errors"
	"fmt"
)

// Validate checks cfg for every field-level problem it can find,
// aggregating them with errors.Join rather than stopping at the first,
// per §4.9 ("validated once at startup ... aggregating every problem").
func (c *Config) Validate() error {
	var errs []error

	if c.Station.BaseURL == "" {
		errs = append(errs, &ValidationError{Field: "station.base_url", Message: "must not be empty"})
	}
	if c.Station.Username == "" {
		errs = append(errs, &ValidationError{Field: "station.username", Message: "STATION_USERNAME is not set"})
	}
	if c.Station.Password == "" {
		errs = append(errs, &ValidationError{Field: "station.password", Message: "STATION_PASSWORD is not set"})
	}
	if c.Station.Timeout <= 0 {
		errs = append(errs, &ValidationError{Field: "station.timeout", Message: "must be positive"})
	}

	if c.Polling.Interval <= 0 {
		errs = append(errs, &ValidationError{Field: "polling.interval", Message: "must be positive"})
	}
	if c.Polling.Deadline <= 0 {
		errs = append(errs, &ValidationError{Field: "polling.deadline", Message: "must be positive"})
	}
	if c.Polling.DeviceInitDeadline <= 0 {
		errs = append(errs, &ValidationError{Field: "polling.device_init_deadline", Message: "must be positive"})
	}
	if c.Polling.WaterLimitPPM < 0 {
		errs = append(errs, &ValidationError{Field: "polling.water_limit_ppm", Message: "must not be negative"})
	}
	if c.Polling.O2LimitPPM < 0 {
		errs = append(errs, &ValidationError{Field: "polling.o2_limit_ppm", Message: "must not be negative"})
	}

	if c.Sink.Dir == "" {
		errs = append(errs, &ValidationError{Field: "sink.dir", Message: "must not be empty"})
	}
	if c.Sink.RetentionDays < 0 {
		errs = append(errs, &ValidationError{Field: "sink.retention_days", Message: "must not be negative"})
	}

	if c.Notifier.Enabled && c.Notifier.Token == "" {
		errs = append(errs, &ValidationError{
			Field:   "notifier.token",
			Message: fmt.Sprintf("notifier is enabled but env var %q is empty", c.Notifier.TokenEnv),
		})
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)})
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, &ValidationError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)})
	}

	if c.API.Enabled && c.API.ListenAddr == "" {
		errs = append(errs, &ValidationError{Field: "api.listen_addr", Message: "must not be empty when api is enabled"})
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
}
