package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthline/corestation/pkg/layout"
)

func writeConfigDir(t *testing.T, yamlBody, envBody string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlBody), 0o644))
	if envBody != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(envBody), 0o644))
	}
	return dir
}

const baseYAML = `
station:
  base_url: "https://station.local"
  timeout_seconds: 20
polling:
  interval_seconds: 2
`

func TestLoadAppliesYAMLOverDefaults(t *testing.T) {
	dir := writeConfigDir(t, baseYAML, "STATION_USERNAME=admin\nSTATION_PASSWORD=secret\n")
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "https://station.local", cfg.Station.BaseURL)
	assert.Equal(t, 20_000_000_000, int(cfg.Station.Timeout)) // 20s in ns, avoids importing time twice
	assert.Equal(t, 2_000_000_000, int(cfg.Polling.Interval))
	// untouched defaults survive
	assert.Equal(t, 50.0, cfg.Polling.WaterLimitPPM)
	assert.Equal(t, "./data", cfg.Sink.Dir)
}

func TestLoadPreservesExplicitFalseBooleanOverride(t *testing.T) {
	yamlBody := `
station:
  base_url: "https://station.local"
  verify_ssl: false
`
	dir := writeConfigDir(t, yamlBody, "STATION_USERNAME=admin\nSTATION_PASSWORD=secret\n")
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.False(t, cfg.Station.VerifySSL, "explicit false must survive the merge, not be swallowed by mergo's zero-value skip")
}

func TestLoadResolvesEnvOverrides(t *testing.T) {
	// Earlier tests loaded .env files that set these variables in the
	// process environment, and godotenv.Load never overrides a variable that
	// is already set; unset them so this test's .env values are the ones read.
	for _, key := range []string{"STATION_USERNAME", "STATION_PASSWORD", "SLACK_BOT_TOKEN"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	dir := writeConfigDir(t, baseYAML, "STATION_USERNAME=bot\nSTATION_PASSWORD=hunter2\nSLACK_BOT_TOKEN=xoxb-test\n")
	yamlWithNotifier := baseYAML + "\nnotifier:\n  enabled: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlWithNotifier), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "bot", cfg.Station.Username)
	assert.Equal(t, "hunter2", cfg.Station.Password)
	assert.True(t, cfg.Notifier.Enabled)
	assert.Equal(t, "xoxb-test", cfg.Notifier.Token)
}

func TestLoadMergesTraySpecsWithoutMutatingBuiltinTable(t *testing.T) {
	yamlWithTray := baseYAML + `
tray_specs:
  "999000001":
    display_name: "custom 50 mL tray"
    cols: 2
    rows: 2
    media_code: 999000002
    media_phase: "volume"
    default_unit: "mL"
`
	dir := writeConfigDir(t, yamlWithTray, "STATION_USERNAME=admin\nSTATION_PASSWORD=secret\n")
	builtinCountBefore := len(layout.BuiltinTraySpecs)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Len(t, layout.BuiltinTraySpecs, builtinCountBefore, "builtin table must not be mutated")
	assert.Contains(t, cfg.TraySpecs, layout.ReagentBottleTray125ML, "builtin entries must still be present")

	custom, ok := cfg.TraySpecs[layout.ResourceCode(999000001)]
	require.True(t, ok, "site override must be present in the merged table")
	assert.Equal(t, "custom 50 mL tray", custom.DisplayName)
	assert.Equal(t, layout.ResourceCode(999000002), custom.MediaCode)
}

func TestLoadFailsValidationWhenBaseURLMissing(t *testing.T) {
	dir := writeConfigDir(t, "station:\n  timeout_seconds: 10\n", "STATION_USERNAME=admin\nSTATION_PASSWORD=secret\n")
	_, err := Load(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLoadFailsWhenConfigFileMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}
