package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3000*time.Second, cfg.Vendor.TokenTTL)
	assert.Equal(t, 5.0, cfg.PollIntervalSeconds)
	assert.False(t, cfg.SafeMode)
}

func TestLoad_NoFileNoEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Vendor.TokenTTL, cfg.Vendor.TokenTTL)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetd.yaml")
	content := `
vendor:
  base_url: https://dispatch.example.com
  app_id: app-1
poll_interval_seconds: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://dispatch.example.com", cfg.Vendor.BaseURL)
	assert.Equal(t, "app-1", cfg.Vendor.AppID)
	assert.Equal(t, 2.0, cfg.PollIntervalSeconds)
}

func TestLoad_MissingFileIsNotError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestApplyEnv_OverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vendor:\n  app_id: from-file\n"), 0o644))

	t.Setenv("AUTOX_APP_ID", "from-env")
	t.Setenv("SAFE_MODE", "true")
	t.Setenv("AUTOX_TOKEN_TTL_SECONDS", "60")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Vendor.AppID)
	assert.True(t, cfg.SafeMode)
	assert.Equal(t, 60*time.Second, cfg.Vendor.TokenTTL)
}

func TestValidate_FloorsPollInterval(t *testing.T) {
	cfg := Default()
	cfg.PollIntervalSeconds = 0.2
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1.0, cfg.PollIntervalSeconds)
}

func TestValidate_RejectsNonPositiveTokenTTL(t *testing.T) {
	cfg := Default()
	cfg.Vendor.TokenTTL = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate_RejectsEmptyDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = ""
	err := cfg.Validate()
	require.Error(t, err)
}

func TestApplyEnv_RobotIDsAndMetricsAddr(t *testing.T) {
	t.Setenv("FLEET_ROBOT_IDS", "r1, r2 ,,r3")
	t.Setenv("FLEET_METRICS_ADDR", ":9999")
	t.Setenv("FLEET_TICK_INTERVAL_SECONDS", "0.5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, cfg.RobotIDs)
	assert.Equal(t, ":9999", cfg.MetricsAddr)
	assert.Equal(t, 0.5, cfg.TickIntervalSeconds)
}

func TestValidate_DefaultsTickInterval(t *testing.T) {
	cfg := Default()
	cfg.TickIntervalSeconds = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2.0, cfg.TickIntervalSeconds)
}

func TestParseBool(t *testing.T) {
	assert.True(t, parseBool("true", false))
	assert.True(t, parseBool("1", false))
	assert.False(t, parseBool("0", true))
	assert.False(t, parseBool("not-a-bool", false))
}
