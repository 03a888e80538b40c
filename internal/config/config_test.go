package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9100", cfg.Port)
	require.Equal(t, 165000, cfg.SettleDelayMs)
	require.Equal(t, 20, cfg.RetryMaxAttempts)
	require.True(t, cfg.BannerEnabled)
	require.Equal(t, 5*time.Second, cfg.DeviceTimeout())
	require.Equal(t, 3, cfg.ActivityRetryMaxAttempts)
	require.Equal(t, 5000, cfg.ActivityTimeoutMs)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9200")
	t.Setenv("HOLD_DURATION_MS", "2500")
	t.Setenv("BANNER_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9200", cfg.Port)
	require.Equal(t, 2500, cfg.HoldDurationMs)
	require.False(t, cfg.BannerEnabled)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("PORT: \"9300\"\nSETTLE_DELAY_MS: 1000\n"), 0o600))
	t.Setenv("ROOM_COMBINE_CONFIG", path)
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9300", cfg.Port)
	require.Equal(t, 1000, cfg.SettleDelayMs)
}

func TestLoad_ShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsNonPositiveHold(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	for _, value := range []string{"0", "-5"} {
		t.Setenv("HOLD_DURATION_MS", value)
		_, err := Load()
		require.ErrorContains(t, err, "HOLD_DURATION_MS", value)
	}
}

func TestLoad_RejectsUnboundedActivityCheck(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	t.Setenv("ACTIVITY_RETRY_MAX_ATTEMPTS", "0")
	_, err := Load()
	require.ErrorContains(t, err, "ACTIVITY_RETRY_MAX_ATTEMPTS")

	t.Setenv("ACTIVITY_RETRY_MAX_ATTEMPTS", "2")
	t.Setenv("ACTIVITY_TIMEOUT_MS", "0")
	_, err = Load()
	require.ErrorContains(t, err, "ACTIVITY_TIMEOUT_MS")
}

func TestMillis(t *testing.T) {
	require.Equal(t, 1500*time.Millisecond, Millis(1500))
}
