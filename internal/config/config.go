package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the base server configuration.
type Config struct {
	Host                     string
	Port                     string
	SQLiteDBPath             string
	TopologyPath             string
	NodeEnv                  string
	AllowTestMode            bool
	LogLevel                 string
	JWTSecret                string
	JWTAccessTokenExpirySec  int
	JWTRefreshTokenExpirySec int

	// DeviceTimeoutMs bounds a single HTTP call to a codec or the switch.
	DeviceTimeoutMs int
	// DeviceInsecureTLS skips certificate verification. Codecs ship with
	// self-signed certificates.
	DeviceInsecureTLS bool

	ZoneMonitorURL string

	// Combine/split timing
	SettleDelayMs         int
	ProgressIntervalMs    int
	MigrationTimeoutMs    int
	PanelRepairDelayMs    int
	ConfirmationTimeoutMs int

	// Director timing. AudienceHoldMs only sets the audience deadline the
	// director reports; composition does not depend on it.
	HoldDurationMs int
	AudienceHoldMs int
	BannerEnabled  bool

	// Retry policy for switch and peer calls. RetryMaxAttempts 0 retries forever.
	RetryMaxAttempts int
	RetryInitialMs   int
	RetryMaxMs       int

	// Activity checks run before a combine and must answer quickly. The
	// whole check is bounded by ActivityTimeoutMs.
	ActivityRetryMaxAttempts int
	ActivityRetryInitialMs   int
	ActivityTimeoutMs        int

	SplitReminderCron  string
	AuditRetentionDays int
}

// Load reads configuration from an optional YAML file and environment
// variables, environment taking precedence.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("ROOM_COMBINE_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Info().Str("path", path).Msg("loaded config file")
	}

	cfg := Config{
		Host:                     v.GetString("HOST"),
		Port:                     v.GetString("PORT"),
		SQLiteDBPath:             v.GetString("SQLITE_DB_PATH"),
		TopologyPath:             v.GetString("TOPOLOGY_PATH"),
		NodeEnv:                  v.GetString("NODE_ENV"),
		AllowTestMode:            v.GetBool("ALLOW_TEST_MODE"),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		JWTSecret:                v.GetString("JWT_SECRET"),
		JWTAccessTokenExpirySec:  v.GetInt("JWT_ACCESS_TOKEN_EXPIRY"),
		JWTRefreshTokenExpirySec: v.GetInt("JWT_REFRESH_TOKEN_EXPIRY"),
		DeviceTimeoutMs:          v.GetInt("DEVICE_TIMEOUT_MS"),
		DeviceInsecureTLS:        v.GetBool("DEVICE_INSECURE_TLS"),
		ZoneMonitorURL:           v.GetString("ZONE_MONITOR_URL"),
		SettleDelayMs:            v.GetInt("SETTLE_DELAY_MS"),
		ProgressIntervalMs:       v.GetInt("PROGRESS_INTERVAL_MS"),
		MigrationTimeoutMs:       v.GetInt("MIGRATION_TIMEOUT_MS"),
		PanelRepairDelayMs:       v.GetInt("PANEL_REPAIR_DELAY_MS"),
		ConfirmationTimeoutMs:    v.GetInt("CONFIRMATION_TIMEOUT_MS"),
		HoldDurationMs:           v.GetInt("HOLD_DURATION_MS"),
		AudienceHoldMs:           v.GetInt("AUDIENCE_HOLD_MS"),
		BannerEnabled:            v.GetBool("BANNER_ENABLED"),
		RetryMaxAttempts:         v.GetInt("RETRY_MAX_ATTEMPTS"),
		RetryInitialMs:           v.GetInt("RETRY_INITIAL_MS"),
		RetryMaxMs:               v.GetInt("RETRY_MAX_MS"),
		ActivityRetryMaxAttempts: v.GetInt("ACTIVITY_RETRY_MAX_ATTEMPTS"),
		ActivityRetryInitialMs:   v.GetInt("ACTIVITY_RETRY_INITIAL_MS"),
		ActivityTimeoutMs:        v.GetInt("ACTIVITY_TIMEOUT_MS"),
		SplitReminderCron:        strings.TrimSpace(v.GetString("SPLIT_REMINDER_CRON")),
		AuditRetentionDays:       v.GetInt("AUDIT_RETENTION_DAYS"),
	}

	if len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.RetryMaxAttempts < 0 {
		return Config{}, fmt.Errorf("RETRY_MAX_ATTEMPTS must not be negative")
	}
	if cfg.HoldDurationMs <= 0 {
		return Config{}, fmt.Errorf("HOLD_DURATION_MS must be positive")
	}
	if cfg.ActivityRetryMaxAttempts < 1 {
		return Config{}, fmt.Errorf("ACTIVITY_RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.ActivityTimeoutMs <= 0 {
		return Config{}, fmt.Errorf("ACTIVITY_TIMEOUT_MS must be positive")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "9100")
	v.SetDefault("SQLITE_DB_PATH", "./data/room-combine.db")
	v.SetDefault("TOPOLOGY_PATH", "./data/topology.yaml")
	v.SetDefault("NODE_ENV", "development")
	v.SetDefault("ALLOW_TEST_MODE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ACCESS_TOKEN_EXPIRY", 3600)
	v.SetDefault("JWT_REFRESH_TOKEN_EXPIRY", 2592000)
	v.SetDefault("DEVICE_TIMEOUT_MS", 5000)
	v.SetDefault("DEVICE_INSECURE_TLS", true)
	v.SetDefault("ZONE_MONITOR_URL", "")
	v.SetDefault("SETTLE_DELAY_MS", 165000)
	v.SetDefault("PROGRESS_INTERVAL_MS", 1000)
	v.SetDefault("MIGRATION_TIMEOUT_MS", 300000)
	v.SetDefault("PANEL_REPAIR_DELAY_MS", 10000)
	v.SetDefault("CONFIRMATION_TIMEOUT_MS", 60000)
	v.SetDefault("HOLD_DURATION_MS", 5000)
	v.SetDefault("AUDIENCE_HOLD_MS", 15000)
	v.SetDefault("BANNER_ENABLED", true)
	v.SetDefault("RETRY_MAX_ATTEMPTS", 20)
	v.SetDefault("RETRY_INITIAL_MS", 1000)
	v.SetDefault("RETRY_MAX_MS", 30000)
	v.SetDefault("ACTIVITY_RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("ACTIVITY_RETRY_INITIAL_MS", 250)
	v.SetDefault("ACTIVITY_TIMEOUT_MS", 5000)
	v.SetDefault("SPLIT_REMINDER_CRON", "")
	v.SetDefault("AUDIT_RETENTION_DAYS", 90)
}

// DeviceTimeout returns DeviceTimeoutMs as a duration.
func (c Config) DeviceTimeout() time.Duration {
	return time.Duration(c.DeviceTimeoutMs) * time.Millisecond
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
