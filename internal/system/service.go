package system

import (
	"database/sql"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Version is the service version, set at build time or defaulted.
var Version = "1.0.0"

// MonitorStatus reports the zone monitor session.
type MonitorStatus interface {
	Connected() bool
}

// ReminderStatus reports the split reminder schedule.
type ReminderStatus interface {
	Next(t time.Time) time.Time
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Service provides system information and attention items.
// Uses reader connection only as this service only performs SELECT queries.
type Service struct {
	logger    *zerolog.Logger
	reader    *sql.DB
	monitor   MonitorStatus
	reminder  ReminderStatus
	zonesURL  string
	startTime time.Time
	now       func() time.Time
}

// NewService creates a new system service. reminder may be nil when no
// split reminder is scheduled.
func NewService(dbPair DBPair, monitor MonitorStatus, zonesURL string, reminder ReminderStatus, logger *zerolog.Logger) *Service {
	if logger == nil {
		logger = &log.Logger
	}
	componentLogger := logger.With().Str("component", "system").Logger()

	return &Service{
		logger:    &componentLogger,
		reader:    dbPair.Reader(),
		monitor:   monitor,
		reminder:  reminder,
		zonesURL:  zonesURL,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// SystemInfo holds system information.
type SystemInfo struct {
	Version              string          `json:"version"`
	Uptime               int64           `json:"uptime_seconds"`
	MemoryUsageMB        float64         `json:"memory_mb"`
	SQLiteConnected      bool            `json:"sqlite_connected"`
	ZoneMonitorEnabled   bool            `json:"zone_monitor_enabled"`
	ZoneMonitorConnected bool            `json:"zone_monitor_connected"`
	NextSplitReminder    *time.Time      `json:"next_split_reminder,omitempty"`
	AttentionItems       []AttentionItem `json:"attention_items"`
}

// AttentionItem represents an item that needs operator attention.
type AttentionItem struct {
	Type        string         `json:"type"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	ResolveHint string         `json:"resolve_hint,omitempty"`
}

// GetSystemInfo returns current system information.
func (s *Service) GetSystemInfo() (*SystemInfo, error) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sqliteConnected := true
	if err := s.reader.Ping(); err != nil {
		sqliteConnected = false
	}

	info := &SystemInfo{
		Version:            Version,
		Uptime:             int64(s.now().Sub(s.startTime).Seconds()),
		MemoryUsageMB:      float64(memStats.Alloc) / 1024 / 1024,
		SQLiteConnected:    sqliteConnected,
		ZoneMonitorEnabled: s.zonesURL != "",
	}
	if s.monitor != nil {
		info.ZoneMonitorConnected = s.monitor.Connected()
	}
	if s.reminder != nil {
		next := s.reminder.Next(s.now()).UTC()
		info.NextSplitReminder = &next
	}
	info.AttentionItems = s.checkAttentionItems(info)
	return info, nil
}

// checkAttentionItems checks for items that need operator attention.
func (s *Service) checkAttentionItems(info *SystemInfo) []AttentionItem {
	items := []AttentionItem{}

	if info.ZoneMonitorEnabled && !info.ZoneMonitorConnected {
		items = append(items, AttentionItem{
			Type:        "zone_monitor_disconnected",
			Severity:    "warning",
			Message:     "Zone monitor is not connected",
			Details:     map[string]any{"url": s.zonesURL},
			ResolveHint: "Camera switching is paused until the monitor reconnects",
		})
	}

	cutoff := s.now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)
	var failed, degraded int
	err := s.reader.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'FAILED' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'COMPLETED_DEGRADED' THEN 1 ELSE 0 END), 0)
		FROM operations
		WHERE started_at > ?
	`, cutoff).Scan(&failed, &degraded)
	if err != nil {
		s.logger.Warn().Err(err).Msg("operation health query failed")
	}
	if failed > 0 {
		items = append(items, AttentionItem{
			Type:     "failed_operations",
			Severity: "error",
			Message:  "Some combine or split operations failed",
			Details: map[string]any{
				"failed_count": failed,
				"time_window":  "24 hours",
			},
			ResolveHint: "Check the switch and node reachability, then review /v1/room/operations",
		})
	}
	if degraded > 0 {
		items = append(items, AttentionItem{
			Type:     "degraded_operations",
			Severity: "warning",
			Message:  "Some peripherals did not reconnect after a combine",
			Details: map[string]any{
				"degraded_count": degraded,
				"time_window":    "24 hours",
			},
			ResolveHint: "Check the missing microphones and touch panels listed on the operation",
		})
	}

	if !info.SQLiteConnected {
		items = append(items, AttentionItem{
			Type:        "database_unhealthy",
			Severity:    "critical",
			Message:     "Database connection is unhealthy",
			ResolveHint: "Check database file permissions and disk space",
		})
	}

	return items
}
