package system

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/room-combine-go/internal/api"
	"github.com/strefethen/room-combine-go/internal/apperrors"
)

// RegisterRoutes wires system routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/system/info", api.Handler(getSystemInfo(service)))
}

// getSystemInfo handles GET /v1/system/info
func getSystemInfo(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		info, err := service.GetSystemInfo()
		if err != nil {
			return apperrors.NewInternalError("Failed to get system info")
		}

		return api.WriteResource(w, http.StatusOK, formatSystemInfo(info))
	}
}

func formatSystemInfo(info *SystemInfo) map[string]any {
	result := map[string]any{
		"object":                 "system_info",
		"version":                info.Version,
		"uptime_seconds":         info.Uptime,
		"memory_mb":              info.MemoryUsageMB,
		"sqlite_connected":       info.SQLiteConnected,
		"zone_monitor_enabled":   info.ZoneMonitorEnabled,
		"zone_monitor_connected": info.ZoneMonitorConnected,
		"next_split_reminder":    nil,
		"attention_items":        formatAttentionItems(info.AttentionItems),
	}
	if info.NextSplitReminder != nil {
		result["next_split_reminder"] = info.NextSplitReminder.Format(time.RFC3339)
	}
	return result
}

// formatAttentionItems formats a slice of AttentionItem for JSON response.
func formatAttentionItems(items []AttentionItem) []map[string]any {
	result := make([]map[string]any, 0, len(items))
	for _, item := range items {
		formatted := map[string]any{
			"type":     item.Type,
			"severity": item.Severity,
			"message":  item.Message,
		}
		if item.Details != nil {
			formatted["details"] = item.Details
		}
		if item.ResolveHint != "" {
			formatted["resolve_hint"] = item.ResolveHint
		}
		result = append(result, formatted)
	}
	return result
}
