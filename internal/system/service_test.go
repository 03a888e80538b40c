package system

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/room-combine-go/internal/db"
	"github.com/strefethen/room-combine-go/internal/room"
)

type fakeMonitor bool

func (m fakeMonitor) Connected() bool { return bool(m) }

type fixedReminder time.Time

func (r fixedReminder) Next(time.Time) time.Time { return time.Time(r) }

func setupTestDB(t *testing.T) *db.DBPair {
	t.Helper()
	dbPair, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })
	return dbPair
}

func attentionTypes(items []AttentionItem) []string {
	types := make([]string, 0, len(items))
	for _, item := range items {
		types = append(types, item.Type)
	}
	return types
}

func TestGetSystemInfo_Healthy(t *testing.T) {
	next := time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)
	service := NewService(setupTestDB(t), fakeMonitor(true), "ws://zones.local/ws", fixedReminder(next), nil)

	info, err := service.GetSystemInfo()
	require.NoError(t, err)
	require.True(t, info.SQLiteConnected)
	require.True(t, info.ZoneMonitorEnabled)
	require.True(t, info.ZoneMonitorConnected)
	require.NotNil(t, info.NextSplitReminder)
	require.Equal(t, next, *info.NextSplitReminder)
	require.Empty(t, info.AttentionItems)
}

func TestGetSystemInfo_AttentionItems(t *testing.T) {
	dbPair := setupTestDB(t)
	ops := room.NewOperationsRepository(dbPair)

	failed, err := ops.Create(room.CreateOperationInput{Kind: room.OperationCombine, Scope: room.ScopeAll, From: room.Split, To: room.CombinedAll})
	require.NoError(t, err)
	message := "switch rejected"
	require.NoError(t, ops.Complete(failed.OperationID, room.OperationStatusFailed, nil, &message))

	degraded, err := ops.Create(room.CreateOperationInput{Kind: room.OperationCombine, Scope: room.ScopeNode1, From: room.Split, To: room.CombinedNode1})
	require.NoError(t, err)
	require.NoError(t, ops.Complete(degraded.OperationID, room.OperationStatusCompletedDegraded, []string{"mic:N1-MIC-B"}, nil))

	service := NewService(dbPair, fakeMonitor(false), "ws://zones.local/ws", nil, nil)
	info, err := service.GetSystemInfo()
	require.NoError(t, err)
	require.Nil(t, info.NextSplitReminder)
	require.Equal(t, []string{"zone_monitor_disconnected", "failed_operations", "degraded_operations"}, attentionTypes(info.AttentionItems))
}

func TestGetSystemInfo_MonitorDisabled(t *testing.T) {
	service := NewService(setupTestDB(t), fakeMonitor(false), "", nil, nil)

	info, err := service.GetSystemInfo()
	require.NoError(t, err)
	require.False(t, info.ZoneMonitorEnabled)
	require.Empty(t, info.AttentionItems)
}

func TestSystemInfoRoute(t *testing.T) {
	router := chi.NewRouter()
	RegisterRoutes(router, NewService(setupTestDB(t), fakeMonitor(true), "", nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/system/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"object":"system_info"`)
	require.Contains(t, rec.Body.String(), `"next_split_reminder":null`)
}
