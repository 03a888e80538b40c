package audit

import (
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/room-combine-go/internal/db"
)

func setupTestDB(t *testing.T) *db.DBPair {
	t.Helper()
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	return dbPair
}

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(setupTestDB(t))
}

func TestRepository_InsertEvent(t *testing.T) {
	repo := setupTestRepo(t)

	requestID := "req-123"
	operationID := "op-456"
	input := WriteEventInput{
		Type:        string(EventStateChanged),
		RequestID:   &requestID,
		OperationID: &operationID,
		Message:     "Split -> CombinedAll",
		Payload: map[string]any{
			"scope": "All",
		},
	}

	event, err := repo.InsertEvent(input)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.NotEmpty(t, event.EventID)
	require.Equal(t, string(EventStateChanged), event.Type)
	require.Equal(t, EventLevelInfo, event.Level)
	require.Equal(t, "req-123", *event.RequestID)
	require.Equal(t, "op-456", *event.OperationID)
	require.Nil(t, event.NodeID)
	require.Equal(t, "All", event.Payload["scope"])
	require.False(t, event.Timestamp.IsZero())
}

func TestRepository_InsertEvent_NilPayload(t *testing.T) {
	repo := setupTestRepo(t)

	event, err := repo.InsertEvent(WriteEventInput{Type: string(EventSystemStartup), Message: "No payload"})
	require.NoError(t, err)
	require.NotNil(t, event.Payload)
	require.Empty(t, event.Payload)
}

func TestRepository_GetEvent_NotFound(t *testing.T) {
	repo := setupTestRepo(t)

	event, err := repo.GetEvent("missing")
	require.NoError(t, err)
	require.Nil(t, event)
}

func TestRepository_QueryEvents_Filters(t *testing.T) {
	repo := setupTestRepo(t)

	node2 := "node2"
	opA := "op-a"
	warn := EventLevelWarn

	_, err := repo.InsertEvent(WriteEventInput{Type: string(EventCombineRefused), Level: &warn, NodeID: &node2, Message: "busy"})
	require.NoError(t, err)
	_, err = repo.InsertEvent(WriteEventInput{Type: string(EventOperationStep), OperationID: &opA, NodeID: &node2, Message: "vlan"})
	require.NoError(t, err)
	_, err = repo.InsertEvent(WriteEventInput{Type: string(EventOperationStep), OperationID: &opA, Message: "signal"})
	require.NoError(t, err)

	stepType := string(EventOperationStep)
	events, total, err := repo.QueryEvents(EventQueryFilters{Type: &stepType})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, events, 2)

	events, total, err = repo.QueryEvents(EventQueryFilters{Level: &warn})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "busy", events[0].Message)

	events, total, err = repo.QueryEvents(EventQueryFilters{OperationID: &opA, NodeID: &node2})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "vlan", events[0].Message)
}

func TestRepository_QueryEvents_WithDateFilters(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.InsertEvent(WriteEventInput{Type: string(EventSystemStartup), Message: "M1"})
	require.NoError(t, err)

	startDate := time.Now().UTC().Add(-1 * time.Hour).Format(time.RFC3339)
	endDate := time.Now().UTC().Add(1 * time.Hour).Format(time.RFC3339)
	events, total, err := repo.QueryEvents(EventQueryFilters{StartDate: &startDate, EndDate: &endDate})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, 1, total)

	oldStartDate := "2020-01-01T00:00:00Z"
	oldEndDate := "2020-01-02T00:00:00Z"
	events, total, err = repo.QueryEvents(EventQueryFilters{StartDate: &oldStartDate, EndDate: &oldEndDate})
	require.NoError(t, err)
	require.Len(t, events, 0)
	require.Equal(t, 0, total)
}

func TestRepository_QueryEvents_WithPagination(t *testing.T) {
	repo := setupTestRepo(t)

	for i := 0; i < 10; i++ {
		_, err := repo.InsertEvent(WriteEventInput{Type: string(EventSystemStartup), Message: "M"})
		require.NoError(t, err)
	}

	events, total, err := repo.QueryEvents(EventQueryFilters{Limit: 3, Offset: 0})
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, 10, total)

	events, _, err = repo.QueryEvents(EventQueryFilters{Limit: 3, Offset: 9})
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestRepository_Prune(t *testing.T) {
	dbPair := setupTestDB(t)
	repo := NewRepository(dbPair)

	_, err := dbPair.Writer().Exec(`
		INSERT INTO audit_events (event_id, timestamp, type, level, message, payload)
		VALUES ('old', '2020-01-01T00:00:00Z', 'SYSTEM_STARTUP', 'INFO', 'old', '{}')
	`)
	require.NoError(t, err)
	_, err = repo.InsertEvent(WriteEventInput{Type: string(EventSystemStartup), Message: "fresh"})
	require.NoError(t, err)

	deleted, err := repo.Prune(time.Now().UTC().AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	events, total, err := repo.QueryEvents(EventQueryFilters{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "fresh", events[0].Message)
}
