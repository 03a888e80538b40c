package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestService_RecordAndQuery(t *testing.T) {
	service := NewService(setupTestDB(t), 0, nil)

	service.RecordRequest("", EventCombineRefused, LevelWarn, "", "node2", "Node 2 is in a call", map[string]any{"scope": "All"})
	service.RecordRequest("", EventStateChanged, LevelInfo, "op-1", "", "Split -> CombinedAll", nil)

	events, total, hasMore, err := service.QueryEvents(EventQueryFilters{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.True(t, hasMore)
	require.Len(t, events, 1)
	require.True(t, service.IsHealthy())
}

func TestService_RecordRequestKeepsRequestID(t *testing.T) {
	service := NewService(setupTestDB(t), 0, nil)

	service.RecordRequest("req-42", EventCombineRequested, LevelInfo, "", "", "Combine with Room 2?", nil)
	service.RecordRequest("", EventSystemStartup, LevelInfo, "", "", "started", nil)

	requested, startup := string(EventCombineRequested), string(EventSystemStartup)
	events, _, _, err := service.QueryEvents(EventQueryFilters{Type: &requested})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].RequestID)
	require.Equal(t, "req-42", *events[0].RequestID)

	events, _, _, err = service.QueryEvents(EventQueryFilters{Type: &startup})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Nil(t, events[0].RequestID)
}

func TestService_GetEvent_NotFound(t *testing.T) {
	service := NewService(setupTestDB(t), 0, nil)

	_, err := service.GetEvent("nope")
	var notFound *EventNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestService_PruneJobStartStop(t *testing.T) {
	service := NewService(setupTestDB(t), 7, nil)
	service.StartPruneJob()
	service.StopPruneJob()
	service.StopPruneJob()
}

func TestRoutes_QueryEvents(t *testing.T) {
	service := NewService(setupTestDB(t), 0, nil)
	service.RecordRequest("", EventOperationStep, LevelInfo, "op-9", "node1", "vlan applied", nil)
	service.RecordRequest("", EventSystemStartup, LevelInfo, "", "", "started", nil)

	router := chi.NewRouter()
	RegisterRoutes(router, service)

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/events?operation_id=op-9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Object string           `json:"object"`
		Data   []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "list", body.Object)
	require.Len(t, body.Data, 1)
	require.Equal(t, "vlan applied", body.Data[0]["message"])
	correlation := body.Data[0]["correlation"].(map[string]any)
	require.Equal(t, "node1", correlation["node_id"])
}

func TestRoutes_InvalidLevel(t *testing.T) {
	router := chi.NewRouter()
	RegisterRoutes(router, NewService(setupTestDB(t), 0, nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/events?level=LOUD", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutes_GetEventNotFound(t *testing.T) {
	router := chi.NewRouter()
	RegisterRoutes(router, NewService(setupTestDB(t), 0, nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/events/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "EVENT_NOT_FOUND")
}
