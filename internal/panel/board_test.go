package panel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestBoard_PromptLifecycle(t *testing.T) {
	board := NewBoard()
	board.ShowPrompt(Prompt{ID: "c-1", Kind: "combine", Scope: "All", Message: "Combine all rooms?"})

	board.ClearPrompt("other")
	require.NotNil(t, board.Snapshot().Prompt)

	board.ClearPrompt("c-1")
	require.Nil(t, board.Snapshot().Prompt)
}

func TestBoard_ProgressClamped(t *testing.T) {
	board := NewBoard()
	board.SetProgress(140)
	require.Equal(t, Progress{Visible: true, Percent: 100}, board.Snapshot().Progress)

	board.SetProgress(-3)
	require.Equal(t, 0, board.Snapshot().Progress.Percent)

	board.ResetProgress()
	require.False(t, board.Snapshot().Progress.Visible)
}

func TestBoard_SurfacesAndBanner(t *testing.T) {
	board := NewBoard()
	require.Equal(t, SurfaceIdle, board.Snapshot().Surface)

	board.ShowBanner("Combined with Node 1")
	board.ShowInCallControls()
	snapshot := board.Snapshot()
	require.Equal(t, SurfaceInCall, snapshot.Surface)
	require.Equal(t, "Combined with Node 1", snapshot.Banner)

	board.ClearBanner()
	board.ShowIdleSurfaces()
	snapshot = board.Snapshot()
	require.Empty(t, snapshot.Banner)
	require.Equal(t, SurfaceIdle, snapshot.Surface)
}

func TestBoard_SnapshotIsCopy(t *testing.T) {
	board := NewBoard()
	board.Alert("Node busy", "Node 2 is in a call")

	snapshot := board.Snapshot()
	snapshot.Alert.Text = "changed"
	require.Equal(t, "Node 2 is in a call", board.Snapshot().Alert.Text)
}

func TestGetPanel(t *testing.T) {
	board := NewBoard()
	board.ShowPrompt(Prompt{ID: "s-1", Kind: "split", Message: "Split rooms?", ExpiresAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)})
	board.SetProgress(40)

	router := chi.NewRouter()
	RegisterRoutes(router, board)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/panel", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "panel", body["object"])
	require.Equal(t, "idle", body["surface"])
	require.Nil(t, body["alert"])

	prompt := body["prompt"].(map[string]any)
	require.Equal(t, "s-1", prompt["id"])
	require.Equal(t, "2026-01-02T03:04:05Z", prompt["expires_at"])

	progress := body["progress"].(map[string]any)
	require.Equal(t, float64(40), progress["percent"])
}
