package panel

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/room-combine-go/internal/api"
)

// RegisterRoutes wires panel routes to the router.
func RegisterRoutes(router chi.Router, board *Board) {
	router.Method(http.MethodGet, "/v1/panel", api.Handler(getPanel(board)))
}

// GET /v1/panel
func getPanel(board *Board) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteResource(w, http.StatusOK, formatSnapshot(board.Snapshot()))
	}
}

func formatSnapshot(snapshot Snapshot) map[string]any {
	result := map[string]any{
		"object":  "panel",
		"surface": string(snapshot.Surface),
		"progress": map[string]any{
			"visible": snapshot.Progress.Visible,
			"percent": snapshot.Progress.Percent,
		},
		"banner": nil,
		"prompt": nil,
		"alert":  nil,
	}
	if snapshot.Banner != "" {
		result["banner"] = snapshot.Banner
	}
	if snapshot.Prompt != nil {
		result["prompt"] = map[string]any{
			"id":         snapshot.Prompt.ID,
			"kind":       snapshot.Prompt.Kind,
			"scope":      snapshot.Prompt.Scope,
			"message":    snapshot.Prompt.Message,
			"expires_at": snapshot.Prompt.ExpiresAt.UTC().Format(time.RFC3339),
		}
	}
	if snapshot.Alert != nil {
		result["alert"] = map[string]any{
			"title":     snapshot.Alert.Title,
			"text":      snapshot.Alert.Text,
			"raised_at": snapshot.Alert.RaisedAt.Format(time.RFC3339),
		}
	}
	return result
}
