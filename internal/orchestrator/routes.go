package orchestrator

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/room-combine-go/internal/api"
	"github.com/strefethen/room-combine-go/internal/apperrors"
	"github.com/strefethen/room-combine-go/internal/director"
	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/topology"
)

const maxTopologyBytes = 1 << 20

// RegisterRoutes wires room, director and topology routes to the router.
func RegisterRoutes(router chi.Router, o *Orchestrator) {
	// Room
	router.Method(http.MethodGet, "/v1/room", api.Handler(getRoom(o)))
	router.Method(http.MethodPost, "/v1/room/combine", api.Handler(requestCombine(o)))
	router.Method(http.MethodPost, "/v1/room/split", api.Handler(requestSplit(o)))
	router.Method(http.MethodPost, "/v1/room/confirmations/{confirmation_id}/confirm", api.Handler(confirm(o)))
	router.Method(http.MethodDelete, "/v1/room/confirmations/{confirmation_id}", api.Handler(cancelConfirmation(o)))

	// Operations
	router.Method(http.MethodGet, "/v1/room/operations", api.Handler(listOperations(o)))
	router.Method(http.MethodGet, "/v1/room/operations/{operation_id}", api.Handler(getOperation(o)))

	// Director overrides
	router.Method(http.MethodPut, "/v1/director/automation", api.Handler(setAutomation(o)))
	router.Method(http.MethodPut, "/v1/director/ducking", api.Handler(setDucking(o)))
	router.Method(http.MethodPut, "/v1/director/layout", api.Handler(setLayout(o)))

	// Topology
	router.Method(http.MethodGet, "/v1/topology", api.Handler(getTopology(o)))
	router.Method(http.MethodPut, "/v1/topology", api.Handler(replaceTopology(o)))
}

// GET /v1/room
func getRoom(o *Orchestrator) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		status, err := o.Status(r.Context())
		if err != nil {
			return mapError(err)
		}
		return api.WriteResource(w, http.StatusOK, formatStatus(status))
	}
}

type combineRequest struct {
	Scope string `json:"scope"`
}

// POST /v1/room/combine
func requestCombine(o *Orchestrator) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var input combineRequest
		if err := api.DecodeJSON(r, &input); err != nil {
			return err
		}
		scope, err := room.ParseScope(input.Scope)
		if err != nil {
			return apperrors.NewAppError(apperrors.ErrorCodeScopeInvalid, "scope must be All, Node1 or Node2", 400, map[string]any{
				"scope": input.Scope,
			}, nil)
		}

		conf, err := o.RequestCombine(r.Context(), scope)
		if err != nil {
			return mapError(err)
		}
		return api.WriteAction(w, http.StatusAccepted, formatConfirmation(conf))
	}
}

// POST /v1/room/split
func requestSplit(o *Orchestrator) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		conf, err := o.RequestSplit(r.Context())
		if err != nil {
			return mapError(err)
		}
		return api.WriteAction(w, http.StatusAccepted, formatConfirmation(conf))
	}
}

// POST /v1/room/confirmations/{confirmation_id}/confirm
func confirm(o *Orchestrator) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		op, err := o.Confirm(r.Context(), chi.URLParam(r, "confirmation_id"))
		if err != nil {
			return mapError(err)
		}
		return api.WriteAction(w, http.StatusAccepted, formatOperation(op))
	}
}

// DELETE /v1/room/confirmations/{confirmation_id}
func cancelConfirmation(o *Orchestrator) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "confirmation_id")
		if err := o.Cancel(r.Context(), id); err != nil {
			return mapError(err)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":    "confirmation",
			"id":        id,
			"cancelled": true,
		})
	}
}

// GET /v1/room/operations
func listOperations(o *Orchestrator) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		limit := 20
		offset := 0

		if l := r.URL.Query().Get("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
				limit = parsed
			}
		}
		if off := r.URL.Query().Get("offset"); off != "" {
			if parsed, err := strconv.Atoi(off); err == nil && parsed >= 0 {
				offset = parsed
			}
		}

		ops, total, err := o.ListOperations(limit, offset)
		if err != nil {
			return apperrors.NewInternalError("Failed to list operations")
		}

		formatted := make([]map[string]any, 0, len(ops))
		for _, op := range ops {
			formatted = append(formatted, formatOperation(&op))
		}

		hasMore := offset+len(ops) < total
		return api.WriteList(w, "/v1/room/operations", formatted, hasMore)
	}
}

// GET /v1/room/operations/{operation_id}
func getOperation(o *Orchestrator) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "operation_id")
		op, err := o.GetOperation(id)
		if err != nil {
			return apperrors.NewInternalError("Failed to get operation")
		}
		if op == nil {
			return apperrors.NewAppError(apperrors.ErrorCodeOperationNotFound, "Operation not found", 404, map[string]any{
				"operation_id": id,
			}, nil)
		}
		return api.WriteResource(w, http.StatusOK, formatOperation(op))
	}
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func decodeToggle(r *http.Request) (bool, error) {
	var input toggleRequest
	if err := api.DecodeJSON(r, &input); err != nil {
		return false, err
	}
	if input.Enabled == nil {
		return false, apperrors.NewValidationError("enabled is required", nil)
	}
	return *input.Enabled, nil
}

// PUT /v1/director/automation
func setAutomation(o *Orchestrator) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		enabled, err := decodeToggle(r)
		if err != nil {
			return err
		}
		status, err := o.SetAutomation(r.Context(), enabled)
		if err != nil {
			return mapError(err)
		}
		return api.WriteResource(w, http.StatusOK, formatDirector(status))
	}
}

// PUT /v1/director/ducking
func setDucking(o *Orchestrator) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		enabled, err := decodeToggle(r)
		if err != nil {
			return err
		}
		status, err := o.SetDucking(r.Context(), enabled)
		if err != nil {
			return mapError(err)
		}
		return api.WriteResource(w, http.StatusOK, formatDirector(status))
	}
}

type layoutRequest struct {
	Layout string `json:"layout"`
}

// PUT /v1/director/layout
func setLayout(o *Orchestrator) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var input layoutRequest
		if err := api.DecodeJSON(r, &input); err != nil {
			return err
		}
		layout, err := director.ParseLayout(input.Layout)
		if err != nil {
			return mapError(err)
		}
		status, err := o.SetLayout(r.Context(), layout)
		if err != nil {
			return mapError(err)
		}
		return api.WriteResource(w, http.StatusOK, formatDirector(status))
	}
}

// GET /v1/topology
func getTopology(o *Orchestrator) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		topo, err := o.Topology(r.Context())
		if err != nil {
			return mapError(err)
		}
		return api.WriteResource(w, http.StatusOK, topologyResource{Object: "topology", Topology: topo})
	}
}

// PUT /v1/topology takes a YAML document.
func replaceTopology(o *Orchestrator) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxTopologyBytes))
		if err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		topo, err := topology.Parse(body)
		if err != nil {
			return apperrors.NewAppError(apperrors.ErrorCodeTopologyInvalid, err.Error(), 400, nil, nil)
		}

		replaced, err := o.ReplaceTopology(r.Context(), topo)
		if err != nil {
			return mapError(err)
		}
		return api.WriteResource(w, http.StatusOK, topologyResource{Object: "topology", Topology: replaced})
	}
}

type topologyResource struct {
	Object string `json:"object"`
	*topology.Topology
}

// mapError converts orchestrator errors into API errors.
func mapError(err error) error {
	var busy *NodeBusyError
	switch {
	case errors.As(err, &busy):
		nodes := make([]string, 0, len(busy.Nodes))
		for _, node := range busy.Nodes {
			nodes = append(nodes, string(node.Node))
		}
		details := map[string]any{"nodes": nodes}
		if busy.Unreachable() {
			return apperrors.NewAppError(apperrors.ErrorCodeNodeUnreachable, busy.Error(), 503, details, nil)
		}
		return apperrors.NewAppError(apperrors.ErrorCodeNodeBusy, busy.Error(), 409, details, nil)
	case errors.Is(err, ErrAlreadySplit), errors.Is(err, ErrNotSplit), errors.Is(err, ErrTopologyChangeRejected):
		return apperrors.NewAppError(apperrors.ErrorCodeRoomStateConflict, err.Error(), 409, nil, nil)
	case errors.Is(err, ErrOperationInProgress):
		return apperrors.NewAppError(apperrors.ErrorCodeOperationInProgress, err.Error(), 409, nil, nil)
	case errors.Is(err, ErrPortsUnresolved):
		return apperrors.NewAppError(apperrors.ErrorCodePreconditionFailed, err.Error(), 412, nil, nil)
	case errors.Is(err, ErrInvalidScope):
		return apperrors.NewAppError(apperrors.ErrorCodeScopeInvalid, err.Error(), 400, nil, nil)
	case errors.Is(err, ErrConfirmationNotFound):
		return apperrors.NewAppError(apperrors.ErrorCodeConfirmationNotFound, "Confirmation not found", 404, nil, nil)
	case errors.Is(err, ErrConfirmationExpired):
		return apperrors.NewAppError(apperrors.ErrorCodeConfirmationExpired, "Confirmation expired", 410, nil, nil)
	case errors.Is(err, director.ErrUnknownLayout):
		return apperrors.NewAppError(apperrors.ErrorCodeDirectorLayoutInvalid, err.Error(), 400, nil, nil)
	case errors.Is(err, ErrStopped):
		return apperrors.NewServiceUnavailableError("Orchestrator is not running")
	}
	return apperrors.NewInternalError("Internal server error")
}

func formatStatus(status Status) map[string]any {
	pending := make([]map[string]any, 0, len(status.Pending))
	for _, conf := range status.Pending {
		pending = append(pending, formatConfirmation(conf))
	}

	result := map[string]any{
		"object":                "room",
		"state":                 status.State.String(),
		"persisted_state":       status.Persisted.String(),
		"scope":                 nil,
		"director_armed":        status.Armed,
		"active_calls":          status.ActiveCalls,
		"in_call":               status.InCall,
		"pending_confirmations": pending,
		"operation":             nil,
		"director":              formatDirector(status.Director),
		"updated_at":            status.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if status.Scope != "" {
		result["scope"] = string(status.Scope)
	}
	if op := status.Operation; op != nil {
		result["operation"] = map[string]any{
			"operation_id":         op.ID,
			"kind":                 string(op.Kind),
			"scope":                string(op.Scope),
			"started_at":           op.StartedAt.Format(time.RFC3339),
			"progress":             op.Progress,
			"finished":             op.Finished,
			"microphones":          op.Microphones,
			"expected_microphones": op.ExpectedMicrophones,
			"navigators":           op.Navigators,
			"expected_navigators":  op.ExpectedNavigators,
			"missing":              op.Missing,
		}
	}
	return result
}

func formatConfirmation(conf Confirmation) map[string]any {
	return map[string]any{
		"object":     "confirmation",
		"id":         conf.ID,
		"kind":       string(conf.Kind),
		"scope":      string(conf.Scope),
		"message":    conf.Message,
		"created_at": conf.CreatedAt.Format(time.RFC3339),
		"expires_at": conf.ExpiresAt.Format(time.RFC3339),
	}
}

func formatOperation(op *room.Operation) map[string]any {
	result := map[string]any{
		"object":       "operation",
		"operation_id": op.OperationID,
		"kind":         string(op.Kind),
		"scope":        string(op.Scope),
		"from":         op.From.String(),
		"to":           op.To.String(),
		"status":       string(op.Status),
		"started_at":   op.StartedAt.UTC().Format(time.RFC3339),
		"ended_at":     nil,
		"steps":        op.Steps,
		"missing":      op.Missing,
		"error":        nil,
	}
	if op.EndedAt != nil {
		result["ended_at"] = op.EndedAt.UTC().Format(time.RFC3339)
	}
	if op.Error != nil {
		result["error"] = *op.Error
	}
	return result
}

func formatDirector(status director.Status) map[string]any {
	result := map[string]any{
		"object":      "director",
		"automation":  status.Automation,
		"ducking":     status.Ducking,
		"composition": string(status.Memory.Composition),
		"duck":        string(status.Memory.Duck),
		"last_camera": status.Memory.LastConnector,
		"hold_until":  nil,
	}
	if !status.Memory.HoldUntil.IsZero() {
		result["hold_until"] = status.Memory.HoldUntil.UTC().Format(time.RFC3339)
	}
	return result
}
