// Package feedback receives HttpFeedback posts from the primary codec and
// routes peripheral and call changes to their consumers.
package feedback

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/strefethen/room-combine-go/internal/api"
	"github.com/strefethen/room-combine-go/internal/apperrors"
	"github.com/strefethen/room-combine-go/internal/peripherals"
)

const maxBodyBytes = 1 << 20

// Publisher fans peripheral events out.
type Publisher interface {
	Publish(ev peripherals.Event)
}

// CallSink receives the active call count.
type CallSink interface {
	NotifyActiveCalls(count int)
}

// Handler processes feedback posts.
type Handler struct {
	hub    Publisher
	calls  CallSink
	now    func() time.Time
	logger *zerolog.Logger
}

// NewHandler creates a Handler.
func NewHandler(hub Publisher, calls CallSink, logger *zerolog.Logger) *Handler {
	if logger == nil {
		logger = &log.Logger
	}
	componentLogger := logger.With().Str("component", "feedback").Logger()
	return &Handler{hub: hub, calls: calls, now: time.Now, logger: &componentLogger}
}

// RegisterRoutes wires the feedback route to the router.
func RegisterRoutes(router chi.Router, handler *Handler) {
	router.Method(http.MethodPost, "/v1/feedback", api.Handler(handler.receive))
}

// POST /v1/feedback
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.NewValidationError("failed to read feedback body", nil)
	}

	notification, err := Parse(body, h.now().UTC())
	if err != nil {
		if errors.Is(err, ErrUnrecognized) {
			h.logger.Debug().Int("bytes", len(body)).Msg("ignoring feedback without peripheral or call data")
			return apperrors.NewAppError(apperrors.ErrorCodeFeedbackUnrecognized, "Feedback has no peripheral or call data", 400, nil, nil)
		}
		h.logger.Warn().Err(err).Msg("unparseable feedback")
		return apperrors.NewValidationError("invalid feedback document", nil)
	}

	for _, ev := range notification.Peripherals {
		h.logger.Debug().Str("id", ev.ID).Str("type", ev.Type).Str("serial", ev.Serial).Str("status", string(ev.Status)).Msg("peripheral feedback")
		h.hub.Publish(ev)
	}
	if notification.ActiveCalls != nil {
		h.calls.NotifyActiveCalls(*notification.ActiveCalls)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}
