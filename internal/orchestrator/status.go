package orchestrator

import (
	"time"

	"github.com/strefethen/room-combine-go/internal/director"
	"github.com/strefethen/room-combine-go/internal/room"
)

// Status is a point-in-time view of the room.
type Status struct {
	State       room.State         `json:"state"`
	Persisted   room.State         `json:"persisted_state"`
	Scope       room.Scope         `json:"scope,omitempty"`
	Armed       bool               `json:"director_armed"`
	ActiveCalls int                `json:"active_calls"`
	InCall      bool               `json:"in_call"`
	Pending     []Confirmation     `json:"pending_confirmations"`
	Operation   *OperationProgress `json:"operation"`
	Director    director.Status    `json:"director"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// OperationProgress describes the operation the loop is driving.
type OperationProgress struct {
	ID                  string             `json:"operation_id"`
	Kind                room.OperationKind `json:"kind"`
	Scope               room.Scope         `json:"scope,omitempty"`
	StartedAt           time.Time          `json:"started_at"`
	Progress            int                `json:"progress"`
	Finished            bool               `json:"finished"`
	Microphones         int                `json:"microphones"`
	ExpectedMicrophones int                `json:"expected_microphones"`
	Navigators          int                `json:"navigators"`
	ExpectedNavigators  int                `json:"expected_navigators"`
	Missing             []string           `json:"missing"`
}

func (o *Orchestrator) status() Status {
	status := Status{
		State:       o.state,
		Persisted:   o.record.Mode,
		Armed:       o.armed,
		ActiveCalls: o.gate.Calls(),
		InCall:      o.gate.Engaged(),
		Pending:     make([]Confirmation, 0, len(o.pending)),
		Director:    o.director.Status(),
		UpdatedAt:   o.record.UpdatedAt,
	}
	if scope, ok := o.state.Scope(); ok {
		status.Scope = scope
	}
	for _, pending := range o.pending {
		status.Pending = append(status.Pending, pending.Confirmation)
	}

	if op := o.op; op != nil {
		progress := &OperationProgress{
			ID:        op.id,
			Kind:      op.kind,
			Scope:     op.scope,
			StartedAt: op.startedAt.UTC(),
			Progress:  op.progress,
			Finished:  op.finished,
			Missing:   op.missing,
		}
		if op.session != nil {
			progress.Microphones, progress.ExpectedMicrophones, progress.Navigators, progress.ExpectedNavigators = op.session.Counts()
			if !op.migrationDone {
				progress.Missing = op.session.Missing()
			}
		}
		if progress.Missing == nil {
			progress.Missing = []string{}
		}
		status.Operation = progress
	}
	return status
}
