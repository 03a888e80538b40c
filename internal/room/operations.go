package room

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OperationKind names what an operation does.
type OperationKind string

const (
	OperationCombine OperationKind = "combine"
	OperationSplit   OperationKind = "split"
)

// OperationStatus represents the state of a combine or split operation.
type OperationStatus string

const (
	OperationStatusDispatched        OperationStatus = "DISPATCHED"
	OperationStatusCompleted         OperationStatus = "COMPLETED"
	OperationStatusCompletedDegraded OperationStatus = "COMPLETED_DEGRADED"
	OperationStatusFailed            OperationStatus = "FAILED"
	OperationStatusCancelled         OperationStatus = "CANCELLED"
)

// StepStatus represents the state of an operation step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusCancelled StepStatus = "cancelled"
)

// Step names used in operation step lists.
const (
	StepVLAN      = "vlan"
	StepSignal    = "signal"
	StepMigration = "migration"
	StepDirector  = "director"
)

// OperationStep is one named step, optionally bound to a node.
type OperationStep struct {
	Node      string     `json:"node,omitempty"`
	Step      string     `json:"step"`
	Status    StepStatus `json:"status"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Operation is the stored record of a combine or split.
type Operation struct {
	OperationID string          `json:"operation_id"`
	Kind        OperationKind   `json:"kind"`
	Scope       Scope           `json:"scope,omitempty"`
	From        State           `json:"from"`
	To          State           `json:"to"`
	Status      OperationStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	Steps       []OperationStep `json:"steps"`
	Missing     []string        `json:"missing"`
	Error       *string         `json:"error,omitempty"`
}

// CreateOperationInput contains the fields for a new operation.
type CreateOperationInput struct {
	Kind  OperationKind
	Scope Scope
	From  State
	To    State
	Steps []OperationStep
}

// StepUpdate contains the fields to update on an operation step.
type StepUpdate struct {
	Status    *StepStatus
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     *string
}

// OperationsRepository handles database operations for combine/split operations.
type OperationsRepository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewOperationsRepository creates a new OperationsRepository.
func NewOperationsRepository(dbPair DBPair) *OperationsRepository {
	return &OperationsRepository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// Create inserts a new operation with status DISPATCHED.
func (r *OperationsRepository) Create(input CreateOperationInput) (*Operation, error) {
	opID := uuid.New().String()

	steps := input.Steps
	if steps == nil {
		steps = []OperationStep{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return nil, err
	}

	_, err = r.writer.Exec(`
		INSERT INTO operations (operation_id, kind, scope, from_state, to_state, status, started_at, steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, opID, string(input.Kind), string(input.Scope), input.From.String(), input.To.String(), string(OperationStatusDispatched), nowISO(), string(stepsJSON))
	if err != nil {
		return nil, err
	}

	return r.GetByID(opID)
}

// GetByID retrieves an operation. Returns nil, nil if not found.
func (r *OperationsRepository) GetByID(opID string) (*Operation, error) {
	row := r.reader.QueryRow(`
		SELECT operation_id, kind, scope, from_state, to_state, status, started_at, ended_at, steps, missing, error
		FROM operations
		WHERE operation_id = ?
	`, opID)

	return r.scanOperation(row)
}

// List returns operations newest first with the total count.
func (r *OperationsRepository) List(limit, offset int) ([]Operation, int, error) {
	var total int
	if err := r.reader.QueryRow("SELECT COUNT(*) FROM operations").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.reader.Query(`
		SELECT operation_id, kind, scope, from_state, to_state, status, started_at, ended_at, steps, missing, error
		FROM operations
		ORDER BY started_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	operations := []Operation{}
	for rows.Next() {
		op, err := r.scanOperation(rows)
		if err != nil {
			return nil, 0, err
		}
		operations = append(operations, *op)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return operations, total, nil
}

// UpdateStep updates the step matching node and name inside a transaction.
func (r *OperationsRepository) UpdateStep(opID, node, stepName string, update StepUpdate) error {
	tx, err := r.writer.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var stepsJSON string
	err = tx.QueryRow("SELECT steps FROM operations WHERE operation_id = ?", opID).Scan(&stepsJSON)
	if err != nil {
		return err
	}

	var steps []OperationStep
	if err = json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
		return err
	}

	found := false
	for i := range steps {
		if steps[i].Step == stepName && steps[i].Node == node {
			found = true
			if update.Status != nil {
				steps[i].Status = *update.Status
			}
			if update.StartedAt != nil {
				steps[i].StartedAt = update.StartedAt
			}
			if update.EndedAt != nil {
				steps[i].EndedAt = update.EndedAt
			}
			if update.Error != nil {
				steps[i].Error = *update.Error
			}
			break
		}
	}

	if !found {
		err = errors.New("step not found: " + node + "/" + stepName)
		return err
	}

	newStepsJSON, err := json.Marshal(steps)
	if err != nil {
		return err
	}

	_, err = tx.Exec("UPDATE operations SET steps = ? WHERE operation_id = ?", string(newStepsJSON), opID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Complete sets the final status, the missing peripheral list and the error.
func (r *OperationsRepository) Complete(opID string, status OperationStatus, missing []string, errMsg *string) error {
	if missing == nil {
		missing = []string{}
	}
	missingJSON, err := json.Marshal(missing)
	if err != nil {
		return err
	}

	_, err = r.writer.Exec(`
		UPDATE operations
		SET status = ?, ended_at = ?, missing = ?, error = ?
		WHERE operation_id = ?
	`, string(status), nowISO(), string(missingJSON), errMsg, opID)
	return err
}

// CancelOpen marks every DISPATCHED operation as cancelled. Used at startup,
// where in-flight work from a previous process can no longer report back.
func (r *OperationsRepository) CancelOpen() (int64, error) {
	msg := "process restarted before completion"
	result, err := r.writer.Exec(`
		UPDATE operations
		SET status = ?, ended_at = ?, error = ?
		WHERE status = ?
	`, string(OperationStatusCancelled), nowISO(), msg, string(OperationStatusDispatched))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *OperationsRepository) scanOperation(row rowScanner) (*Operation, error) {
	var op Operation
	var kind, scope, from, to, status, startedAt string
	var endedAt sql.NullString
	var stepsJSON, missingJSON string
	var errorMsg sql.NullString

	err := row.Scan(&op.OperationID, &kind, &scope, &from, &to, &status, &startedAt, &endedAt, &stepsJSON, &missingJSON, &errorMsg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	op.Kind = OperationKind(kind)
	op.Scope = Scope(scope)
	op.Status = OperationStatus(status)
	if op.From, err = ParseState(from); err != nil {
		return nil, err
	}
	if op.To, err = ParseState(to); err != nil {
		return nil, err
	}
	op.StartedAt = parseTimestamp(startedAt)
	if endedAt.Valid {
		t := parseTimestamp(endedAt.String)
		op.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(stepsJSON), &op.Steps); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(missingJSON), &op.Missing); err != nil {
		return nil, err
	}
	if errorMsg.Valid {
		op.Error = &errorMsg.String
	}

	return &op, nil
}
