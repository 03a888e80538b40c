package room

import (
	"database/sql"
	"fmt"
	"time"
)

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Record is the durable room state. Only Split and Combined* modes are stored.
type Record struct {
	Mode                   State     `json:"mode"`
	Screens                int       `json:"screens"`
	ControllerPeripheralID string    `json:"controller_peripheral_id"`
	SchedulerPeripheralID  string    `json:"scheduler_peripheral_id"`
	Platform               string    `json:"platform"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// StateRepository reads and writes the single room_state row.
type StateRepository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewStateRepository creates a new StateRepository.
func NewStateRepository(dbPair DBPair) *StateRepository {
	return &StateRepository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// Load returns the persisted record.
func (r *StateRepository) Load() (Record, error) {
	var record Record
	var mode, updatedAt string

	err := r.reader.QueryRow(`
		SELECT mode, screens, controller_peripheral_id, scheduler_peripheral_id, platform, updated_at
		FROM room_state
		WHERE id = 1
	`).Scan(&mode, &record.Screens, &record.ControllerPeripheralID, &record.SchedulerPeripheralID, &record.Platform, &updatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("load room state: %w", err)
	}

	record.Mode, err = ParseState(mode)
	if err != nil {
		return Record{}, err
	}
	record.UpdatedAt = parseTimestamp(updatedAt)

	return record, nil
}

// Save writes the full record.
func (r *StateRepository) Save(record Record) error {
	if !record.Mode.Persistable() {
		return fmt.Errorf("room state %s is transient and cannot be persisted", record.Mode)
	}

	_, err := r.writer.Exec(`
		UPDATE room_state
		SET mode = ?, screens = ?, controller_peripheral_id = ?, scheduler_peripheral_id = ?, platform = ?, updated_at = ?
		WHERE id = 1
	`, record.Mode.String(), record.Screens, record.ControllerPeripheralID, record.SchedulerPeripheralID, record.Platform, nowISO())
	if err != nil {
		return fmt.Errorf("save room state: %w", err)
	}
	return nil
}

// SaveMode updates only the mode.
func (r *StateRepository) SaveMode(mode State) error {
	if !mode.Persistable() {
		return fmt.Errorf("room state %s is transient and cannot be persisted", mode)
	}

	_, err := r.writer.Exec("UPDATE room_state SET mode = ?, updated_at = ? WHERE id = 1", mode.String(), nowISO())
	if err != nil {
		return fmt.Errorf("save room mode: %w", err)
	}
	return nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func parseTimestamp(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		parsed, _ = time.Parse("2006-01-02 15:04:05", value)
	}
	return parsed
}
