package audit

// EventType represents the type of audit event.
type EventType string

const (
	EventCombineRequested      EventType = "COMBINE_REQUESTED"
	EventCombineRefused        EventType = "COMBINE_REFUSED"
	EventSplitRequested        EventType = "SPLIT_REQUESTED"
	EventSplitRejected         EventType = "SPLIT_REJECTED"
	EventConfirmationExpired   EventType = "CONFIRMATION_EXPIRED"
	EventConfirmationCancelled EventType = "CONFIRMATION_CANCELLED"
	EventStateChanged          EventType = "STATE_CHANGED"
	EventOperationStep         EventType = "OPERATION_STEP"
	EventOperationStepFailed   EventType = "OPERATION_STEP_FAILED"
	EventMigrationCompleted    EventType = "MIGRATION_COMPLETED"
	EventMigrationDegraded     EventType = "MIGRATION_DEGRADED"
	EventDirectorOverride      EventType = "DIRECTOR_OVERRIDE"
	EventCallStarted           EventType = "CALL_STARTED"
	EventCallEnded             EventType = "CALL_ENDED"
	EventTopologyUpdated       EventType = "TOPOLOGY_UPDATED"
	EventSystemStartup         EventType = "SYSTEM_STARTUP"
	EventSystemError           EventType = "SYSTEM_ERROR"
)

// EventCorrelation contains IDs that link related events together.
type EventCorrelation struct {
	RequestID   *string `json:"request_id,omitempty"`
	OperationID *string `json:"operation_id,omitempty"`
	NodeID      *string `json:"node_id,omitempty"`
}

// Short-form level names.
const (
	LevelDebug = EventLevelDebug
	LevelInfo  = EventLevelInfo
	LevelWarn  = EventLevelWarn
	LevelError = EventLevelError
)
