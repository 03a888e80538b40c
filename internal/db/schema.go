package db

const schemaSQL = `
-- ===========================================================================
-- ROOM STATE (single durable record, id is always 1)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS room_state (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  mode TEXT NOT NULL DEFAULT 'Split',
  screens INTEGER NOT NULL DEFAULT 1,
  controller_peripheral_id TEXT NOT NULL DEFAULT '',
  scheduler_peripheral_id TEXT NOT NULL DEFAULT '',
  updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

INSERT OR IGNORE INTO room_state (id, mode) VALUES (1, 'Split');

-- ===========================================================================
-- OPERATIONS (combine/split sagas)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS operations (
  operation_id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  scope TEXT NOT NULL,
  from_state TEXT NOT NULL,
  to_state TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'DISPATCHED',
  started_at TEXT NOT NULL DEFAULT (datetime('now')),
  ended_at TEXT,
  steps TEXT NOT NULL DEFAULT '[]',
  missing TEXT NOT NULL DEFAULT '[]',
  error TEXT
);

CREATE INDEX IF NOT EXISTS idx_operations_started_at ON operations(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status);

-- ==========================================================================
-- AUDIT EVENTS
-- ==========================================================================

CREATE TABLE IF NOT EXISTS audit_events (
  event_id TEXT PRIMARY KEY,
  timestamp TEXT NOT NULL,
  type TEXT NOT NULL,
  level TEXT NOT NULL,
  request_id TEXT,
  operation_id TEXT,
  node_id TEXT,
  message TEXT NOT NULL,
  payload TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(type);
CREATE INDEX IF NOT EXISTS idx_audit_events_level ON audit_events(level);
CREATE INDEX IF NOT EXISTS idx_audit_events_operation_id ON audit_events(operation_id) WHERE operation_id IS NOT NULL;
`
