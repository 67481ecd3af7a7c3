package schema

// Stream event types published on the streaming hub.
const (
	EventJobUpdate       = "job_update"
	EventCanvasOp        = "canvas_op"
	EventStateCleared    = "state_cleared"
	EventLegendChanged   = "legend_changed"
	EventImportDone      = "import_done"
	EventSessionStatus   = "session_status"
	EventConnectorClosed = "connector_closed"
)

// SessionStatus is the lifecycle state of a diagram session.
type SessionStatus string

const (
	SessionIdle      SessionStatus = "idle"
	SessionImporting SessionStatus = "importing"
	SessionReady     SessionStatus = "ready"
	SessionClosed    SessionStatus = "closed"
)
