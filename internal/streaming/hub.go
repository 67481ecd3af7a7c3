package streaming

import "context"

// StreamEvent is a real-time event emitted by a dashboard session: inbound
// job updates, canvas operations for the browser widget, legend changes.
type StreamEvent struct {
	SessionID   string `json:"session_id,omitempty"`
	JobID       string `json:"job_id,omitempty"`
	Perspective string `json:"perspective,omitempty"`
	EventType   string `json:"event_type"`
	Payload     any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
// Empty fields match everything.
type EventFilter struct {
	SessionID   string   `json:"session_id,omitempty"`
	JobID       string   `json:"job_id,omitempty"`
	Perspective string   `json:"perspective,omitempty"`
	EventTypes  []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time dashboard events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
