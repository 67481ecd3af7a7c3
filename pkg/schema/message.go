package schema

import "encoding/json"

// ConnectorProtocol is the WebSocket sub-protocol spoken by the aggregator.
const ConnectorProtocol = "data-connection"

// Message types exchanged with the aggregator.
const (
	MessageJobUpdate      = "job_update"
	MessageJobUnsubscribe = "job_unsubscribe"
	MessageUnsubscribeAll = "unsubscribe_all"
)

// Envelope is the outer frame of every aggregator message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// JobRef identifies a job in subscribe/unsubscribe payloads.
type JobRef struct {
	JobID string `json:"job_id"`
}

// ViewMode selects which kind of job a dashboard is following.
type ViewMode string

const (
	ViewInstance    ViewMode = "instance"
	ViewAggregation ViewMode = "aggregation"
)

// Job describes a real-time job the dashboard can subscribe to.
type Job struct {
	JobID        string   `json:"job_id"`
	JobType      string   `json:"job_type,omitempty"`
	ProcessType  string   `json:"process_type,omitempty"`
	Perspectives []string `json:"perspectives,omitempty"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
}

// JobUpdate is the payload of an inbound job_update message. The job ID may
// sit on the payload itself or inside Update.
type JobUpdate struct {
	JobID  string      `json:"job_id,omitempty"`
	Update *UpdateBody `json:"update,omitempty"`
}

// ResolvedJobID returns the nested job ID when present, else the outer one.
func (u JobUpdate) ResolvedJobID() string {
	if u.Update != nil && u.Update.JobID != "" {
		return u.Update.JobID
	}
	return u.JobID
}

// UpdateBody carries the optional parts of a job update. A nil slice or map
// means the part was absent; overlays replace the previous batch wholesale and
// summary replaces the previous snapshot.
type UpdateBody struct {
	JobID        string               `json:"job_id,omitempty"`
	Perspectives []ProcessPerspective `json:"perspectives,omitempty"`
	Overlays     []BlockOverlayReport `json:"overlays"`
	Summary      map[string]any       `json:"summary"`
}

// ProcessPerspective is one diagram of a process with its element statistics.
type ProcessPerspective struct {
	ID         string             `json:"id"`
	Name       string             `json:"name,omitempty"`
	ModelXML   string             `json:"model_xml,omitempty"`
	Statistics []ElementStatistic `json:"statistics,omitempty"`
}

// ElementStatistic holds the counters shown on the instance tooltip.
type ElementStatistic struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}
