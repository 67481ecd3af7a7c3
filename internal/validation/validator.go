package validation

import "github.com/rendis/bpmnlens/pkg/schema"

// MessageValidator checks aggregator messages and overlay batches before they
// reach the reconciler. Uses JSON Schema Draft 2020-12.
type MessageValidator interface {
	DecodeEnvelope(data []byte) (*schema.Envelope, error)
	DecodeJobUpdate(payload []byte) (*schema.JobUpdate, error)
	DecodeOverlays(data []byte) ([]schema.BlockOverlayReport, error)
}
