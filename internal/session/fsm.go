package session

import (
	"context"
	"slices"
	"sync"

	"github.com/rendis/bpmnlens/internal/streaming"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// TransitionHook is called before or after a status transition.
type TransitionHook func(from, to schema.SessionStatus) error

type hookKey struct {
	from, to schema.SessionStatus
}

// ValidTransitions defines the allowed diagram session status transitions.
// A session re-enters importing whenever its model is replaced.
var ValidTransitions = map[schema.SessionStatus][]schema.SessionStatus{
	schema.SessionIdle:      {schema.SessionImporting, schema.SessionClosed},
	schema.SessionImporting: {schema.SessionImporting, schema.SessionReady, schema.SessionClosed},
	schema.SessionReady:     {schema.SessionImporting, schema.SessionClosed},
	schema.SessionClosed:    {},
}

// FSM validates diagram session status transitions and announces each one
// on the hub as a session_status event.
type FSM struct {
	mu     sync.Mutex
	hub    streaming.EventHub
	before map[hookKey][]TransitionHook
	after  map[hookKey][]TransitionHook
}

// NewFSM creates an FSM that publishes on hub. hub may be nil.
func NewFSM(hub streaming.EventHub) *FSM {
	return &FSM{
		hub:    hub,
		before: make(map[hookKey][]TransitionHook),
		after:  make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition.
func (f *FSM) OnBefore(from, to schema.SessionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *FSM) OnAfter(from, to schema.SessionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates from -> to for the session identified by ids and
// publishes the new status. The caller stores the new status.
func (f *FSM) Transition(ctx context.Context, ids streaming.StreamEvent, from, to schema.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !slices.Contains(ValidTransitions[from], to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid session transition: %s -> %s", from, to).
			WithDetails(map[string]any{"perspective": ids.Perspective, "from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}
	for _, hook := range f.before[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	if f.hub != nil {
		ids.EventType = schema.EventSessionStatus
		ids.Payload = map[string]any{"from": string(from), "to": string(to)}
		if err := f.hub.Publish(ctx, ids); err != nil {
			return schema.NewErrorf(schema.ErrCodeTransport, "publish session status: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}
	return nil
}
