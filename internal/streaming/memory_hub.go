package streaming

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rendis/bpmnlens/internal/metrics"
)

const defaultChannelBuffer = 64

// ErrHubClosed is returned by Publish and Subscribe after Close.
var ErrHubClosed = errors.New("streaming: hub closed")

type subscriber struct {
	ch     chan StreamEvent
	filter EventFilter
	stop   func() bool // detaches the context watcher
}

// MemoryHub is an in-process EventHub. Every subscriber owns a buffered
// channel; an event that does not fit is dropped for that subscriber only, so
// a stalled browser tab never blocks the overlay engine.
type MemoryHub struct {
	buffer int

	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
}

// HubOption configures a MemoryHub.
type HubOption func(*MemoryHub)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) HubOption {
	return func(h *MemoryHub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewMemoryHub creates a MemoryHub.
func NewMemoryHub(opts ...HubOption) *MemoryHub {
	h := &MemoryHub{
		buffer: defaultChannelBuffer,
		subs:   make(map[uint64]*subscriber),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish delivers event to every subscriber whose filter matches it.
// It never blocks on a subscriber.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHubClosed
	}
	for _, sub := range h.subs {
		if !sub.filter.Matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			metrics.RecordHubDrop(event.EventType)
		}
	}
	return nil
}

// Subscribe registers filter. The returned channel is closed by the cancel
// function, when ctx is done, or when the hub closes, whichever comes first.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, ErrHubClosed
	}
	h.nextID++
	id := h.nextID
	cancel := func() { h.remove(id) }
	sub := &subscriber{
		ch:     make(chan StreamEvent, h.buffer),
		filter: filter,
		// The watcher runs in its own goroutine; it waits for mu if ctx is
		// already done.
		stop: context.AfterFunc(ctx, cancel),
	}
	h.subs[id] = sub
	metrics.SetHubSubscribers(len(h.subs))
	h.mu.Unlock()

	return sub.ch, cancel, nil
}

// remove closes the channel of subscription id. Publish holds the read lock
// while sending, so nothing can send on the channel once the entry is gone.
func (h *MemoryHub) remove(id uint64) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	n := len(h.subs)
	h.mu.Unlock()
	if !ok {
		return
	}
	sub.stop()
	close(sub.ch)
	metrics.SetHubSubscribers(n)
}

// Subscribers returns the number of live subscriptions.
func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription and rejects further use of the hub.
func (h *MemoryHub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
		close(sub.ch)
	}
	metrics.SetHubSubscribers(0)
}

// Matches reports whether e passes the filter.
func (f EventFilter) Matches(e StreamEvent) bool {
	switch {
	case f.SessionID != "" && f.SessionID != e.SessionID:
		return false
	case f.JobID != "" && f.JobID != e.JobID:
		return false
	case f.Perspective != "" && f.Perspective != e.Perspective:
		return false
	case len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.EventType):
		return false
	}
	return true
}
