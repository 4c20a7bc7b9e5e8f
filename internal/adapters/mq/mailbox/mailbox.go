// Package mailbox fans annotated frames out to stream viewers.
//
// Each viewer owns a single-slot mailbox. Publishing overwrites whatever the
// viewer has not read yet, so a slow viewer drops frames and never makes the
// detection loop wait.
package mailbox

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/rollcall/internal/domain/model"
)

// ReadFunc blocks until a frame is available, the viewer is unsubscribed,
// the hub is closed or ctx ends. ok is false in the last three cases.
type ReadFunc func(ctx context.Context) (frame model.AnnotatedFrame, ok bool)

type slot struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *model.AnnotatedFrame
	drops  uint64
	closed bool
}

// Hub distributes frames to subscribed viewers.
type Hub struct {
	maxViewers int
	onDrop     func()

	mu     sync.RWMutex
	slots  map[string]*slot
	latest *model.AnnotatedFrame
	closed bool

	published atomic.Uint64
	drops     atomic.Uint64
}

// Stats is a snapshot of hub counters.
type Stats struct {
	Viewers   int
	Published uint64
	Drops     uint64
}

// New creates an empty hub.
func New(opts ...Option) *Hub {
	h := &Hub{slots: make(map[string]*slot), onDrop: func() {}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish hands f to every viewer without blocking.
func (h *Hub) Publish(f model.AnnotatedFrame) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	frame := f
	h.latest = &frame
	slots := make([]*slot, 0, len(h.slots))
	for _, s := range h.slots {
		slots = append(slots, s)
	}
	h.mu.Unlock()

	h.published.Add(1)
	for _, s := range slots {
		s.mu.Lock()
		if !s.closed {
			if s.frame != nil {
				s.drops++
				h.drops.Add(1)
				h.onDrop()
			}
			s.frame = &frame
			s.cond.Signal()
		}
		s.mu.Unlock()
	}
}

// Subscribe registers viewer id. The returned ReadFunc must be used by a
// single goroutine. A new viewer starts with the most recent frame, if any.
func (h *Hub) Subscribe(id string) (ReadFunc, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if _, ok := h.slots[id]; ok {
		return nil, ErrDuplicateViewer
	}
	if h.maxViewers > 0 && len(h.slots) >= h.maxViewers {
		return nil, ErrTooManyViewers
	}

	s := &slot{frame: h.latest}
	s.cond = sync.NewCond(&s.mu)
	h.slots[id] = s

	return func(ctx context.Context) (model.AnnotatedFrame, bool) {
		stop := context.AfterFunc(ctx, func() {
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		defer stop()

		s.mu.Lock()
		defer s.mu.Unlock()
		for s.frame == nil && !s.closed && ctx.Err() == nil {
			s.cond.Wait()
		}
		if s.closed || ctx.Err() != nil {
			return model.AnnotatedFrame{}, false
		}
		f := *s.frame
		s.frame = nil
		return f, true
	}, nil
}

// Unsubscribe removes viewer id and wakes its reader. Idempotent.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	s, ok := h.slots[id]
	delete(h.slots, id)
	h.mu.Unlock()
	if !ok {
		return
	}
	closeSlot(s)
}

// Close releases every reader. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	slots := h.slots
	h.slots = make(map[string]*slot)
	h.mu.Unlock()

	for _, s := range slots {
		closeSlot(s)
	}
}

// Viewers returns the number of subscribed viewers.
func (h *Hub) Viewers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.slots)
}

// Stats returns hub counters.
func (h *Hub) Stats() Stats {
	return Stats{Viewers: h.Viewers(), Published: h.published.Load(), Drops: h.drops.Load()}
}

func closeSlot(s *slot) {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}
