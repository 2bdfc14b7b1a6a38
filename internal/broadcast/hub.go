// Package broadcast fans each published frame out to connected observers and
// optional external sinks.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/plant-trainer/internal/tutorial"
	"github.com/signalsfoundry/plant-trainer/model"
)

// Frame is what observers receive once per tick: the snapshot and the
// tutorial view evaluated against it.
type Frame struct {
	Seq      uint64              `json:"seq"`
	State    *model.ProcessState `json:"state"`
	Tutorial tutorial.View       `json:"tutorial"`
}

// DefaultBuffer is the per-subscriber channel depth.
const DefaultBuffer = 8

// Subscription is one observer's frame channel.
type Subscription struct {
	ch     chan Frame
	hub    *Hub
	once   sync.Once
	Name   string
	closed atomic.Bool
}

// C returns the frame channel. It is closed on Unsubscribe or hub Close.
func (s *Subscription) C() <-chan Frame { return s.ch }

// Close unsubscribes.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.Unsubscribe(s)
}

// Hub is a non-blocking fan-out of frames. A subscriber whose buffer is full
// misses that frame; it can fetch Current to resynchronise.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	current atomic.Pointer[Frame]
	dropped atomic.Uint64
	closed  bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers an observer with the given buffer depth. The current
// frame, if any, is queued immediately so a new observer never starts blank.
func (h *Hub) Subscribe(name string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{ch: make(chan Frame, buffer), hub: h, Name: name}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.closed.Store(true)
		close(sub.ch)
		return sub
	}
	if cur := h.current.Load(); cur != nil {
		sub.ch <- *cur
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel. It is idempotent.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		if !sub.closed.Swap(true) {
			close(sub.ch)
		}
	})
}

// Publish stores f as the current frame and offers it to every subscriber
// without blocking.
func (h *Hub) Publish(f Frame) {
	h.current.Store(&f)
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- f:
		default:
			h.dropped.Add(1)
		}
	}
}

// Current returns the most recently published frame.
func (h *Hub) Current() (Frame, bool) {
	cur := h.current.Load()
	if cur == nil {
		return Frame{}, false
	}
	return *cur, true
}

// Observers returns the number of live subscriptions.
func (h *Hub) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many frame deliveries were skipped for full buffers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close closes every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.closed = true
	h.mu.Unlock()
	for sub := range subs {
		sub.once.Do(func() {
			if !sub.closed.Swap(true) {
				close(sub.ch)
			}
		})
	}
}
