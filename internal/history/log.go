// Package history keeps the in-memory ledger of operator actions.
package history

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/plant-trainer/model"
)

// Log is an append-only, newest-first ledger of HistoryEvents. The only
// removal is an explicit full Clear. It is safe for concurrent use.
type Log struct {
	mu       sync.RWMutex
	events   []model.HistoryEvent // oldest first
	capacity int
	newID    func() string
	now      func() time.Time
	sinks    []func(model.HistoryEvent)
}

// Option customises a Log.
type Option func(*Log)

// WithCapacity retains at most n events, dropping the oldest. Zero means unbounded.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n >= 0 {
			l.capacity = n
		}
	}
}

// WithIDGenerator replaces the uuid-based event id source.
func WithIDGenerator(fn func() string) Option {
	return func(l *Log) {
		if fn != nil {
			l.newID = fn
		}
	}
}

// WithNow sets the timestamp source for events recorded without one.
func WithNow(fn func() time.Time) Option {
	return func(l *Log) {
		if fn != nil {
			l.now = fn
		}
	}
}

// WithSink registers a callback invoked with each recorded event, after the
// log lock is released.
func WithSink(fn func(model.HistoryEvent)) Option {
	return func(l *Log) {
		if fn != nil {
			l.sinks = append(l.sinks, fn)
		}
	}
}

// NewLog returns an empty log.
func NewLog(opts ...Option) *Log {
	l := &Log{
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Record assigns an id (and a timestamp when ev has none), appends the event
// and returns the stored copy.
func (l *Log) Record(ev model.HistoryEvent) model.HistoryEvent {
	if ev.ID == "" {
		ev.ID = l.newID()
	}
	if ev.Time.IsZero() {
		ev.Time = l.now()
	}

	l.mu.Lock()
	l.events = append(l.events, ev)
	if l.capacity > 0 && len(l.events) > l.capacity {
		drop := len(l.events) - l.capacity
		l.events = append(l.events[:0:0], l.events[drop:]...)
	}
	sinks := slices.Clone(l.sinks)
	l.mu.Unlock()

	for _, fn := range sinks {
		fn(ev)
	}
	return ev
}

// List returns every event, newest first.
func (l *Log) List() []model.HistoryEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.HistoryEvent, len(l.events))
	for i, ev := range l.events {
		out[len(l.events)-1-i] = ev
	}
	return out
}

// Recent returns at most n events, newest first.
func (l *Log) Recent(n int) []model.HistoryEvent {
	all := l.List()
	if n >= 0 && n < len(all) {
		return all[:n]
	}
	return all
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Clear empties the log and returns how many events were removed.
func (l *Log) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.events)
	l.events = nil
	return n
}
