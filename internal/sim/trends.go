package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/plant-trainer/model"
)

// ErrUnknownTag is returned for trend queries on a tag that was never sampled.
var ErrUnknownTag = fmt.Errorf("sim: tag: %w", model.ErrUnknownEntity)

// DefaultTrendSamples keeps one hour of history at a 5 s sim tick.
const DefaultTrendSamples = 720

// TrendPoint is one sample of one tag.
type TrendPoint struct {
	Time  time.Time `json:"time"`
	Tick  uint64    `json:"tick"`
	Value float64   `json:"value"`
	Held  bool      `json:"held,omitempty"`
}

type ring struct {
	buf  []TrendPoint
	next int
	full bool
}

func (r *ring) push(p TrendPoint) {
	r.buf[r.next] = p
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) points() []TrendPoint {
	if !r.full {
		return append([]TrendPoint(nil), r.buf[:r.next]...)
	}
	out := make([]TrendPoint, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// TrendBuffer is a concurrency-safe bounded sample store per tag. Readers
// get copies so they never observe a later write.
type TrendBuffer struct {
	mu       sync.RWMutex
	capacity int
	byTag    map[string]*ring
}

// NewTrendBuffer keeps at most capacity samples per tag.
func NewTrendBuffer(capacity int) *TrendBuffer {
	if capacity <= 0 {
		capacity = DefaultTrendSamples
	}
	return &TrendBuffer{capacity: capacity, byTag: make(map[string]*ring)}
}

// Record appends one sample for every tag in snap.
func (t *TrendBuffer) Record(snap *model.ProcessState) {
	if snap == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for tag, r := range snap.Tags {
		rg, ok := t.byTag[tag]
		if !ok {
			rg = &ring{buf: make([]TrendPoint, t.capacity)}
			t.byTag[tag] = rg
		}
		rg.push(TrendPoint{Time: snap.SimTime, Tick: snap.Tick, Value: r.Value, Held: r.Held})
	}
}

// Series returns the samples for tag, oldest first.
func (t *TrendBuffer) Series(tag string) ([]TrendPoint, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rg, ok := t.byTag[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	return rg.points(), nil
}

// Tags lists every sampled tag in sorted order.
func (t *TrendBuffer) Tags() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.byTag))
	for tag := range t.byTag {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
