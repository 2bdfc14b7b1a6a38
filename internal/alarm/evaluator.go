package alarm

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/plant-trainer/model"
)

// DefaultHistoryLimit bounds the number of cleared records retained.
const DefaultHistoryLimit = 200

// Transitions lists the lifecycle changes produced by one evaluation pass.
type Transitions struct {
	Raised  []model.AlarmRecord
	Cleared []model.AlarmRecord
}

// Empty reports whether the pass changed nothing.
func (t Transitions) Empty() bool {
	return len(t.Raised) == 0 && len(t.Cleared) == 0
}

// Evaluator owns every alarm record. It is not safe for concurrent use; the
// simulation session serialises evaluation and acknowledgement.
type Evaluator struct {
	limits       []Limit
	hysteresis   float64
	historyLimit int
	newID        func() string

	open     map[string]*model.AlarmRecord // keyed by Limit.key
	episodes map[string]int
	// history holds cleared records, newest first.
	history []model.AlarmRecord
}

// Option customises an Evaluator.
type Option func(*Evaluator)

// WithHysteresis sets the clearing band as a fraction of each threshold.
func WithHysteresis(fraction float64) Option {
	return func(e *Evaluator) {
		if fraction >= 0 && fraction < 1 {
			e.hysteresis = fraction
		}
	}
}

// WithHistoryLimit bounds the cleared-alarm history.
func WithHistoryLimit(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// WithIDGenerator replaces the uuid-based record id source.
func WithIDGenerator(fn func() string) Option {
	return func(e *Evaluator) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEvaluator validates limits and returns an evaluator with no open alarms.
func NewEvaluator(limits []Limit, opts ...Option) (*Evaluator, error) {
	e := &Evaluator{
		hysteresis:   DefaultHysteresis,
		historyLimit: DefaultHistoryLimit,
		newID:        uuid.NewString,
		open:         make(map[string]*model.AlarmRecord),
		episodes:     make(map[string]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	seen := make(map[string]struct{}, len(limits))
	for _, l := range limits {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[l.key()]; dup {
			return nil, fmt.Errorf("%w: duplicate %s limit on %s", ErrInvalidLimit, l.Direction, l.Tag)
		}
		seen[l.key()] = struct{}{}
		e.limits = append(e.limits, l)
	}
	return e, nil
}

// Limits returns a copy of the configured limits.
func (e *Evaluator) Limits() []Limit {
	return append([]Limit(nil), e.limits...)
}

// Hysteresis returns the clearing band fraction.
func (e *Evaluator) Hysteresis() float64 { return e.hysteresis }

// Evaluate runs one pass over tags. A tripped limit with no open record
// raises a new episode; an open record whose tag has recovered past the
// hysteresis band clears. Tags absent from the map are left alone.
func (e *Evaluator) Evaluate(tags map[string]model.TagReading, now time.Time) Transitions {
	var tr Transitions
	for _, l := range e.limits {
		reading, ok := tags[l.Tag]
		if !ok {
			continue
		}
		v := reading.Value
		k := l.key()

		if rec, open := e.open[k]; open {
			rec.LastValue = v
			if l.recovered(v, e.hysteresis) {
				rec.State = model.AlarmCleared
				rec.ClearedAt = now
				delete(e.open, k)
				e.pushHistory(*rec)
				tr.Cleared = append(tr.Cleared, *rec)
			}
			continue
		}

		if !l.tripped(v) {
			continue
		}
		e.episodes[k]++
		unit := l.Unit
		if unit == "" {
			unit = reading.Unit
		}
		rec := &model.AlarmRecord{
			ID:          e.newID(),
			Tag:         l.Tag,
			Description: l.Description,
			Priority:    l.Priority,
			Direction:   l.Direction,
			Threshold:   l.Threshold,
			Value:       v,
			LastValue:   v,
			Unit:        unit,
			State:       model.AlarmActive,
			Episode:     e.episodes[k],
			RaisedAt:    now,
		}
		e.open[k] = rec
		tr.Raised = append(tr.Raised, *rec)
	}
	return tr
}

func (e *Evaluator) pushHistory(rec model.AlarmRecord) {
	e.history = append([]model.AlarmRecord{rec}, e.history...)
	if len(e.history) > e.historyLimit {
		e.history = e.history[:e.historyLimit]
	}
}

// Acknowledge marks an open alarm as seen by the operator. It does not clear
// the underlying condition. Acknowledging an already acknowledged or cleared
// record returns it unchanged.
func (e *Evaluator) Acknowledge(id string, now time.Time) (model.AlarmRecord, error) {
	for _, rec := range e.open {
		if rec.ID != id {
			continue
		}
		if rec.State == model.AlarmActive {
			rec.State = model.AlarmAcknowledged
			rec.AcknowledgedAt = now
		}
		return *rec, nil
	}
	for _, rec := range e.history {
		if rec.ID == id {
			return rec, nil
		}
	}
	return model.AlarmRecord{}, fmt.Errorf("%w: %q", ErrUnknownAlarm, id)
}

// Active returns open records ordered by priority, then oldest first.
func (e *Evaluator) Active() []model.AlarmRecord {
	out := make([]model.AlarmRecord, 0, len(e.open))
	for _, rec := range e.open {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := priorityRank(out[i].Priority), priorityRank(out[j].Priority)
		if pi != pj {
			return pi < pj
		}
		if !out[i].RaisedAt.Equal(out[j].RaisedAt) {
			return out[i].RaisedAt.Before(out[j].RaisedAt)
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// History returns cleared records, newest first.
func (e *Evaluator) History() []model.AlarmRecord {
	return append([]model.AlarmRecord(nil), e.history...)
}

// ActiveCount returns the number of open records.
func (e *Evaluator) ActiveCount() int { return len(e.open) }

func priorityRank(p model.Priority) int {
	switch p {
	case model.PriorityHigh:
		return 0
	case model.PriorityMedium:
		return 1
	default:
		return 2
	}
}
