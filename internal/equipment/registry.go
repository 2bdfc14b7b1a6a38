// Package equipment owns the per-device finite-state models of the plant and
// validates every operator command against them.
package equipment

import (
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/plant-trainer/model"
	"github.com/signalsfoundry/plant-trainer/timectrl"
)

// Recorder receives exactly one history event per successful command.
type Recorder interface {
	Record(ev model.HistoryEvent) model.HistoryEvent
}

// Command is an operator request against one unit.
type Command struct {
	EquipmentID string
	Verb        model.Verb
	// Value carries the target speed for start/applySetpoint on pumps and the
	// dose for applySetpoint on chemical feeds. Nil means "not supplied".
	Value *float64
}

// Result is returned for every successful command.
type Result struct {
	Unit   model.EquipmentUnit
	Before string
	After  string
	// NoOp is set when the unit was already in the requested state.
	NoOp  bool
	Event model.HistoryEvent
}

// Registry holds the live state of every unit. It is not safe for concurrent
// use on its own; the simulation session serialises all access so that a
// command never interleaves with a tick.
type Registry struct {
	units map[string]*model.EquipmentUnit
	specs map[string]Spec
	byTag map[string]string
	order []string

	backwashDuration time.Duration
	recorder         Recorder
	clock            timectrl.SimClock
}

// Option customises Registry construction.
type Option func(*Registry)

// WithRecorder attaches the sink that receives history events.
func WithRecorder(r Recorder) Option {
	return func(reg *Registry) { reg.recorder = r }
}

// WithClock sets the clock used to timestamp history events.
func WithClock(c timectrl.SimClock) Option {
	return func(reg *Registry) { reg.clock = c }
}

// WithBackwashDuration sets how long a backwash lasts in simulated time.
func WithBackwashDuration(d time.Duration) Option {
	return func(reg *Registry) {
		if d > 0 {
			reg.backwashDuration = d
		}
	}
}

// DefaultBackwashDuration is used when no duration is configured.
const DefaultBackwashDuration = 10 * time.Minute

// NewRegistry validates specs and builds the initial unit states.
func NewRegistry(specs []Spec, opts ...Option) (*Registry, error) {
	reg := &Registry{
		units:            make(map[string]*model.EquipmentUnit, len(specs)),
		specs:            make(map[string]Spec, len(specs)),
		byTag:            make(map[string]string, len(specs)),
		backwashDuration: DefaultBackwashDuration,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(reg)
		}
	}

	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := reg.units[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidSpec, s.ID)
		}
		if _, dup := reg.byTag[s.Tag]; dup {
			return nil, fmt.Errorf("%w: duplicate tag %q", ErrInvalidSpec, s.Tag)
		}
		reg.specs[s.ID] = s
		reg.byTag[s.Tag] = s.ID
		reg.order = append(reg.order, s.ID)
		reg.units[s.ID] = newUnit(s)
	}
	sort.Strings(reg.order)
	return reg, nil
}

func newUnit(s Spec) *model.EquipmentUnit {
	u := &model.EquipmentUnit{
		ID:    s.ID,
		Tag:   s.Tag,
		Name:  s.Name,
		Kind:  s.Kind,
		State: s.initialState(),
		Unit:  s.Unit,
	}
	switch s.Kind {
	case model.KindPump:
		u.Speed = s.Speed
		u.SetpointLabel = s.SetpointLabel
		if u.SetpointLabel == "" {
			u.SetpointLabel = s.Name + " speed"
		}
		if u.Unit == "" {
			u.Unit = "%"
		}
	case model.KindChemicalFeed:
		u.Setpoint = s.Setpoint
		u.SetpointLabel = s.SetpointLabel
		if u.SetpointLabel == "" {
			u.SetpointLabel = s.Name + " setpoint"
		}
	case model.KindFilterBed, model.KindBackwashUnit:
		u.BackwashInProgress = u.State == model.StateBackwashing
	}
	return u
}

// Resolve maps an id or tag onto the canonical unit id.
func (r *Registry) Resolve(idOrTag string) (string, error) {
	if _, ok := r.units[idOrTag]; ok {
		return idOrTag, nil
	}
	if id, ok := r.byTag[idOrTag]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEquipment, idOrTag)
}

// Unit returns a copy of one unit.
func (r *Registry) Unit(idOrTag string) (model.EquipmentUnit, error) {
	id, err := r.Resolve(idOrTag)
	if err != nil {
		return model.EquipmentUnit{}, err
	}
	return *r.units[id], nil
}

// Units returns a copy of every unit keyed by id, suitable for a snapshot.
func (r *Registry) Units() map[string]model.EquipmentUnit {
	out := make(map[string]model.EquipmentUnit, len(r.units))
	for id, u := range r.units {
		out[id] = *u
	}
	return out
}

// Issue validates cmd against the unit's current state and, on success,
// mutates the unit, records one history event and returns the before/after pair.
// Rejections leave the unit untouched.
func (r *Registry) Issue(cmd Command) (Result, error) {
	id, err := r.Resolve(cmd.EquipmentID)
	if err != nil {
		return Result{}, err
	}
	u := r.units[id]
	spec := r.specs[id]

	next := *u
	ch, err := apply(&next, spec, cmd)
	if err != nil {
		return Result{}, fmt.Errorf("%w (%s %s in state %s)", err, id, cmd.Verb, u.State)
	}
	*u = next

	ev := model.HistoryEvent{
		Category:    ch.category,
		EntityID:    u.ID,
		Tag:         u.Tag,
		Description: ch.describe(u),
		Before:      ch.before,
		After:       ch.after,
		Value:       ch.value,
	}
	if r.clock != nil {
		ev.Time = r.clock.Now()
	}
	if r.recorder != nil {
		ev = r.recorder.Record(ev)
	}

	return Result{
		Unit:   *u,
		Before: ch.before,
		After:  ch.after,
		NoOp:   ch.noop,
		Event:  ev,
	}, nil
}

// Advance accumulates run time for in-service filter beds and backwash
// units and completes any backwash that has lasted the configured duration.
// It returns the ids whose backwash completed during this advance.
func (r *Registry) Advance(dt time.Duration) []string {
	if dt <= 0 {
		return nil
	}
	var completed []string
	for _, id := range r.order {
		u := r.units[id]
		if u.Kind != model.KindFilterBed && u.Kind != model.KindBackwashUnit {
			continue
		}
		switch u.State {
		case model.StateNormal:
			u.RunTime += dt
		case model.StateBackwashing:
			u.BackwashElapsed += dt
			if u.BackwashElapsed >= r.backwashDuration {
				next := *u
				if _, err := completeBackwash(&next); err == nil {
					*u = next
					completed = append(completed, id)
				}
			}
		}
	}
	return completed
}

// AddHeadLoss raises the head loss accumulator of an in-service filter bed or
// backwash unit. Non-positive deltas are ignored so head loss only ever rises
// between backwashes.
func (r *Registry) AddHeadLoss(idOrTag string, delta float64) error {
	id, err := r.Resolve(idOrTag)
	if err != nil {
		return err
	}
	u := r.units[id]
	if u.Kind != model.KindFilterBed && u.Kind != model.KindBackwashUnit {
		return fmt.Errorf("%w: %s has no head loss", ErrInvalidTransition, id)
	}
	if u.State != model.StateNormal || delta <= 0 {
		return nil
	}
	u.HeadLoss += delta
	return nil
}
