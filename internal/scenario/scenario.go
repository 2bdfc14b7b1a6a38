// Package scenario holds the fault-injection scenarios a trainer can run and
// enforces that at most one is active.
package scenario

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/signalsfoundry/plant-trainer/internal/process"
	"github.com/signalsfoundry/plant-trainer/model"
)

var (
	// ErrUnknownScenario indicates no definition has the requested id.
	ErrUnknownScenario = fmt.Errorf("scenario: %w", model.ErrUnknownEntity)
	// ErrConflictingActivation indicates another scenario is already active.
	ErrConflictingActivation = fmt.Errorf("scenario: %w", model.ErrConflictingActivation)
	// ErrInvalidDefinition indicates a scenario definition failed validation.
	ErrInvalidDefinition = errors.New("scenario: invalid definition")
)

// Difficulty grades a scenario for the catalog.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Definition describes one scenario.
type Definition struct {
	ID          string             `yaml:"id" json:"id"`
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description" json:"description"`
	Difficulty  Difficulty         `yaml:"difficulty" json:"difficulty"`
	Overrides   []process.Override `yaml:"overrides" json:"overrides"`
	OnStart     []model.Effect     `yaml:"on_start" json:"onStart,omitempty"`
	OnStop      []model.Effect     `yaml:"on_stop" json:"onStop,omitempty"`
}

// Validate checks the definition is usable.
func (d Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDefinition)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: %s has no name", ErrInvalidDefinition, d.ID)
	}
	switch d.Difficulty {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced, "":
	default:
		return fmt.Errorf("%w: %s has difficulty %q", ErrInvalidDefinition, d.ID, d.Difficulty)
	}
	for i, o := range d.Overrides {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("%w: %s override %d: %v", ErrInvalidDefinition, d.ID, i, err)
		}
	}
	for _, effects := range [][]model.Effect{d.OnStart, d.OnStop} {
		for i, e := range effects {
			if e.IsForce() == (e.Equipment != "") {
				return fmt.Errorf("%w: %s effect %d must set exactly one of force_tag or equipment", ErrInvalidDefinition, d.ID, i)
			}
			if e.Equipment != "" {
				if _, ok := model.ParseVerb(string(e.Verb)); !ok {
					return fmt.Errorf("%w: %s effect %d has verb %q", ErrInvalidDefinition, d.ID, i, e.Verb)
				}
			}
			if e.IsForce() && e.Value == nil {
				return fmt.Errorf("%w: %s effect %d forces %s without a value", ErrInvalidDefinition, d.ID, i, e.ForceTag)
			}
		}
	}
	return nil
}

// Summary is the catalog card for a scenario.
type Summary struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Difficulty   Difficulty `json:"difficulty"`
	FeatureCount int        `json:"featureCount"`
}

// Summary returns the catalog card.
func (d Definition) Summary() Summary {
	return Summary{
		ID:           d.ID,
		Title:        d.Name,
		Description:  d.Description,
		Difficulty:   d.Difficulty,
		FeatureCount: len(d.Overrides) + len(d.OnStart),
	}
}

// Active describes the running scenario.
type Active struct {
	Definition Definition `json:"definition"`
	StartedAt  time.Time  `json:"startedAt"`
}

// Injector owns the active-scenario singleton and the override set derived
// from it. It is not safe for concurrent use; the session serialises access.
type Injector struct {
	defs      map[string]Definition
	order     []string
	active    *Active
	overrides process.Overrides
}

// NewInjector validates defs and returns an injector with nothing active.
func NewInjector(defs []Definition) (*Injector, error) {
	inj := &Injector{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := inj.defs[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidDefinition, d.ID)
		}
		inj.defs[d.ID] = d
		inj.order = append(inj.order, d.ID)
	}
	sort.Strings(inj.order)
	return inj, nil
}

// Definition looks up a scenario by id.
func (inj *Injector) Definition(id string) (Definition, error) {
	d, ok := inj.defs[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}
	return d, nil
}

// Summaries lists every scenario in id order.
func (inj *Injector) Summaries() []Summary {
	out := make([]Summary, 0, len(inj.order))
	for _, id := range inj.order {
		out = append(out, inj.defs[id].Summary())
	}
	return out
}

// Start activates id. It fails with ErrConflictingActivation while any
// scenario, including id itself, is active.
func (inj *Injector) Start(id string, now time.Time) (Definition, error) {
	d, err := inj.Definition(id)
	if err != nil {
		return Definition{}, err
	}
	if inj.active != nil {
		return Definition{}, fmt.Errorf("%w: %q is active", ErrConflictingActivation, inj.active.Definition.ID)
	}
	inj.overrides = seeded(d)
	inj.active = &Active{Definition: d, StartedAt: now}
	return d, nil
}

// Stop deactivates the running scenario and drops its overrides. It reports
// false when nothing was active.
func (inj *Injector) Stop() (Definition, bool) {
	if inj.active == nil {
		return Definition{}, false
	}
	d := inj.active.Definition
	inj.active = nil
	inj.overrides = nil
	return d, true
}

// Active returns the running scenario, if any.
func (inj *Injector) Active() (Active, bool) {
	if inj.active == nil {
		return Active{}, false
	}
	return *inj.active, true
}

// Overrides returns the override set to feed the process model this tick.
func (inj *Injector) Overrides() process.Overrides {
	return append(process.Overrides(nil), inj.overrides...)
}

// seeded copies d's overrides, giving unseeded noise a seed derived from the
// scenario id so each scenario has its own repeatable noise.
func seeded(d Definition) process.Overrides {
	out := make(process.Overrides, len(d.Overrides))
	for i, o := range d.Overrides {
		if o.Op == process.OpNoise && o.Seed == 0 {
			h := fnv.New64a()
			_, _ = h.Write([]byte(d.ID))
			_, _ = h.Write([]byte(o.Input))
			o.Seed = h.Sum64()
		}
		out[i] = o
	}
	return out
}
