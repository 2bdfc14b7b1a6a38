package tutorial

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/plant-trainer/model"
)

// ErrInvalidDefinition indicates a tutorial definition failed validation.
var ErrInvalidDefinition = errors.New("tutorial: invalid definition")

// RuleKind selects how a step advances.
type RuleKind string

const (
	// RuleNone is an observation step advanced by an explicit Next.
	RuleNone RuleKind = "none"
	// RuleUIEvent waits for the trainee to act on a specific UI element.
	RuleUIEvent RuleKind = "onUiEvent"
	// RuleWaitFor advances when a predicate holds on a snapshot.
	RuleWaitFor RuleKind = "waitFor"
)

// StepSpec is one step as written in a catalog file. At most one of
// OnUIEvent and WaitFor is set.
type StepSpec struct {
	Instruction       string         `yaml:"instruction" json:"instruction"`
	Hint              string         `yaml:"hint,omitempty" json:"hint,omitempty"`
	SpotlightTargetID string         `yaml:"spotlight,omitempty" json:"spotlightTargetId,omitempty"`
	OnUIEvent         string         `yaml:"on_ui_event,omitempty" json:"onUiEvent,omitempty"`
	WaitFor           *PredicateSpec `yaml:"wait_for,omitempty" json:"waitFor,omitempty"`
}

// Rule reports which advance rule the step uses.
func (s StepSpec) Rule() RuleKind {
	switch {
	case s.WaitFor != nil:
		return RuleWaitFor
	case s.OnUIEvent != "":
		return RuleUIEvent
	default:
		return RuleNone
	}
}

// Definition is a tutorial as loaded from the catalog.
type Definition struct {
	ID          string         `yaml:"id" json:"id"`
	Title       string         `yaml:"title" json:"title"`
	Description string         `yaml:"description" json:"description"`
	OnStart     []model.Effect `yaml:"on_start,omitempty" json:"onStart,omitempty"`
	Steps       []StepSpec     `yaml:"steps" json:"steps"`
}

// Summary is the catalog card for a tutorial.
type Summary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StepCount   int    `json:"stepCount"`
}

// Summary returns the catalog card.
func (d Definition) Summary() Summary {
	return Summary{ID: d.ID, Title: d.Title, Description: d.Description, StepCount: len(d.Steps)}
}

type compiledStep struct {
	spec StepSpec
	rule RuleKind
	pred Predicate
}

// Tutorial is a validated definition with its predicates compiled.
type Tutorial struct {
	def   Definition
	steps []compiledStep
}

// Definition returns the source definition.
func (t *Tutorial) Definition() Definition { return t.def }

// StepCount returns the number of steps.
func (t *Tutorial) StepCount() int { return len(t.steps) }

// Compile validates d and compiles every waitFor predicate against reg.
func Compile(d Definition, reg *Registry) (*Tutorial, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidDefinition)
	}
	if d.Title == "" {
		return nil, fmt.Errorf("%w: %s has no title", ErrInvalidDefinition, d.ID)
	}
	if len(d.Steps) == 0 {
		return nil, fmt.Errorf("%w: %s has no steps", ErrInvalidDefinition, d.ID)
	}
	for i, e := range d.OnStart {
		if e.IsForce() == (e.Equipment != "") {
			return nil, fmt.Errorf("%w: %s on_start %d must set exactly one of force_tag or equipment", ErrInvalidDefinition, d.ID, i)
		}
		if e.IsForce() && e.Value == nil {
			return nil, fmt.Errorf("%w: %s on_start %d forces %s without a value", ErrInvalidDefinition, d.ID, i, e.ForceTag)
		}
	}

	t := &Tutorial{def: d, steps: make([]compiledStep, 0, len(d.Steps))}
	for i, s := range d.Steps {
		if s.Instruction == "" {
			return nil, fmt.Errorf("%w: %s step %d has no instruction", ErrInvalidDefinition, d.ID, i+1)
		}
		if s.OnUIEvent != "" && s.WaitFor != nil {
			return nil, fmt.Errorf("%w: %s step %d sets both on_ui_event and wait_for", ErrInvalidDefinition, d.ID, i+1)
		}
		cs := compiledStep{spec: s, rule: s.Rule()}
		if cs.rule == RuleWaitFor {
			p, err := reg.Compile(*s.WaitFor)
			if err != nil {
				return nil, fmt.Errorf("%w: %s step %d: %v", ErrInvalidDefinition, d.ID, i+1, err)
			}
			cs.pred = p
		}
		t.steps = append(t.steps, cs)
	}
	return t, nil
}
