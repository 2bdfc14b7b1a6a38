// Package tutorial runs guided procedures over the live plant. A tutorial is
// a linear list of steps; each advances on an explicit Next, on a reported UI
// event, or automatically when a predicate holds on the latest snapshot.
package tutorial

import (
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/plant-trainer/model"
)

var (
	// ErrUnknownTutorial indicates no tutorial has the requested id.
	ErrUnknownTutorial = fmt.Errorf("tutorial: %w", model.ErrUnknownEntity)
	// ErrInvalidTransition indicates the operation is not legal in the current phase or step.
	ErrInvalidTransition = fmt.Errorf("tutorial: %w", model.ErrInvalidTransition)
	// ErrStepBlocked indicates Next was called before the step's rule was met.
	ErrStepBlocked = fmt.Errorf("tutorial: step not satisfied: %w", model.ErrInvalidTransition)
	// ErrAlreadyRunning indicates Start was called while a run exists.
	ErrAlreadyRunning = fmt.Errorf("tutorial: run in progress: %w", model.ErrConflictingActivation)
)

// Phase is the engine's lifecycle position.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseComplete Phase = "complete"
)

// Run is the single active tutorial run.
type Run struct {
	TutorialID string
	StepIndex  int
	StartedAt  time.Time
	// uiEvent is set once the current onUiEvent step's event was reported.
	uiEvent bool
}

// View is what the presentation layer renders for the current run.
type View struct {
	Phase             Phase     `json:"phase"`
	TutorialID        string    `json:"tutorialId,omitempty"`
	Title             string    `json:"title,omitempty"`
	StepIndex         int       `json:"stepIndex"`
	StepCount         int       `json:"stepCount"`
	Instruction       string    `json:"instruction,omitempty"`
	Hint              string    `json:"hint,omitempty"`
	SpotlightTargetID string    `json:"spotlightTargetId,omitempty"`
	Rule              RuleKind  `json:"rule,omitempty"`
	AwaitingUIEvent   string    `json:"awaitingUiEvent,omitempty"`
	WaitBlocked       bool      `json:"waitBlocked"`
	CanBack           bool      `json:"canBack"`
	CanNext           bool      `json:"canNext"`
	CanFinish         bool      `json:"canFinish"`
	StartedAt         time.Time `json:"startedAt,omitempty"`
}

// Engine is the tutorial state machine: idle, running, complete, idle. It is
// not safe for concurrent use; the simulation session serialises access and
// calls Evaluate with every new snapshot before publishing it.
type Engine struct {
	tutorials map[string]*Tutorial
	order     []string

	phase Phase
	run   *Run
	// last is the most recent snapshot passed to Evaluate.
	last *model.ProcessState
}

// NewEngine compiles defs against reg.
func NewEngine(defs []Definition, reg *Registry) (*Engine, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	e := &Engine{tutorials: make(map[string]*Tutorial, len(defs)), phase: PhaseIdle}
	for _, d := range defs {
		t, err := Compile(d, reg)
		if err != nil {
			return nil, err
		}
		if _, dup := e.tutorials[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidDefinition, d.ID)
		}
		e.tutorials[d.ID] = t
		e.order = append(e.order, d.ID)
	}
	sort.Strings(e.order)
	return e, nil
}

// Summaries lists every tutorial in id order.
func (e *Engine) Summaries() []Summary {
	out := make([]Summary, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.tutorials[id].def.Summary())
	}
	return out
}

// Tutorial looks up a compiled tutorial.
func (e *Engine) Tutorial(id string) (*Tutorial, error) {
	t, ok := e.tutorials[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTutorial, id)
	}
	return t, nil
}

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() Phase { return e.phase }

// Start creates the run at step 0 and returns the tutorial's onStart
// effects. The caller applies them and then calls Evaluate so already
// satisfied waitFor steps collapse before anything is published.
func (e *Engine) Start(id string, now time.Time) ([]model.Effect, error) {
	t, err := e.Tutorial(id)
	if err != nil {
		return nil, err
	}
	switch e.phase {
	case PhaseRunning:
		return nil, fmt.Errorf("%w: %q", ErrAlreadyRunning, e.run.TutorialID)
	case PhaseComplete:
		return nil, fmt.Errorf("%w: exit the completed tutorial first", ErrInvalidTransition)
	}
	e.run = &Run{TutorialID: id, StartedAt: now}
	e.phase = PhaseRunning
	return append([]model.Effect(nil), t.def.OnStart...), nil
}

// Evaluate records snap as the latest snapshot and runs the auto-advance
// chain. It returns how many steps were advanced.
func (e *Engine) Evaluate(snap *model.ProcessState) int {
	e.last = snap
	if e.phase != PhaseRunning {
		return 0
	}
	return e.autoAdvance()
}

// autoAdvance steps forward while the current step is a satisfied waitFor.
// The loop is bounded by the step count, and it never moves past the last
// step, which must be finished explicitly.
func (e *Engine) autoAdvance() int {
	t := e.tutorials[e.run.TutorialID]
	advanced := 0
	for i := 0; i < len(t.steps); i++ {
		if e.run.StepIndex >= len(t.steps)-1 {
			break
		}
		if !e.satisfied(t.steps[e.run.StepIndex]) {
			break
		}
		e.moveTo(e.run.StepIndex + 1)
		advanced++
	}
	return advanced
}

func (e *Engine) satisfied(s compiledStep) bool {
	switch s.rule {
	case RuleWaitFor:
		return s.pred(e.last)
	default:
		return false
	}
}

func (e *Engine) moveTo(idx int) {
	e.run.StepIndex = idx
	e.run.uiEvent = false
}

func (e *Engine) current() (*Tutorial, compiledStep, error) {
	if e.phase != PhaseRunning || e.run == nil {
		return nil, compiledStep{}, fmt.Errorf("%w: no tutorial running", ErrInvalidTransition)
	}
	t := e.tutorials[e.run.TutorialID]
	return t, t.steps[e.run.StepIndex], nil
}

// ReportUIEvent records that the trainee acted on eventID. It reports whether
// the event satisfied the current step; unrelated events are ignored.
func (e *Engine) ReportUIEvent(eventID string) (bool, error) {
	_, step, err := e.current()
	if err != nil {
		return false, err
	}
	if step.rule != RuleUIEvent || step.spec.OnUIEvent != eventID {
		return false, nil
	}
	e.run.uiEvent = true
	return true, nil
}

// Next advances one step when the current step is an observation step or an
// onUiEvent step whose event was reported, then runs the auto-advance chain
// against the latest snapshot.
func (e *Engine) Next() error {
	t, step, err := e.current()
	if err != nil {
		return err
	}
	if e.run.StepIndex >= len(t.steps)-1 {
		return fmt.Errorf("%w: already at the last step", ErrInvalidTransition)
	}
	switch step.rule {
	case RuleNone:
	case RuleUIEvent:
		if !e.run.uiEvent {
			return fmt.Errorf("%w: waiting for %q", ErrStepBlocked, step.spec.OnUIEvent)
		}
	case RuleWaitFor:
		return fmt.Errorf("%w: waiting for process condition", ErrStepBlocked)
	}
	e.moveTo(e.run.StepIndex + 1)
	e.autoAdvance()
	return nil
}

// Back returns to the previous step. At step 0 it is a no-op.
func (e *Engine) Back() error {
	if _, _, err := e.current(); err != nil {
		return err
	}
	if e.run.StepIndex == 0 {
		return nil
	}
	e.moveTo(e.run.StepIndex - 1)
	return nil
}

// Finish completes the run. It is only legal at the last step.
func (e *Engine) Finish() error {
	t, _, err := e.current()
	if err != nil {
		return err
	}
	if e.run.StepIndex != len(t.steps)-1 {
		return fmt.Errorf("%w: step %d of %d is not the last", ErrInvalidTransition, e.run.StepIndex+1, len(t.steps))
	}
	e.phase = PhaseComplete
	return nil
}

// Exit discards any run and returns to idle. It is legal in every phase.
func (e *Engine) Exit() {
	e.run = nil
	e.phase = PhaseIdle
}

// View renders the current run for the presentation layer.
func (e *Engine) View() View {
	v := View{Phase: e.phase}
	if e.run == nil {
		return v
	}
	t := e.tutorials[e.run.TutorialID]
	step := t.steps[e.run.StepIndex]
	last := e.run.StepIndex == len(t.steps)-1

	v.TutorialID = e.run.TutorialID
	v.Title = t.def.Title
	v.StepIndex = e.run.StepIndex
	v.StepCount = len(t.steps)
	v.Instruction = step.spec.Instruction
	v.Hint = step.spec.Hint
	v.SpotlightTargetID = step.spec.SpotlightTargetID
	v.Rule = step.rule
	v.StartedAt = e.run.StartedAt
	if step.rule == RuleUIEvent {
		v.AwaitingUIEvent = step.spec.OnUIEvent
	}
	v.WaitBlocked = step.rule == RuleWaitFor && !step.pred(e.last)

	if e.phase == PhaseRunning {
		v.CanBack = e.run.StepIndex > 0
		v.CanFinish = last
		switch step.rule {
		case RuleNone:
			v.CanNext = !last
		case RuleUIEvent:
			v.CanNext = !last && e.run.uiEvent
		}
	}
	return v
}
