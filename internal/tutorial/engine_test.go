package tutorial

import (
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/plant-trainer/model"
)

var start = time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func snapshot() *model.ProcessState {
	return &model.ProcessState{
		Tick: 1,
		Equipment: map[string]model.EquipmentUnit{
			"INT-P-101":  {ID: "INT-P-101", Tag: "P-101", Kind: model.KindPump, State: model.StateRunning, Speed: 80},
			"COA-FD-201": {ID: "COA-FD-201", Kind: model.KindChemicalFeed, State: model.StateDosing, Setpoint: 18},
		},
		Tags: map[string]model.TagReading{
			model.TagFlocTurbidity: {Tag: model.TagFlocTurbidity, Value: 2.7},
		},
	}
}

// chainDef has observation, observation, an already-true waitFor, then a UI step.
func chainDef() Definition {
	return Definition{
		ID:    "coag-basics",
		Title: "Coagulation basics",
		Steps: []StepSpec{
			{Instruction: "Welcome"},
			{Instruction: "Find the intake pump", SpotlightTargetID: "pump-101"},
			{Instruction: "Confirm the pump runs", WaitFor: &PredicateSpec{Kind: "equipment_state", Equipment: "INT-P-101", State: "running"}},
			{Instruction: "Open the alum panel", OnUIEvent: "open-alum-panel"},
			{Instruction: "Raise alum to 25 mg/L", WaitFor: &PredicateSpec{Kind: "setpoint_at_least", Equipment: "COA-FD-201", Value: f(25)}},
			{Instruction: "Done"},
		},
	}
}

func newEngine(t *testing.T, defs ...Definition) *Engine {
	t.Helper()
	e, err := NewEngine(defs, NewRegistry())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestSatisfiedWaitStepIsSkippedOnNext(t *testing.T) {
	e := newEngine(t, chainDef())
	if _, err := e.Start("coag-basics", start); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Evaluate(snapshot())
	if got := e.View().StepIndex; got != 0 {
		t.Fatalf("start landed on %d, want 0", got)
	}
	if err := e.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	// Step 3 (index 2) is already satisfied, so Next from step 2 lands on step 4.
	if err := e.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	v := e.View()
	if v.StepIndex != 3 || v.AwaitingUIEvent != "open-alum-panel" {
		t.Fatalf("view = %+v, want step index 3 awaiting UI event", v)
	}
}

func TestStartChainsThroughSatisfiedSteps(t *testing.T) {
	def := Definition{
		ID:    "chain",
		Title: "Chain",
		Steps: []StepSpec{
			{Instruction: "a", WaitFor: &PredicateSpec{Kind: "always"}},
			{Instruction: "b", WaitFor: &PredicateSpec{Kind: "tag_below", Tag: model.TagFlocTurbidity, Value: f(5)}},
			{Instruction: "c", WaitFor: &PredicateSpec{Kind: "no_alarms"}},
			{Instruction: "d", OnUIEvent: "btn"},
			{Instruction: "e"},
		},
	}
	land := func() int {
		e := newEngine(t, def)
		if _, err := e.Start("chain", start); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if n := e.Evaluate(snapshot()); n != 3 {
			t.Fatalf("advanced %d steps, want 3", n)
		}
		return e.View().StepIndex
	}
	first, second := land(), land()
	if first != 3 || second != 3 {
		t.Fatalf("landed on %d and %d, want 3", first, second)
	}
}

func TestWaitForAdvancesOnLaterSnapshot(t *testing.T) {
	e := newEngine(t, chainDef())
	e.Start("coag-basics", start)
	snap := snapshot()
	e.Evaluate(snap)
	e.Next()
	e.Next()
	if ok, err := e.ReportUIEvent("open-alum-panel"); err != nil || !ok {
		t.Fatalf("ReportUIEvent = %v, %v", ok, err)
	}
	if err := e.Next(); err != nil {
		t.Fatalf("Next after UI event: %v", err)
	}
	if v := e.View(); v.StepIndex != 4 || !v.WaitBlocked {
		t.Fatalf("view = %+v, want blocked at 4", v)
	}
	if err := e.Next(); !errors.Is(err, ErrStepBlocked) {
		t.Fatalf("Next on waitFor step: %v", err)
	}

	next := snapshot()
	feed := next.Equipment["COA-FD-201"]
	feed.Setpoint = 25
	next.Equipment["COA-FD-201"] = feed
	if n := e.Evaluate(next); n != 1 {
		t.Fatalf("advanced %d, want 1", n)
	}
	if err := e.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if e.Phase() != PhaseComplete {
		t.Fatalf("phase = %s", e.Phase())
	}
	e.Exit()
	if e.Phase() != PhaseIdle || e.View().TutorialID != "" {
		t.Fatalf("exit did not discard run")
	}
}

func TestUIEventStepBlocksUntilReported(t *testing.T) {
	e := newEngine(t, Definition{ID: "ui", Title: "UI", Steps: []StepSpec{
		{Instruction: "click", OnUIEvent: "btn-start"},
		{Instruction: "next"},
	}})
	e.Start("ui", start)
	e.Evaluate(snapshot())
	if err := e.Next(); !errors.Is(err, ErrStepBlocked) {
		t.Fatalf("expected blocked, got %v", err)
	}
	if ok, _ := e.ReportUIEvent("something-else"); ok {
		t.Fatalf("unrelated event satisfied the step")
	}
	if ok, _ := e.ReportUIEvent("btn-start"); !ok {
		t.Fatalf("matching event not accepted")
	}
	if !e.View().CanNext {
		t.Fatalf("CanNext false after event")
	}
	if err := e.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
}

func TestBackInvertsNextAndIsDisabledAtZero(t *testing.T) {
	e := newEngine(t, Definition{ID: "obs", Title: "Obs", Steps: []StepSpec{
		{Instruction: "one"}, {Instruction: "two"}, {Instruction: "three"},
	}})
	e.Start("obs", start)
	e.Evaluate(snapshot())
	if v := e.View(); v.CanBack {
		t.Fatalf("back enabled at step 0")
	}
	if err := e.Back(); err != nil || e.View().StepIndex != 0 {
		t.Fatalf("back at 0 changed state: %v %d", err, e.View().StepIndex)
	}
	e.Next()
	e.Next()
	if err := e.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if got := e.View().StepIndex; got != 1 {
		t.Fatalf("after back index = %d, want 1", got)
	}
}

func TestLifecycleErrors(t *testing.T) {
	e := newEngine(t, chainDef())
	if _, err := e.Start("missing", start); !errors.Is(err, model.ErrUnknownEntity) {
		t.Fatalf("expected unknown tutorial, got %v", err)
	}
	if err := e.Next(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Next while idle: %v", err)
	}
	e.Start("coag-basics", start)
	if _, err := e.Start("coag-basics", start); !errors.Is(err, model.ErrConflictingActivation) {
		t.Fatalf("second Start: %v", err)
	}
	if err := e.Finish(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Finish at step 0: %v", err)
	}
	e.Exit()
	if _, err := e.Start("coag-basics", start); err != nil {
		t.Fatalf("Start after exit: %v", err)
	}
}

func TestStartReturnsOnStartEffects(t *testing.T) {
	def := chainDef()
	def.OnStart = []model.Effect{{ForceTag: model.TagRawTurbidity, Value: f(60)}}
	e := newEngine(t, def)
	effects, err := e.Start(def.ID, start)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(effects) != 1 || effects[0].ForceTag != model.TagRawTurbidity {
		t.Fatalf("effects = %+v", effects)
	}
}

func TestCompileRejectsBadDefinitions(t *testing.T) {
	reg := NewRegistry()
	cases := []Definition{
		{Title: "x", Steps: []StepSpec{{Instruction: "a"}}},
		{ID: "x", Title: "x"},
		{ID: "x", Title: "x", Steps: []StepSpec{{}}},
		{ID: "x", Title: "x", Steps: []StepSpec{{Instruction: "a", OnUIEvent: "b", WaitFor: &PredicateSpec{Kind: "always"}}}},
		{ID: "x", Title: "x", Steps: []StepSpec{{Instruction: "a", WaitFor: &PredicateSpec{Kind: "teleport"}}}},
		{ID: "x", Title: "x", Steps: []StepSpec{{Instruction: "a", WaitFor: &PredicateSpec{Kind: "tag_above", Tag: "T"}}}},
	}
	for i, d := range cases {
		if _, err := Compile(d, reg); !errors.Is(err, ErrInvalidDefinition) {
			t.Fatalf("case %d: expected ErrInvalidDefinition, got %v", i, err)
		}
	}
}
