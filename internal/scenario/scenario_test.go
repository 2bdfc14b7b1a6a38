package scenario

import (
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/plant-trainer/internal/process"
	"github.com/signalsfoundry/plant-trainer/model"
)

var now = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func testDefs() []Definition {
	v := 0.0
	return []Definition{
		{
			ID:         "turbidity-spike",
			Name:       "Raw water turbidity spike",
			Difficulty: DifficultyIntermediate,
			Overrides: []process.Override{
				{Input: process.InputRawTurbidity, Op: process.OpSet, Value: 80},
				{Input: process.InputRawTurbidity, Op: process.OpNoise, Value: 5},
			},
		},
		{
			ID:         "chlorine-demand",
			Name:       "Chlorine demand surge",
			Difficulty: DifficultyAdvanced,
			Overrides:  []process.Override{{Input: process.InputChlorineDemand, Op: process.OpScale, Value: 3}},
			OnStart:    []model.Effect{{Equipment: "DIS-FD-401", Verb: model.VerbApplySetpoint, Value: &v}},
		},
	}
}

func newInjector(t *testing.T) *Injector {
	t.Helper()
	inj, err := NewInjector(testDefs())
	if err != nil {
		t.Fatalf("NewInjector: %v", err)
	}
	return inj
}

func TestStartWhileActiveIsRejected(t *testing.T) {
	inj := newInjector(t)
	if _, err := inj.Start("turbidity-spike", now); err != nil {
		t.Fatalf("Start A: %v", err)
	}
	_, err := inj.Start("chlorine-demand", now)
	if !errors.Is(err, ErrConflictingActivation) || !errors.Is(err, model.ErrConflictingActivation) {
		t.Fatalf("expected conflicting activation, got %v", err)
	}
	act, ok := inj.Active()
	if !ok || act.Definition.ID != "turbidity-spike" {
		t.Fatalf("active scenario changed after rejection: %+v", act)
	}
}

func TestStopThenStartReplacesOverrides(t *testing.T) {
	inj := newInjector(t)
	if _, err := inj.Start("turbidity-spike", now); err != nil {
		t.Fatalf("Start A: %v", err)
	}
	if len(inj.Overrides()) != 2 {
		t.Fatalf("overrides = %+v", inj.Overrides())
	}
	if _, ok := inj.Stop(); !ok {
		t.Fatalf("Stop reported nothing active")
	}
	if len(inj.Overrides()) != 0 {
		t.Fatalf("overrides survived stop: %+v", inj.Overrides())
	}
	if _, err := inj.Start("chlorine-demand", now); err != nil {
		t.Fatalf("Start B: %v", err)
	}
	for _, o := range inj.Overrides() {
		if o.Input == process.InputRawTurbidity {
			t.Fatalf("override from previous scenario leaked: %+v", o)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	inj := newInjector(t)
	if _, ok := inj.Stop(); ok {
		t.Fatalf("Stop with nothing active reported true")
	}
	inj.Start("turbidity-spike", now)
	inj.Stop()
	if _, ok := inj.Stop(); ok {
		t.Fatalf("second Stop reported true")
	}
}

func TestUnknownScenario(t *testing.T) {
	inj := newInjector(t)
	if _, err := inj.Start("nope", now); !errors.Is(err, model.ErrUnknownEntity) {
		t.Fatalf("expected unknown entity, got %v", err)
	}
}

func TestNoiseSeedIsStablePerScenario(t *testing.T) {
	a, b := newInjector(t), newInjector(t)
	a.Start("turbidity-spike", now)
	b.Start("turbidity-spike", now)
	oa, ob := a.Overrides(), b.Overrides()
	if oa[1].Seed == 0 || oa[1].Seed != ob[1].Seed {
		t.Fatalf("noise seeds differ or unset: %d vs %d", oa[1].Seed, ob[1].Seed)
	}
}

func TestSummaries(t *testing.T) {
	inj := newInjector(t)
	got := inj.Summaries()
	if len(got) != 2 || got[0].ID != "chlorine-demand" || got[0].FeatureCount != 2 {
		t.Fatalf("summaries = %+v", got)
	}
}

func TestDefinitionValidation(t *testing.T) {
	cases := []Definition{
		{Name: "no id"},
		{ID: "x"},
		{ID: "x", Name: "x", Difficulty: "legendary"},
		{ID: "x", Name: "x", Overrides: []process.Override{{Input: "bogus", Op: process.OpSet}}},
		{ID: "x", Name: "x", OnStart: []model.Effect{{Equipment: "P1", Verb: "explode"}}},
		{ID: "x", Name: "x", OnStart: []model.Effect{{ForceTag: model.TagRawPH}}},
	}
	for i, d := range cases {
		if err := d.Validate(); !errors.Is(err, ErrInvalidDefinition) {
			t.Fatalf("case %d: expected ErrInvalidDefinition, got %v", i, err)
		}
	}
	if _, err := NewInjector(append(testDefs(), testDefs()[0])); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}
