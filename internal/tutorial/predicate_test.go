package tutorial

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/plant-trainer/model"
)

func TestBuiltinPredicates(t *testing.T) {
	snap := snapshot()
	snap.ActiveAlarms = []model.AlarmRecord{{Tag: model.TagFilteredTurbidity, State: model.AlarmAcknowledged}}
	snap.ActiveScenario = "turbidity-spike"

	cases := []struct {
		name string
		spec PredicateSpec
		want bool
	}{
		{"pump running", PredicateSpec{Kind: "equipment_state", Equipment: "INT-P-101", State: "running"}, true},
		{"pump by tag", PredicateSpec{Kind: "equipment_state", Equipment: "P-101", State: "running"}, true},
		{"pump stopped", PredicateSpec{Kind: "equipment_state", Equipment: "INT-P-101", State: "stopped"}, false},
		{"tag above", PredicateSpec{Kind: "tag_above", Tag: model.TagFlocTurbidity, Value: f(2)}, true},
		{"tag below", PredicateSpec{Kind: "tag_below", Tag: model.TagFlocTurbidity, Value: f(2)}, false},
		{"missing tag", PredicateSpec{Kind: "tag_below", Tag: "NOPE", Value: f(2)}, false},
		{"setpoint", PredicateSpec{Kind: "setpoint_at_least", Equipment: "COA-FD-201", Value: f(18)}, true},
		{"speed", PredicateSpec{Kind: "speed_at_least", Equipment: "INT-P-101", Value: f(90)}, false},
		{"alarm active", PredicateSpec{Kind: "alarm_active", Tag: model.TagFilteredTurbidity}, true},
		{"alarm acked", PredicateSpec{Kind: "alarm_acknowledged", Tag: model.TagFilteredTurbidity}, true},
		{"no alarms", PredicateSpec{Kind: "no_alarms"}, false},
		{"scenario", PredicateSpec{Kind: "scenario_active", Scenario: "turbidity-spike"}, true},
		{"any scenario", PredicateSpec{Kind: "scenario_active"}, true},
		{"all", PredicateSpec{Kind: "all", All: []PredicateSpec{{Kind: "always"}, {Kind: "no_alarms"}}}, false},
		{"any", PredicateSpec{Kind: "any", Any: []PredicateSpec{{Kind: "no_alarms"}, {Kind: "always"}}}, true},
		{"not", PredicateSpec{Kind: "not", Not: &PredicateSpec{Kind: "no_alarms"}}, true},
	}
	reg := NewRegistry()
	for _, tc := range cases {
		p, err := reg.Compile(tc.spec)
		if err != nil {
			t.Fatalf("%s: compile: %v", tc.name, err)
		}
		if got := p(snap); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNilSnapshotIsFalse(t *testing.T) {
	p, err := NewRegistry().Compile(PredicateSpec{Kind: "always"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if p(nil) {
		t.Fatalf("predicate held on nil snapshot")
	}
}

func TestNamedPredicates(t *testing.T) {
	reg := NewRegistry()
	reg.AddPredicate(NamedPredicate{
		Name:        "floc-clear",
		Description: "floc turbidity under 3 NTU",
		Predicate: func(s *model.ProcessState) bool {
			v, ok := s.TagValue(model.TagFlocTurbidity)
			return ok && v < 3
		},
	})
	p, err := reg.Compile(PredicateSpec{Kind: "ref", Name: "floc-clear"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !p(snapshot()) {
		t.Fatalf("named predicate false")
	}
	if _, err := reg.Compile(PredicateSpec{Kind: "ref", Name: "unknown"}); !errors.Is(err, ErrInvalidPredicate) {
		t.Fatalf("expected invalid predicate, got %v", err)
	}
}
