package tutorial

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/plant-trainer/model"
)

// Predicate is a pure test over one snapshot.
type Predicate func(*model.ProcessState) bool

// ErrInvalidPredicate indicates a predicate spec could not be compiled.
var ErrInvalidPredicate = errors.New("tutorial: invalid predicate")

// PredicateSpec is the declarative form of a waitFor condition. Kind selects
// a builder; the remaining fields are its parameters.
type PredicateSpec struct {
	Kind      string          `yaml:"kind" json:"kind"`
	Name      string          `yaml:"name,omitempty" json:"name,omitempty"`
	Tag       string          `yaml:"tag,omitempty" json:"tag,omitempty"`
	Equipment string          `yaml:"equipment,omitempty" json:"equipment,omitempty"`
	State     string          `yaml:"state,omitempty" json:"state,omitempty"`
	Scenario  string          `yaml:"scenario,omitempty" json:"scenario,omitempty"`
	Value     *float64        `yaml:"value,omitempty" json:"value,omitempty"`
	All       []PredicateSpec `yaml:"all,omitempty" json:"all,omitempty"`
	Any       []PredicateSpec `yaml:"any,omitempty" json:"any,omitempty"`
	Not       *PredicateSpec  `yaml:"not,omitempty" json:"not,omitempty"`
}

// Builder turns a spec of one kind into a Predicate.
type Builder func(r *Registry, spec PredicateSpec) (Predicate, error)

// NamedPredicate combines a name with a predicate for registration.
type NamedPredicate struct {
	Name        string
	Description string
	Predicate   Predicate
}

// Registry compiles predicate specs. It holds the builders per kind plus
// named predicates referenced with kind "ref".
type Registry struct {
	builders map[string]Builder
	named    map[string]NamedPredicate
}

// NewRegistry returns a registry with every built-in kind installed.
func NewRegistry() *Registry {
	r := &Registry{
		builders: make(map[string]Builder),
		named:    make(map[string]NamedPredicate),
	}
	r.Register("always", buildAlways)
	r.Register("ref", buildRef)
	r.Register("all", buildAll)
	r.Register("any", buildAny)
	r.Register("not", buildNot)
	r.Register("equipment_state", buildEquipmentState)
	r.Register("tag_above", buildTagCompare(func(v, x float64) bool { return v > x }))
	r.Register("tag_below", buildTagCompare(func(v, x float64) bool { return v < x }))
	r.Register("setpoint_at_least", buildUnitCompare(func(u model.EquipmentUnit) float64 { return u.Setpoint }, func(v, x float64) bool { return v >= x }))
	r.Register("setpoint_at_most", buildUnitCompare(func(u model.EquipmentUnit) float64 { return u.Setpoint }, func(v, x float64) bool { return v <= x }))
	r.Register("speed_at_least", buildUnitCompare(func(u model.EquipmentUnit) float64 { return u.Speed }, func(v, x float64) bool { return v >= x }))
	r.Register("head_loss_below", buildUnitCompare(func(u model.EquipmentUnit) float64 { return u.HeadLoss }, func(v, x float64) bool { return v < x }))
	r.Register("alarm_active", buildAlarmActive)
	r.Register("alarm_acknowledged", buildAlarmAcknowledged)
	r.Register("no_alarms", buildNoAlarms)
	r.Register("scenario_active", buildScenarioActive)
	return r
}

// Register installs or replaces the builder for kind.
func (r *Registry) Register(kind string, b Builder) {
	if kind == "" || b == nil {
		return
	}
	r.builders[kind] = b
}

// AddPredicate registers named predicates for use with kind "ref".
func (r *Registry) AddPredicate(preds ...NamedPredicate) {
	for _, p := range preds {
		if p.Name == "" || p.Predicate == nil {
			continue
		}
		r.named[p.Name] = p
	}
}

// Compile turns spec into a Predicate. A nil snapshot always evaluates false.
func (r *Registry) Compile(spec PredicateSpec) (Predicate, error) {
	b, ok := r.builders[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidPredicate, spec.Kind)
	}
	p, err := b(r, spec)
	if err != nil {
		return nil, err
	}
	return func(s *model.ProcessState) bool {
		if s == nil {
			return false
		}
		return p(s)
	}, nil
}

func requireTag(spec PredicateSpec) error {
	if spec.Tag == "" {
		return fmt.Errorf("%w: %s needs tag", ErrInvalidPredicate, spec.Kind)
	}
	return nil
}

func requireValue(spec PredicateSpec) (float64, error) {
	if spec.Value == nil {
		return 0, fmt.Errorf("%w: %s needs value", ErrInvalidPredicate, spec.Kind)
	}
	return *spec.Value, nil
}

func buildAlways(_ *Registry, _ PredicateSpec) (Predicate, error) {
	return func(*model.ProcessState) bool { return true }, nil
}

func buildRef(r *Registry, spec PredicateSpec) (Predicate, error) {
	np, ok := r.named[spec.Name]
	if !ok {
		return nil, fmt.Errorf("%w: no predicate named %q", ErrInvalidPredicate, spec.Name)
	}
	return np.Predicate, nil
}

func compileAll(r *Registry, specs []PredicateSpec, kind string) ([]Predicate, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: %s needs children", ErrInvalidPredicate, kind)
	}
	out := make([]Predicate, 0, len(specs))
	for _, s := range specs {
		p, err := r.Compile(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func buildAll(r *Registry, spec PredicateSpec) (Predicate, error) {
	preds, err := compileAll(r, spec.All, spec.Kind)
	if err != nil {
		return nil, err
	}
	return func(s *model.ProcessState) bool {
		for _, p := range preds {
			if !p(s) {
				return false
			}
		}
		return true
	}, nil
}

func buildAny(r *Registry, spec PredicateSpec) (Predicate, error) {
	preds, err := compileAll(r, spec.Any, spec.Kind)
	if err != nil {
		return nil, err
	}
	return func(s *model.ProcessState) bool {
		for _, p := range preds {
			if p(s) {
				return true
			}
		}
		return false
	}, nil
}

func buildNot(r *Registry, spec PredicateSpec) (Predicate, error) {
	if spec.Not == nil {
		return nil, fmt.Errorf("%w: not needs a child", ErrInvalidPredicate)
	}
	p, err := r.Compile(*spec.Not)
	if err != nil {
		return nil, err
	}
	return func(s *model.ProcessState) bool { return !p(s) }, nil
}

func buildEquipmentState(_ *Registry, spec PredicateSpec) (Predicate, error) {
	if spec.Equipment == "" || spec.State == "" {
		return nil, fmt.Errorf("%w: equipment_state needs equipment and state", ErrInvalidPredicate)
	}
	want := model.EquipmentState(spec.State)
	return func(s *model.ProcessState) bool {
		u, ok := s.Unit(spec.Equipment)
		return ok && u.State == want
	}, nil
}

func buildTagCompare(cmp func(v, x float64) bool) Builder {
	return func(_ *Registry, spec PredicateSpec) (Predicate, error) {
		if err := requireTag(spec); err != nil {
			return nil, err
		}
		x, err := requireValue(spec)
		if err != nil {
			return nil, err
		}
		return func(s *model.ProcessState) bool {
			v, ok := s.TagValue(spec.Tag)
			return ok && cmp(v, x)
		}, nil
	}
}

func buildUnitCompare(field func(model.EquipmentUnit) float64, cmp func(v, x float64) bool) Builder {
	return func(_ *Registry, spec PredicateSpec) (Predicate, error) {
		if spec.Equipment == "" {
			return nil, fmt.Errorf("%w: %s needs equipment", ErrInvalidPredicate, spec.Kind)
		}
		x, err := requireValue(spec)
		if err != nil {
			return nil, err
		}
		return func(s *model.ProcessState) bool {
			u, ok := s.Unit(spec.Equipment)
			return ok && cmp(field(u), x)
		}, nil
	}
}

func buildAlarmActive(_ *Registry, spec PredicateSpec) (Predicate, error) {
	if err := requireTag(spec); err != nil {
		return nil, err
	}
	return func(s *model.ProcessState) bool { return s.AlarmActiveFor(spec.Tag) }, nil
}

func buildAlarmAcknowledged(_ *Registry, spec PredicateSpec) (Predicate, error) {
	if err := requireTag(spec); err != nil {
		return nil, err
	}
	return func(s *model.ProcessState) bool {
		for _, a := range s.ActiveAlarms {
			if a.Tag == spec.Tag && a.State == model.AlarmAcknowledged {
				return true
			}
		}
		return false
	}, nil
}

func buildNoAlarms(_ *Registry, _ PredicateSpec) (Predicate, error) {
	return func(s *model.ProcessState) bool { return len(s.ActiveAlarms) == 0 }, nil
}

func buildScenarioActive(_ *Registry, spec PredicateSpec) (Predicate, error) {
	return func(s *model.ProcessState) bool {
		if spec.Scenario == "" {
			return s.ActiveScenario != ""
		}
		return s.ActiveScenario == spec.Scenario
	}, nil
}
