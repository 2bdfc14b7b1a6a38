package equipment

import (
	"fmt"

	"github.com/signalsfoundry/plant-trainer/model"
)

// Spec is the static definition of one unit as loaded from the plant file.
type Spec struct {
	ID           string               `yaml:"id"`
	Tag          string               `yaml:"tag"`
	Name         string               `yaml:"name"`
	Kind         model.EquipmentKind  `yaml:"kind"`
	InitialState model.EquipmentState `yaml:"initial_state"`

	// Pumps.
	Speed    float64 `yaml:"speed"`
	MinSpeed float64 `yaml:"min_speed"`
	MaxSpeed float64 `yaml:"max_speed"`

	// Chemical feeds.
	Setpoint      float64 `yaml:"setpoint"`
	MinSetpoint   float64 `yaml:"min_setpoint"`
	MaxSetpoint   float64 `yaml:"max_setpoint"`
	SetpointLabel string  `yaml:"setpoint_label"`
	Unit          string  `yaml:"unit"`
}

// Validate checks that the spec describes a consistent unit.
func (s Spec) Validate() error {
	if s.ID == "" || s.Tag == "" {
		return fmt.Errorf("%w: unit needs both id and tag", ErrInvalidSpec)
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidSpec, s.ID, s.Kind)
	}
	state := s.initialState()
	if !stateLegal(s.Kind, state) {
		return fmt.Errorf("%w: %s cannot start in state %q", ErrInvalidSpec, s.ID, state)
	}
	switch s.Kind {
	case model.KindPump:
		lo, hi := s.speedBounds()
		if lo > hi || s.Speed < lo || s.Speed > hi {
			return fmt.Errorf("%w: %s speed %.1f outside [%.1f, %.1f]", ErrInvalidSpec, s.ID, s.Speed, lo, hi)
		}
	case model.KindChemicalFeed:
		if s.MinSetpoint > s.MaxSetpoint || s.Setpoint < s.MinSetpoint || s.Setpoint > s.MaxSetpoint {
			return fmt.Errorf("%w: %s setpoint %.1f outside [%.1f, %.1f]", ErrInvalidSpec, s.ID, s.Setpoint, s.MinSetpoint, s.MaxSetpoint)
		}
	}
	return nil
}

func (s Spec) initialState() model.EquipmentState {
	if s.InitialState != "" {
		return s.InitialState
	}
	switch s.Kind {
	case model.KindPump:
		return model.StateStopped
	case model.KindValve:
		return model.StateClosed
	case model.KindChemicalFeed:
		return model.StateDosing
	default:
		return model.StateNormal
	}
}

// speedBounds defaults to the full 0–100 % range when unset.
func (s Spec) speedBounds() (float64, float64) {
	if s.MinSpeed == 0 && s.MaxSpeed == 0 {
		return 0, 100
	}
	return s.MinSpeed, s.MaxSpeed
}

func stateLegal(kind model.EquipmentKind, state model.EquipmentState) bool {
	switch kind {
	case model.KindPump:
		return state == model.StateStopped || state == model.StateRunning
	case model.KindValve:
		return state == model.StateClosed || state == model.StateOpen
	case model.KindChemicalFeed:
		return state == model.StateDosing
	case model.KindFilterBed, model.KindBackwashUnit:
		return state == model.StateNormal || state == model.StateBackwashing
	default:
		return false
	}
}
