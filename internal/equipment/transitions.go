package equipment

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/plant-trainer/model"
)

// change describes what a legal command did to a unit.
type change struct {
	category model.Category
	before   string
	after    string
	value    float64
	noop     bool
	// numeric selects the "<Label>: <before> → <after> <unit>" form.
	numeric bool
}

func (c change) describe(u *model.EquipmentUnit) string {
	if c.numeric {
		return fmt.Sprintf("%s: %s → %s %s", u.SetpointLabel, c.before, c.after, u.Unit)
	}
	return fmt.Sprintf("%s (%s): %s → %s", u.Name, u.Tag, c.before, c.after)
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

func discrete(cat model.Category, before, after model.EquipmentState) change {
	return change{
		category: cat,
		before:   string(before),
		after:    string(after),
		noop:     before == after,
	}
}

func numeric(before, after float64) change {
	return change{
		category: model.CategorySetpoint,
		before:   formatValue(before),
		after:    formatValue(after),
		value:    after,
		noop:     before == after,
		numeric:  true,
	}
}

// apply runs the transition table for u's kind. It mutates u only when it
// returns a nil error; callers pass a copy so rejections are side-effect free.
func apply(u *model.EquipmentUnit, spec Spec, cmd Command) (change, error) {
	switch u.Kind {
	case model.KindPump:
		return applyPump(u, spec, cmd)
	case model.KindValve:
		return applyValve(u, cmd)
	case model.KindChemicalFeed:
		return applyFeed(u, spec, cmd)
	case model.KindFilterBed, model.KindBackwashUnit:
		return applyBackwash(u, cmd)
	default:
		return change{}, fmt.Errorf("%w: unsupported kind %q", ErrInvalidTransition, u.Kind)
	}
}

func checkRange(v, lo, hi float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < lo || v > hi {
		return fmt.Errorf("%w: %.2f not in [%.1f, %.1f]", ErrOutOfRange, v, lo, hi)
	}
	return nil
}

func applyPump(u *model.EquipmentUnit, spec Spec, cmd Command) (change, error) {
	lo, hi := spec.speedBounds()
	switch cmd.Verb {
	case model.VerbStart:
		if cmd.Value != nil {
			if err := checkRange(*cmd.Value, lo, hi); err != nil {
				return change{}, err
			}
		}
		before := u.State
		if before == model.StateRunning {
			// A target speed on a running pump is a speed change.
			if cmd.Value != nil && *cmd.Value != u.Speed {
				prev := u.Speed
				u.Speed = *cmd.Value
				return numeric(prev, u.Speed), nil
			}
			return discrete(model.CategoryPump, before, before), nil
		}
		if cmd.Value != nil {
			u.Speed = *cmd.Value
		}
		u.State = model.StateRunning
		return discrete(model.CategoryPump, before, u.State), nil

	case model.VerbStop:
		before := u.State
		u.State = model.StateStopped
		return discrete(model.CategoryPump, before, u.State), nil

	case model.VerbApplySetpoint:
		if cmd.Value == nil {
			return change{}, fmt.Errorf("%w: speed value required", ErrOutOfRange)
		}
		if u.State != model.StateRunning {
			return change{}, fmt.Errorf("%w: speed can only change while running", ErrInvalidTransition)
		}
		if err := checkRange(*cmd.Value, lo, hi); err != nil {
			return change{}, err
		}
		before := u.Speed
		u.Speed = *cmd.Value
		return numeric(before, u.Speed), nil
	}
	return change{}, ErrInvalidTransition
}

func applyValve(u *model.EquipmentUnit, cmd Command) (change, error) {
	before := u.State
	switch cmd.Verb {
	case model.VerbOpen:
		u.State = model.StateOpen
	case model.VerbClose:
		u.State = model.StateClosed
	default:
		return change{}, ErrInvalidTransition
	}
	return discrete(model.CategoryValve, before, u.State), nil
}

func applyFeed(u *model.EquipmentUnit, spec Spec, cmd Command) (change, error) {
	if cmd.Verb != model.VerbApplySetpoint {
		return change{}, ErrInvalidTransition
	}
	if cmd.Value == nil {
		return change{}, fmt.Errorf("%w: setpoint value required", ErrOutOfRange)
	}
	if err := checkRange(*cmd.Value, spec.MinSetpoint, spec.MaxSetpoint); err != nil {
		return change{}, err
	}
	before := u.Setpoint
	u.Setpoint = *cmd.Value
	return numeric(before, u.Setpoint), nil
}

func applyBackwash(u *model.EquipmentUnit, cmd Command) (change, error) {
	before := u.State
	switch cmd.Verb {
	case model.VerbStartBackwash:
		if u.BackwashInProgress {
			return change{}, ErrBackwashInProgress
		}
		u.State = model.StateBackwashing
		u.BackwashInProgress = true
		u.BackwashElapsed = 0
		u.RunTime = 0
		u.HeadLoss = 0
	case model.VerbStop:
		// Ends a backwash early; a bed already in service is a no-op.
		if before == model.StateBackwashing {
			if _, err := completeBackwash(u); err != nil {
				return change{}, err
			}
		}
	default:
		return change{}, ErrInvalidTransition
	}
	return discrete(model.CategoryBackwash, before, u.State), nil
}

// completeBackwash returns a backwashing unit to service. The tick loop uses
// it when the backwash duration elapses.
func completeBackwash(u *model.EquipmentUnit) (change, error) {
	if u.State != model.StateBackwashing {
		return change{}, ErrInvalidTransition
	}
	before := u.State
	u.State = model.StateNormal
	u.BackwashInProgress = false
	u.BackwashElapsed = 0
	return discrete(model.CategoryBackwash, before, u.State), nil
}
