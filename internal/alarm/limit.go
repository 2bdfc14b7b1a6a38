// Package alarm evaluates plant tags against configured limits and manages
// the active, acknowledged and cleared lifecycle of each raise episode.
package alarm

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/plant-trainer/model"
)

var (
	// ErrUnknownAlarm indicates no alarm record has the given id.
	ErrUnknownAlarm = fmt.Errorf("alarm: %w", model.ErrUnknownEntity)
	// ErrInvalidLimit indicates an alarm limit failed validation.
	ErrInvalidLimit = errors.New("alarm: invalid limit")
)

// DefaultHysteresis is the clearing band as a fraction of the threshold.
const DefaultHysteresis = 0.05

// Limit is one monitored threshold on a tag.
type Limit struct {
	Tag         string               `yaml:"tag" json:"tag"`
	Description string               `yaml:"description" json:"description"`
	Priority    model.Priority       `yaml:"priority" json:"priority"`
	Direction   model.LimitDirection `yaml:"direction" json:"direction"`
	Threshold   float64              `yaml:"threshold" json:"threshold"`
	Unit        string               `yaml:"unit" json:"unit,omitempty"`
}

// Validate checks limit invariants.
func (l Limit) Validate() error {
	if l.Tag == "" {
		return fmt.Errorf("%w: empty tag", ErrInvalidLimit)
	}
	if !l.Priority.Valid() {
		return fmt.Errorf("%w: %s has priority %q", ErrInvalidLimit, l.Tag, l.Priority)
	}
	switch l.Direction {
	case model.LimitHigh, model.LimitLow:
	default:
		return fmt.Errorf("%w: %s has direction %q", ErrInvalidLimit, l.Tag, l.Direction)
	}
	if math.IsNaN(l.Threshold) || math.IsInf(l.Threshold, 0) {
		return fmt.Errorf("%w: %s threshold is not finite", ErrInvalidLimit, l.Tag)
	}
	return nil
}

func (l Limit) key() string {
	return l.Tag + "|" + string(l.Direction)
}

func (l Limit) tripped(v float64) bool {
	if l.Direction == model.LimitLow {
		return v < l.Threshold
	}
	return v > l.Threshold
}

// recovered reports whether v has moved back past the threshold by at least
// the hysteresis band.
func (l Limit) recovered(v, hysteresis float64) bool {
	band := math.Abs(l.Threshold) * hysteresis
	if l.Direction == model.LimitLow {
		return v >= l.Threshold+band
	}
	return v <= l.Threshold-band
}
