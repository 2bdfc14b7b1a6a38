package process

import (
	"fmt"
	"math"
)

// Input names a model input a scenario may perturb.
type Input string

const (
	InputRawTurbidity      Input = "raw_turbidity"
	InputRawPH             Input = "raw_ph"
	InputIntakeFlow        Input = "intake_flow"
	InputSettlerEfficiency Input = "settler_efficiency"
	InputFilterFouling     Input = "filter_fouling"
	InputChlorineDemand    Input = "chlorine_demand"
)

// Valid reports whether in names a perturbable input.
func (in Input) Valid() bool {
	switch in {
	case InputRawTurbidity, InputRawPH, InputIntakeFlow, InputSettlerEfficiency, InputFilterFouling, InputChlorineDemand:
		return true
	default:
		return false
	}
}

// Op is how an override combines with the nominal value.
type Op string

const (
	OpSet   Op = "set"
	OpAdd   Op = "add"
	OpScale Op = "scale"
	// OpNoise adds deterministic pseudo-noise of amplitude Value derived from
	// (Seed, tick), so identical inputs always give identical outputs.
	OpNoise Op = "noise"
)

// Override perturbs one model input while a scenario is active.
type Override struct {
	Input Input   `yaml:"input" json:"input"`
	Op    Op      `yaml:"op" json:"op"`
	Value float64 `yaml:"value" json:"value"`
	Seed  uint64  `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// Validate checks the override is well-formed.
func (o Override) Validate() error {
	if !o.Input.Valid() {
		return fmt.Errorf("override: unknown input %q", o.Input)
	}
	switch o.Op {
	case OpSet, OpAdd, OpScale, OpNoise:
	default:
		return fmt.Errorf("override: unknown op %q", o.Op)
	}
	if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return fmt.Errorf("override: non-finite value for %s", o.Input)
	}
	return nil
}

// Overrides is the active set, applied in order.
type Overrides []Override

// Apply returns the perturbed value of input for the given tick.
func (ovs Overrides) Apply(input Input, nominal float64, tick uint64) float64 {
	v := nominal
	for _, o := range ovs {
		if o.Input != input {
			continue
		}
		switch o.Op {
		case OpSet:
			v = o.Value
		case OpAdd:
			v += o.Value
		case OpScale:
			v *= o.Value
		case OpNoise:
			v += o.Value * unitNoise(o.Seed, tick)
		}
	}
	return v
}

// unitNoise maps (seed, tick) onto [-1, 1] with a splitmix64 round.
func unitNoise(seed, tick uint64) float64 {
	z := seed + tick*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return float64(z>>11)/float64(1<<53)*2 - 1
}
