package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/plant-trainer/internal/alarm"
	"github.com/signalsfoundry/plant-trainer/internal/equipment"
	"github.com/signalsfoundry/plant-trainer/internal/process"
)

//go:embed plant.yaml
var defaultPlant []byte

// Plant is the static description of the simulated plant.
type Plant struct {
	Name               string           `yaml:"name"`
	StartTime          time.Time        `yaml:"start_time"`
	BackwashDuration   time.Duration    `yaml:"backwash_duration"`
	HysteresisFraction float64          `yaml:"hysteresis_fraction"`
	Equipment          []equipment.Spec `yaml:"equipment"`
	Layout             process.Layout   `yaml:"layout"`
	Params             process.Params   `yaml:"params"`
	Alarms             []alarm.Limit    `yaml:"alarms"`
}

// DefaultPlant parses the embedded plant definition.
func DefaultPlant() (Plant, error) {
	return ParsePlant(defaultPlant)
}

// LoadPlant reads a plant file, or the embedded default when path is empty.
func LoadPlant(path string) (Plant, error) {
	if path == "" {
		return DefaultPlant()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Plant{}, fmt.Errorf("config: read plant: %w", err)
	}
	return ParsePlant(data)
}

// ParsePlant decodes a plant definition. Model coefficients not present in
// the document keep their defaults.
func ParsePlant(data []byte) (Plant, error) {
	p := Plant{
		Name:               "plant",
		BackwashDuration:   equipment.DefaultBackwashDuration,
		HysteresisFraction: alarm.DefaultHysteresis,
		Params:             process.DefaultParams(),
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plant{}, fmt.Errorf("config: parse plant: %w", err)
	}
	if p.StartTime.IsZero() {
		p.StartTime = time.Date(2025, 1, 6, 6, 0, 0, 0, time.UTC)
	}
	if err := p.Validate(); err != nil {
		return Plant{}, err
	}
	return p, nil
}

// Validate checks cross references between the layout and the equipment list.
func (p Plant) Validate() error {
	if len(p.Equipment) == 0 {
		return fmt.Errorf("config: plant has no equipment")
	}
	if p.HysteresisFraction < 0 || p.HysteresisFraction >= 1 {
		return fmt.Errorf("config: hysteresis_fraction %.3f not in [0, 1)", p.HysteresisFraction)
	}
	ids := make(map[string]struct{}, len(p.Equipment))
	for _, s := range p.Equipment {
		ids[s.ID] = struct{}{}
	}
	refs := append([]string(nil), p.Layout.IntakePumps...)
	refs = append(refs, p.Layout.IntakeValve, p.Layout.AlumFeed, p.Layout.RapidMixer, p.Layout.Settler, p.Layout.ChlorineFeed)
	for _, f := range p.Layout.Filters {
		refs = append(refs, f.ID)
	}
	for _, id := range refs {
		if id == "" {
			continue
		}
		if _, ok := ids[id]; !ok {
			return fmt.Errorf("config: layout references unknown equipment %q", id)
		}
	}
	return nil
}
