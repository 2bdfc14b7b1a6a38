package model

import "time"

// IntakeStage is the raw water intake output.
type IntakeStage struct {
	FlowM3h         float64 `json:"flowM3h"`
	RawTurbidityNTU float64 `json:"rawTurbidityNTU"`
	RawPH           float64 `json:"rawPH"`
	PumpsRunning    int     `json:"pumpsRunning"`
	ValveOpen       bool    `json:"valveOpen"`
}

// CoagulationStage is the flash-mix and flocculation output.
type CoagulationStage struct {
	AlumDoseMgL      float64 `json:"alumDoseMgL"`
	FlocTurbidityNTU float64 `json:"flocTurbidityNTU"`
	PH               float64 `json:"pH"`
	MixerRunning     bool    `json:"mixerRunning"`
}

// FilterStatus is the per-bed view inside the sedimentation/filtration stage.
type FilterStatus struct {
	ID        string  `json:"id"`
	InService bool    `json:"inService"`
	HeadLossM float64 `json:"headLossM"`
	LoadShare float64 `json:"loadShare"`
}

// SedimentationStage covers the settlers and the filter gallery.
type SedimentationStage struct {
	SettlerHeadLossM     float64        `json:"settlerHeadLossM"`
	SettledTurbidityNTU  float64        `json:"settledTurbidityNTU"`
	FilteredTurbidityNTU float64        `json:"filteredTurbidityNTU"`
	FiltersInService     int            `json:"filtersInService"`
	Filters              []FilterStatus `json:"filters"`
}

// DisinfectionStage is the chlorination and distribution output.
type DisinfectionStage struct {
	ChlorineDoseMgL         float64 `json:"chlorineDoseMgL"`
	ChlorineDemandMgL       float64 `json:"chlorineDemandMgL"`
	PlantResidualMgL        float64 `json:"plantResidualMgL"`
	DistributionResidualMgL float64 `json:"distributionResidualMgL"`
	TravelTimeHours         float64 `json:"travelTimeHours"`
}

// ProcessState is one immutable, versioned snapshot of the whole plant. A
// fresh value is produced every tick; callers must not mutate the maps or
// slices it holds once it has been published.
type ProcessState struct {
	Tick    uint64        `json:"tick"`
	SimTime time.Time     `json:"simTime"`
	Elapsed time.Duration `json:"elapsed"`
	Speed   int           `json:"speed"`

	Intake        IntakeStage        `json:"intake"`
	Coagulation   CoagulationStage   `json:"coagulation"`
	Sedimentation SedimentationStage `json:"sedimentation"`
	Disinfection  DisinfectionStage  `json:"disinfection"`

	Equipment map[string]EquipmentUnit `json:"equipment"`
	Tags      map[string]TagReading    `json:"tags"`

	ActiveAlarms   []AlarmRecord `json:"activeAlarms"`
	ActiveScenario string        `json:"activeScenario,omitempty"`
}

// TagValue returns the current value of a tag.
func (s *ProcessState) TagValue(tag string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	r, ok := s.Tags[tag]
	return r.Value, ok
}

// Unit returns an equipment unit by id or tag.
func (s *ProcessState) Unit(idOrTag string) (EquipmentUnit, bool) {
	if s == nil {
		return EquipmentUnit{}, false
	}
	if u, ok := s.Equipment[idOrTag]; ok {
		return u, true
	}
	for _, u := range s.Equipment {
		if u.Tag == idOrTag {
			return u, true
		}
	}
	return EquipmentUnit{}, false
}

// AlarmActiveFor reports whether any open alarm exists for tag.
func (s *ProcessState) AlarmActiveFor(tag string) bool {
	if s == nil {
		return false
	}
	for _, a := range s.ActiveAlarms {
		if a.Tag == tag && a.Open() {
			return true
		}
	}
	return false
}
