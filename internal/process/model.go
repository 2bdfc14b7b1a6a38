// Package process computes the derived plant measurements for each tick.
//
// The four stages run in a fixed order (intake, coagulation,
// sedimentation/filtration, disinfection) because each consumes the output
// of the one before it. Every stage is a pure function of the equipment
// states, the upstream stage output, the active overrides and the previous
// lag state, so identical inputs always produce identical outputs.
package process

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/plant-trainer/model"
)

var (
	// ErrUnknownTag indicates ForceTag was asked for a tag the model does not own.
	ErrUnknownTag = fmt.Errorf("process: %w", model.ErrUnknownEntity)
	// ErrDerivation marks a derived quantity that could not be computed this tick.
	ErrDerivation = errors.New("process: derivation failed")
)

// Inputs is everything one Step reads.
type Inputs struct {
	Tick      uint64
	Dt        time.Duration
	Elapsed   time.Duration
	Equipment map[string]model.EquipmentUnit
	Overrides Overrides
}

// StageFailure records a derivation that was skipped in favour of the prior value.
type StageFailure struct {
	Stage string
	Tag   string
	Err   error
}

// Output is the result of one Step.
type Output struct {
	Intake        model.IntakeStage
	Coagulation   model.CoagulationStage
	Sedimentation model.SedimentationStage
	Disinfection  model.DisinfectionStage
	Tags          map[string]model.TagReading

	// HeadLossDeltas is the head loss each in-service filter bed or settler
	// accumulated during this step, keyed by equipment id.
	HeadLossDeltas map[string]float64
	Failures       []StageFailure
}

// lagState carries the first-order lag values between steps.
type lagState struct {
	flow           float64
	flocTurbidity  float64
	plantResidual  float64
	distResidual   float64
	travelTimeH    float64
	filteredTurbid float64
}

// Model composes the stage submodels. It is not safe for concurrent use;
// the simulation session owns it.
type Model struct {
	params Params
	layout Layout
	lag    lagState
	last   map[string]model.TagReading
}

// New constructs a model for the given plant layout.
func New(params Params, layout Layout) *Model {
	return &Model{
		params: params,
		layout: layout,
		last:   make(map[string]model.TagReading),
	}
}

// Settle initialises every lag state at its steady-state target for the
// given inputs, so a fresh plant does not start with transients.
func (m *Model) Settle(in Inputs) Output {
	return m.run(in, true)
}

// Step advances every stage by in.Dt.
func (m *Model) Step(in Inputs) Output {
	return m.run(in, false)
}

// ForceTag overwrites the state behind a tag so a tutorial or scenario can
// create a starting condition. Lagged tags then evolve from the forced value.
func (m *Model) ForceTag(tag string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: non-finite value for %s", model.ErrOutOfRange, tag)
	}
	switch tag {
	case model.TagRawFlow:
		m.lag.flow = value
	case model.TagRawTurbidity:
		m.params.BaseRawTurbidityNTU = value
	case model.TagRawPH:
		m.params.BaseRawPH = value
	case model.TagFlocTurbidity:
		m.lag.flocTurbidity = value
	case model.TagChlorineResidual:
		m.lag.plantResidual = value
	case model.TagDistributionResidual:
		m.lag.distResidual = value
	default:
		return fmt.Errorf("%w: tag %q cannot be forced", ErrUnknownTag, tag)
	}
	return nil
}

func (m *Model) run(in Inputs, settle bool) Output {
	out := Output{
		Tags:           make(map[string]model.TagReading, 16),
		HeadLossDeltas: make(map[string]float64),
	}
	dt := in.Dt
	if settle {
		dt = 0
	}
	f := lagFactor(settle)

	intake := m.intake(in, dt, f)
	out.Intake = intake

	coag := m.coagulation(in, intake, dt, f)
	out.Coagulation = coag

	sed, fails := m.sedimentation(in, intake, coag, dt, out.HeadLossDeltas)
	out.Sedimentation = sed
	out.Failures = append(out.Failures, fails...)

	dis, fails := m.disinfection(in, intake, sed, dt, f)
	out.Disinfection = dis
	out.Failures = append(out.Failures, fails...)

	m.emit(&out)
	return out
}

// lagFn blends a previous value toward a target over dt with time constant tau.
type lagFn func(prev, target float64, tau, dt time.Duration) float64

func lagFactor(settle bool) lagFn {
	if settle {
		return func(_, target float64, _, _ time.Duration) float64 { return target }
	}
	return firstOrder
}

func firstOrder(prev, target float64, tau, dt time.Duration) float64 {
	if tau <= 0 {
		return target
	}
	if dt <= 0 {
		return prev
	}
	return target + (prev-target)*math.Exp(-dt.Seconds()/tau.Seconds())
}

func (m *Model) unit(in Inputs, id string) (model.EquipmentUnit, bool) {
	if id == "" {
		return model.EquipmentUnit{}, false
	}
	u, ok := in.Equipment[id]
	return u, ok
}

func (m *Model) intake(in Inputs, dt time.Duration, lag lagFn) model.IntakeStage {
	p := m.params
	valveOpen := true
	if v, ok := m.unit(in, m.layout.IntakeValve); ok {
		valveOpen = v.Open()
	}

	target := 0.0
	running := 0
	for _, id := range m.layout.IntakePumps {
		u, ok := m.unit(in, id)
		if !ok || !u.Running() {
			continue
		}
		running++
		target += p.PumpRatedFlowM3h * u.Speed / 100
	}
	if !valveOpen {
		target = 0
	}
	target = math.Max(0, in.Overrides.Apply(InputIntakeFlow, target, in.Tick))

	m.lag.flow = lag(m.lag.flow, target, p.FlowTau, dt)

	return model.IntakeStage{
		FlowM3h:         m.lag.flow,
		RawTurbidityNTU: math.Max(0, in.Overrides.Apply(InputRawTurbidity, p.BaseRawTurbidityNTU, in.Tick)),
		RawPH:           in.Overrides.Apply(InputRawPH, p.BaseRawPH, in.Tick),
		PumpsRunning:    running,
		ValveOpen:       valveOpen,
	}
}

func (m *Model) coagulation(in Inputs, intake model.IntakeStage, dt time.Duration, lag lagFn) model.CoagulationStage {
	p := m.params
	dose := 0.0
	if feed, ok := m.unit(in, m.layout.AlumFeed); ok {
		dose = feed.Setpoint
	}
	mixer := true
	if u, ok := m.unit(in, m.layout.RapidMixer); ok {
		mixer = u.Running()
	}

	effective := dose
	if !mixer {
		effective *= p.MixerOffEfficiency
	}
	target := intake.RawTurbidityNTU * p.FlocCarryover
	if p.AlumEffectiveness > 0 {
		target /= 1 + effective/p.AlumEffectiveness
	}
	m.lag.flocTurbidity = lag(m.lag.flocTurbidity, target, p.FlocTau, dt)

	return model.CoagulationStage{
		AlumDoseMgL:      dose,
		FlocTurbidityNTU: m.lag.flocTurbidity,
		PH:               intake.RawPH - p.AlumPHDrop*dose,
		MixerRunning:     mixer,
	}
}

func (m *Model) loadFactor(flow float64) float64 {
	if m.params.DesignFlowM3h <= 0 {
		return 1
	}
	return flow / m.params.DesignFlowM3h
}

func (m *Model) sedimentation(in Inputs, intake model.IntakeStage, coag model.CoagulationStage, dt time.Duration, deltas map[string]float64) (model.SedimentationStage, []StageFailure) {
	p := m.params
	hours := dt.Hours()
	load := m.loadFactor(intake.FlowM3h)

	stage := model.SedimentationStage{}
	eff := p.SettlerEfficiency
	if s, ok := m.unit(in, m.layout.Settler); ok {
		stage.SettlerHeadLossM = s.HeadLoss
		fouling := 0.0
		if p.SettlerMaxHeadLossM > 0 {
			fouling = math.Min(1, s.HeadLoss/p.SettlerMaxHeadLossM)
		}
		eff *= 1 - 0.35*fouling
		if s.InService() {
			deltas[s.ID] = p.SettlerFoulingRate * hours * load
		} else {
			eff *= 0.5
		}
	}
	eff = clamp(in.Overrides.Apply(InputSettlerEfficiency, eff, in.Tick), 0, 0.99)
	stage.SettledTurbidityNTU = coag.FlocTurbidityNTU * (1 - eff)

	inService := 0
	for _, fl := range m.layout.Filters {
		if u, ok := m.unit(in, fl.ID); ok && u.InService() {
			inService++
		}
	}
	stage.FiltersInService = inService

	rate := in.Overrides.Apply(InputFilterFouling, p.FilterHeadLossRate, in.Tick)
	passSum := 0.0
	for _, fl := range m.layout.Filters {
		u, ok := m.unit(in, fl.ID)
		if !ok {
			continue
		}
		st := model.FilterStatus{ID: fl.ID, InService: u.InService(), HeadLossM: u.HeadLoss}
		if st.InService {
			st.LoadShare = 1 / float64(inService)
			perBedLoad := load * float64(len(m.layout.Filters)) * st.LoadShare
			deltas[fl.ID] = math.Max(0, rate) * hours * perBedLoad
			breakthrough := 1.0
			if p.FilterMaxHeadLossM > 0 {
				breakthrough += 2 * u.HeadLoss / p.FilterMaxHeadLossM
			}
			passSum += p.FilterPassFraction * breakthrough * st.LoadShare
		}
		stage.Filters = append(stage.Filters, st)
	}

	var fails []StageFailure
	if inService == 0 {
		fails = append(fails, StageFailure{
			Stage: "filtration",
			Tag:   model.TagFilteredTurbidity,
			Err:   fmt.Errorf("%w: no filter bed in service", ErrDerivation),
		})
		stage.FilteredTurbidityNTU = m.lag.filteredTurbid
	} else {
		stage.FilteredTurbidityNTU = stage.SettledTurbidityNTU * passSum
		m.lag.filteredTurbid = stage.FilteredTurbidityNTU
	}
	return stage, fails
}

func (m *Model) disinfection(in Inputs, intake model.IntakeStage, sed model.SedimentationStage, dt time.Duration, lag lagFn) (model.DisinfectionStage, []StageFailure) {
	p := m.params
	dose := 0.0
	if feed, ok := m.unit(in, m.layout.ChlorineFeed); ok {
		dose = feed.Setpoint
	}
	demand := p.ChlorineDemandBase + p.ChlorineDemandPerNTU*sed.FilteredTurbidityNTU
	demand = math.Max(0, in.Overrides.Apply(InputChlorineDemand, demand, in.Tick))

	m.lag.plantResidual = lag(m.lag.plantResidual, math.Max(0, dose-demand), p.ResidualTau, dt)

	stage := model.DisinfectionStage{
		ChlorineDoseMgL:   dose,
		ChlorineDemandMgL: demand,
		PlantResidualMgL:  m.lag.plantResidual,
	}

	var fails []StageFailure
	travel, err := ratio(p.DistributionVolumeM3, intake.FlowM3h, p.MinFlowForTransitM3h)
	if err != nil {
		fails = append(fails, StageFailure{Stage: "disinfection", Tag: model.TagDistributionResidual, Err: err})
	} else {
		m.lag.travelTimeH = travel
		target := m.lag.plantResidual * math.Exp(-p.ChlorineDecayPerHour*travel)
		m.lag.distResidual = lag(m.lag.distResidual, target, p.ResidualTau, dt)
	}
	stage.TravelTimeHours = m.lag.travelTimeH
	stage.DistributionResidualMgL = m.lag.distResidual
	return stage, fails
}

// ratio divides num by den, failing when den is below minDen.
func ratio(num, den, minDen float64) (float64, error) {
	if math.IsNaN(den) || den < minDen || den == 0 {
		return 0, fmt.Errorf("%w: divisor %.3f below %.3f", ErrDerivation, den, minDen)
	}
	return num / den, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// emit builds the flat tag index, carrying the previous value forward for
// any tag whose derivation failed this step.
func (m *Model) emit(out *Output) {
	held := make(map[string]bool, len(out.Failures))
	for _, f := range out.Failures {
		held[f.Tag] = true
	}
	put := func(tag string, v float64, unit, desc string) {
		r := model.TagReading{Tag: tag, Value: v, Unit: unit, Description: desc}
		if held[tag] {
			if prev, ok := m.last[tag]; ok {
				r.Value = prev.Value
			}
			r.Held = true
		}
		out.Tags[tag] = r
		m.last[tag] = r
	}

	put(model.TagRawFlow, out.Intake.FlowM3h, "m³/h", "Raw water flow")
	put(model.TagRawTurbidity, out.Intake.RawTurbidityNTU, "NTU", "Raw water turbidity")
	put(model.TagRawPH, out.Intake.RawPH, "pH", "Raw water pH")
	put(model.TagFlocTurbidity, out.Coagulation.FlocTurbidityNTU, "NTU", "Floc turbidity")
	put(model.TagCoagulatedPH, out.Coagulation.PH, "pH", "Coagulated water pH")
	put(model.TagSettlerHeadLoss, out.Sedimentation.SettlerHeadLossM, "m", "Settler head loss")
	put(model.TagSettledTurbidity, out.Sedimentation.SettledTurbidityNTU, "NTU", "Settled water turbidity")
	put(model.TagFilteredTurbidity, out.Sedimentation.FilteredTurbidityNTU, "NTU", "Filtered water turbidity")
	for _, fl := range m.layout.Filters {
		if fl.HeadLossTag == "" {
			continue
		}
		for _, st := range out.Sedimentation.Filters {
			if st.ID == fl.ID {
				put(fl.HeadLossTag, st.HeadLossM, "m", fl.ID+" head loss")
			}
		}
	}
	put(model.TagChlorineDemand, out.Disinfection.ChlorineDemandMgL, "mg/L", "Chlorine demand")
	put(model.TagChlorineResidual, out.Disinfection.PlantResidualMgL, "mg/L", "Plant chlorine residual")
	put(model.TagDistributionResidual, out.Disinfection.DistributionResidualMgL, "mg/L", "Distribution chlorine residual")
}
