package process

import "time"

// Params holds the empirical coefficients of the stage models.
type Params struct {
	PumpRatedFlowM3h float64       `yaml:"pump_rated_flow_m3h"`
	DesignFlowM3h    float64       `yaml:"design_flow_m3h"`
	FlowTau          time.Duration `yaml:"flow_tau"`

	BaseRawTurbidityNTU float64 `yaml:"base_raw_turbidity_ntu"`
	BaseRawPH           float64 `yaml:"base_raw_ph"`

	FlocCarryover      float64       `yaml:"floc_carryover"`
	AlumEffectiveness  float64       `yaml:"alum_effectiveness_mg_l"`
	AlumPHDrop         float64       `yaml:"alum_ph_drop_per_mg_l"`
	MixerOffEfficiency float64       `yaml:"mixer_off_efficiency"`
	FlocTau            time.Duration `yaml:"floc_tau"`

	SettlerEfficiency    float64 `yaml:"settler_efficiency"`
	SettlerFoulingRate   float64 `yaml:"settler_fouling_m_per_h"`
	SettlerMaxHeadLossM  float64 `yaml:"settler_max_head_loss_m"`
	FilterPassFraction   float64 `yaml:"filter_pass_fraction"`
	FilterHeadLossRate   float64 `yaml:"filter_head_loss_m_per_h"`
	FilterMaxHeadLossM   float64 `yaml:"filter_max_head_loss_m"`
	ChlorineDemandBase   float64 `yaml:"chlorine_demand_base_mg_l"`
	ChlorineDemandPerNTU float64 `yaml:"chlorine_demand_per_ntu"`
	ChlorineDecayPerHour float64 `yaml:"chlorine_decay_per_h"`
	DistributionVolumeM3 float64 `yaml:"distribution_volume_m3"`
	MinFlowForTransitM3h float64 `yaml:"min_flow_for_transit_m3h"`

	ResidualTau time.Duration `yaml:"residual_tau"`
}

// DefaultParams returns coefficients tuned so the default plant sits at a
// quiet steady state: roughly 400 m³/h, 2.7 NTU floc, 1.7 mg/L residual.
func DefaultParams() Params {
	return Params{
		PumpRatedFlowM3h: 250,
		DesignFlowM3h:    400,
		FlowTau:          20 * time.Second,

		BaseRawTurbidityNTU: 12,
		BaseRawPH:           7.4,

		FlocCarryover:      0.9,
		AlumEffectiveness:  6,
		AlumPHDrop:         0.02,
		MixerOffEfficiency: 0.5,
		FlocTau:            90 * time.Second,

		SettlerEfficiency:    0.85,
		SettlerFoulingRate:   0.02,
		SettlerMaxHeadLossM:  1.5,
		FilterPassFraction:   0.1,
		FilterHeadLossRate:   0.08,
		FilterMaxHeadLossM:   3.0,
		ChlorineDemandBase:   0.3,
		ChlorineDemandPerNTU: 0.15,
		ChlorineDecayPerHour: 0.1,
		DistributionVolumeM3: 2000,
		MinFlowForTransitM3h: 1,

		ResidualTau: 60 * time.Second,
	}
}

// FilterLayout binds a filter bed to the tag that reports its head loss.
type FilterLayout struct {
	ID          string `yaml:"id"`
	HeadLossTag string `yaml:"head_loss_tag"`
}

// Layout says which equipment units play which role in each stage.
type Layout struct {
	IntakePumps  []string       `yaml:"intake_pumps"`
	IntakeValve  string         `yaml:"intake_valve"`
	AlumFeed     string         `yaml:"alum_feed"`
	RapidMixer   string         `yaml:"rapid_mixer"`
	Settler      string         `yaml:"settler"`
	Filters      []FilterLayout `yaml:"filters"`
	ChlorineFeed string         `yaml:"chlorine_feed"`
}
