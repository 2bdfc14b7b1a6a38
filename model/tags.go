package model

// Process tags produced by the stage models.
const (
	TagRawFlow      = "INT-FIT-001"
	TagRawTurbidity = "INT-AIT-001"
	TagRawPH        = "INT-AIT-002"

	TagFlocTurbidity = "COA-AIT-201"
	TagCoagulatedPH  = "COA-AIT-202"

	TagSettlerHeadLoss  = "SED-PDT-201"
	TagSettledTurbidity = "SED-AIT-201"

	TagFilteredTurbidity = "FLT-AIT-301"

	TagChlorineDemand       = "DIS-AIT-400"
	TagChlorineResidual     = "DIS-AIT-401"
	TagDistributionResidual = "DIS-AIT-402"
)

// TagReading is the current value of one live process variable.
type TagReading struct {
	Tag         string  `json:"tag"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	Description string  `json:"description,omitempty"`
	// Held is set when the derivation failed this tick and the prior valid
	// value was carried forward.
	Held bool `json:"held,omitempty"`
}
