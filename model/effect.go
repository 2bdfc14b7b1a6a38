package model

// Effect is a side effect applied when a tutorial or scenario starts or stops.
// Exactly one of ForceTag or Equipment is set.
type Effect struct {
	// ForceTag overwrites a process tag with Value.
	ForceTag string `yaml:"force_tag,omitempty" json:"forceTag,omitempty"`
	// Equipment and Verb issue a validated command; Value is its optional parameter.
	Equipment string   `yaml:"equipment,omitempty" json:"equipment,omitempty"`
	Verb      Verb     `yaml:"verb,omitempty" json:"verb,omitempty"`
	Value     *float64 `yaml:"value,omitempty" json:"value,omitempty"`
}

// IsForce reports whether e forces a tag value.
func (e Effect) IsForce() bool { return e.ForceTag != "" }
