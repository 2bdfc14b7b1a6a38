package model

import "time"

// EquipmentKind identifies the finite-state model a unit follows.
type EquipmentKind string

const (
	KindPump         EquipmentKind = "pump"
	KindValve        EquipmentKind = "valve"
	KindChemicalFeed EquipmentKind = "chemicalFeed"
	KindFilterBed    EquipmentKind = "filterBed"
	KindBackwashUnit EquipmentKind = "backwashUnit"
)

// Valid reports whether k is a supported equipment kind.
func (k EquipmentKind) Valid() bool {
	switch k {
	case KindPump, KindValve, KindChemicalFeed, KindFilterBed, KindBackwashUnit:
		return true
	default:
		return false
	}
}

// EquipmentState is the discrete state of a unit. The legal set depends on the kind.
type EquipmentState string

const (
	StateStopped     EquipmentState = "stopped"
	StateRunning     EquipmentState = "running"
	StateClosed      EquipmentState = "closed"
	StateOpen        EquipmentState = "open"
	StateDosing      EquipmentState = "dosing"
	StateNormal      EquipmentState = "normal"
	StateBackwashing EquipmentState = "backwashing"
)

// Verb is an operator command accepted by the equipment state machine.
type Verb string

const (
	VerbStart         Verb = "start"
	VerbStop          Verb = "stop"
	VerbOpen          Verb = "open"
	VerbClose         Verb = "close"
	VerbApplySetpoint Verb = "applySetpoint"
	VerbStartBackwash Verb = "startBackwash"
)

// ParseVerb maps a wire string onto a Verb.
func ParseVerb(s string) (Verb, bool) {
	switch v := Verb(s); v {
	case VerbStart, VerbStop, VerbOpen, VerbClose, VerbApplySetpoint, VerbStartBackwash:
		return v, true
	default:
		return "", false
	}
}

// EquipmentUnit is the read-only view of a device as published in a snapshot.
type EquipmentUnit struct {
	ID    string         `json:"id"`
	Tag   string         `json:"tag"`
	Name  string         `json:"name"`
	Kind  EquipmentKind  `json:"kind"`
	State EquipmentState `json:"state"`

	// Speed is the pump speed in percent. It is retained while stopped so a
	// restart resumes at the previous speed.
	Speed float64 `json:"speed,omitempty"`

	// Setpoint is the chemical dose target.
	Setpoint      float64 `json:"setpoint,omitempty"`
	SetpointLabel string  `json:"setpointLabel,omitempty"`
	Unit          string  `json:"unit,omitempty"`

	RunTime            time.Duration `json:"runTime,omitempty"`
	HeadLoss           float64       `json:"headLoss,omitempty"`
	BackwashInProgress bool          `json:"backwashInProgress,omitempty"`
	BackwashElapsed    time.Duration `json:"backwashElapsed,omitempty"`
}

// Running reports whether a pump is running.
func (u EquipmentUnit) Running() bool { return u.State == StateRunning }

// Open reports whether a valve is open.
func (u EquipmentUnit) Open() bool { return u.State == StateOpen }

// InService reports whether a filter bed or backwash unit is in normal duty.
func (u EquipmentUnit) InService() bool { return u.State == StateNormal }
