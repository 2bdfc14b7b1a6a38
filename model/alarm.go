package model

import "time"

// AlarmState is the lifecycle position of an alarm record.
type AlarmState string

const (
	AlarmActive       AlarmState = "active"
	AlarmAcknowledged AlarmState = "acknowledged"
	AlarmCleared      AlarmState = "cleared"
)

// Priority is the static priority configured for a monitored tag.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// LimitDirection says which side of the threshold is abnormal.
type LimitDirection string

const (
	LimitHigh LimitDirection = "high"
	LimitLow  LimitDirection = "low"
)

// AlarmRecord is one raise episode of a threshold alarm.
type AlarmRecord struct {
	ID          string         `json:"id"`
	Tag         string         `json:"tag"`
	Description string         `json:"description"`
	Priority    Priority       `json:"priority"`
	Direction   LimitDirection `json:"direction"`
	Threshold   float64        `json:"threshold"`
	// Value is the triggering value; LastValue tracks the tag while the
	// record stays open.
	Value     float64    `json:"value"`
	LastValue float64    `json:"lastValue"`
	Unit      string     `json:"unit,omitempty"`
	State     AlarmState `json:"state"`
	Episode   int        `json:"episode"`

	RaisedAt       time.Time `json:"raisedAt"`
	AcknowledgedAt time.Time `json:"acknowledgedAt,omitempty"`
	ClearedAt      time.Time `json:"clearedAt,omitempty"`
}

// Open reports whether the alarm has not yet cleared.
func (r AlarmRecord) Open() bool { return r.State != AlarmCleared }
