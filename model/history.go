package model

import "time"

// Category groups operator actions in the event history.
type Category string

const (
	CategoryPump     Category = "pump"
	CategoryValve    Category = "valve"
	CategorySetpoint Category = "setpoint"
	CategoryScenario Category = "scenario"
	CategoryBackwash Category = "backwash"
)

// HistoryEvent records one completed operator action.
type HistoryEvent struct {
	ID          string    `json:"id"`
	Time        time.Time `json:"time"`
	Category    Category  `json:"category"`
	EntityID    string    `json:"entityId"`
	Tag         string    `json:"tag"`
	Description string    `json:"description"`
	Before      string    `json:"before"`
	After       string    `json:"after"`
	// Value is the numeric "after" value for setpoint changes.
	Value float64 `json:"value,omitempty"`
}
