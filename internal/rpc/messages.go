package rpc

import (
	"github.com/signalsfoundry/plant-trainer/internal/broadcast"
	"github.com/signalsfoundry/plant-trainer/internal/catalog"
	"github.com/signalsfoundry/plant-trainer/internal/scenario"
	"github.com/signalsfoundry/plant-trainer/internal/sim"
	"github.com/signalsfoundry/plant-trainer/internal/tutorial"
	"github.com/signalsfoundry/plant-trainer/model"
)

// Empty is the request or response of calls that carry no fields.
type Empty struct{}

// StateResponse carries the most recently published frame.
type StateResponse struct {
	Frame broadcast.Frame `json:"frame"`
}

// CommandRequest is one operator command. Verb is one of start, stop, open,
// close, applySetpoint, backwash.
type CommandRequest struct {
	EquipmentID string   `json:"equipmentId"`
	Verb        string   `json:"verb"`
	Value       *float64 `json:"value,omitempty"`
}

// CommandResponse reports the unit after a successful command.
type CommandResponse struct {
	Unit   model.EquipmentUnit `json:"unit"`
	Before string              `json:"before"`
	After  string              `json:"after"`
	NoOp   bool                `json:"noOp"`
	Event  model.HistoryEvent  `json:"event"`
}

type SpeedRequest struct {
	Multiplier int `json:"multiplier"`
}

type SpeedResponse struct {
	Multiplier int `json:"multiplier"`
}

// CatalogResponse lists every tutorial and scenario.
type CatalogResponse struct {
	Entries   []catalog.Entry    `json:"entries"`
	Tutorials []tutorial.Summary `json:"tutorials"`
	Scenarios []scenario.Summary `json:"scenarios"`
}

type ScenarioRequest struct {
	ID string `json:"id"`
}

type ScenarioResponse struct {
	Active scenario.Active `json:"active"`
}

type StopScenarioResponse struct {
	Stopped bool `json:"stopped"`
}

type TutorialRequest struct {
	ID string `json:"id"`
}

type TutorialResponse struct {
	View tutorial.View `json:"view"`
}

type UIEventRequest struct {
	EventID string `json:"eventId"`
}

type UIEventResponse struct {
	Matched bool          `json:"matched"`
	View    tutorial.View `json:"view"`
}

type AcknowledgeRequest struct {
	AlarmID string `json:"alarmId"`
}

type AlarmResponse struct {
	Alarm model.AlarmRecord `json:"alarm"`
}

type AlarmsResponse struct {
	Active  []model.AlarmRecord `json:"active"`
	History []model.AlarmRecord `json:"history"`
}

// HistoryRequest limits the number of events returned. Zero or negative
// returns the whole log.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

type HistoryResponse struct {
	Events []model.HistoryEvent `json:"events"`
}

type ClearHistoryResponse struct {
	Removed int `json:"removed"`
}

type TrendRequest struct {
	Tag string `json:"tag"`
}

type TrendResponse struct {
	Tag    string           `json:"tag"`
	Points []sim.TrendPoint `json:"points"`
}

type ExportRequest struct {
	Format string `json:"format"`
}

type ExportResponse struct {
	Format      string `json:"format"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

type TrendTagsResponse struct {
	Tags []string `json:"tags"`
}
