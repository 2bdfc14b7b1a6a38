package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/signalsfoundry/plant-trainer/internal/alarm"
	"github.com/signalsfoundry/plant-trainer/internal/equipment"
	"github.com/signalsfoundry/plant-trainer/internal/export"
	"github.com/signalsfoundry/plant-trainer/internal/tutorial"
	"github.com/signalsfoundry/plant-trainer/model"
)

type commandRequest struct {
	EquipmentID string   `json:"equipmentId"`
	Verb        string   `json:"verb"`
	Value       *float64 `json:"value,omitempty"`
}

type commandResponse struct {
	Unit   model.EquipmentUnit `json:"unit"`
	Before string              `json:"before"`
	After  string              `json:"after"`
	NoOp   bool                `json:"noOp"`
	Event  model.HistoryEvent  `json:"event"`
}

type alarmLimitsResponse struct {
	Limits             []alarm.Limit `json:"limits"`
	HysteresisFraction float64       `json:"hysteresisFraction"`
}

type speedBody struct {
	Multiplier int `json:"multiplier"`
}

type uiEventRequest struct {
	EventID string `json:"eventId"`
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "running": a.session.Running()})
}

func (a *API) getState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.session.CurrentFrame())
}

func (a *API) issueCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	verb, ok := model.ParseVerb(req.Verb)
	if !ok || req.EquipmentID == "" {
		writeError(w, fmt.Errorf("%w: need equipmentId and a known verb, got %q %q", ErrBadRequest, req.EquipmentID, req.Verb))
		return
	}
	res, err := a.session.IssueCommand(r.Context(), equipment.Command{
		EquipmentID: req.EquipmentID,
		Verb:        verb,
		Value:       req.Value,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{
		Unit:   res.Unit,
		Before: res.Before,
		After:  res.After,
		NoOp:   res.NoOp,
		Event:  res.Event,
	})
}

func (a *API) getSpeed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, speedBody{Multiplier: a.session.Speed()})
}

func (a *API) setSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedBody
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := a.session.SetSpeed(r.Context(), req.Multiplier); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, speedBody{Multiplier: a.session.Speed()})
}

func (a *API) listCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":   a.session.Catalog(),
		"tutorials": a.session.TutorialSummaries(),
		"scenarios": a.session.ScenarioSummaries(),
	})
}

func (a *API) activeScenario(w http.ResponseWriter, _ *http.Request) {
	active, ok := a.session.ActiveScenario()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"active": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": active})
}

func (a *API) startScenario(w http.ResponseWriter, r *http.Request) {
	active, err := a.session.StartScenario(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": active})
}

func (a *API) stopScenario(w http.ResponseWriter, r *http.Request) {
	stopped, err := a.session.StopScenario(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (a *API) tutorialView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.session.TutorialView())
}

func (a *API) startTutorial(w http.ResponseWriter, r *http.Request) {
	v, err := a.session.StartTutorial(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) tutorialStep(op func(context.Context) (tutorial.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := op(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (a *API) exitTutorial(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.session.ExitTutorial(r.Context()))
}

func (a *API) reportUIEvent(w http.ResponseWriter, r *http.Request) {
	var req uiEventRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.EventID == "" {
		writeError(w, fmt.Errorf("%w: eventId is required", ErrBadRequest))
		return
	}
	matched, v, err := a.session.ReportUIEvent(r.Context(), req.EventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matched": matched, "view": v})
}

func (a *API) listAlarms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  a.session.ActiveAlarms(),
		"history": a.session.AlarmHistory(),
	})
}

func (a *API) alarmLimits(w http.ResponseWriter, _ *http.Request) {
	limits, band := a.session.AlarmLimits()
	writeJSON(w, http.StatusOK, alarmLimitsResponse{Limits: limits, HysteresisFraction: band})
}

func (a *API) acknowledge(w http.ResponseWriter, r *http.Request) {
	rec, err := a.session.Acknowledge(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) listHistory(w http.ResponseWriter, r *http.Request) {
	limit := -1
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, fmt.Errorf("%w: limit must be a non-negative integer", ErrBadRequest))
			return
		}
		if n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": a.session.History(limit)})
}

func (a *API) clearHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"removed": a.session.ClearHistory(r.Context())})
}

func (a *API) exportHistory(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := a.session.Export(format)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="operator-history.%s"`, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) trendTags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"tags": a.session.TrendTags()})
}

func (a *API) trend(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]
	points, err := a.session.Trends(tag)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tag": tag, "points": points})
}
