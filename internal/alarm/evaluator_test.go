package alarm

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/signalsfoundry/plant-trainer/model"
)

var t0 = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("alarm-%d", n)
	}
}

func turbidityLimit() Limit {
	return Limit{
		Tag:         model.TagFilteredTurbidity,
		Description: "Filtered water turbidity high",
		Priority:    model.PriorityHigh,
		Direction:   model.LimitHigh,
		Threshold:   1.0,
		Unit:        "NTU",
	}
}

func reading(tag string, v float64) map[string]model.TagReading {
	return map[string]model.TagReading{tag: {Tag: tag, Value: v}}
}

func newTestEvaluator(t *testing.T, limits ...Limit) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(limits, WithIDGenerator(seqIDs()))
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return e
}

func TestCrossingRaisesExactlyOneRecord(t *testing.T) {
	e := newTestEvaluator(t, turbidityLimit())
	tag := model.TagFilteredTurbidity

	if tr := e.Evaluate(reading(tag, 0.5), t0); !tr.Empty() {
		t.Fatalf("unexpected transitions below threshold: %+v", tr)
	}
	tr := e.Evaluate(reading(tag, 1.2), t0.Add(time.Second))
	if len(tr.Raised) != 1 {
		t.Fatalf("raised = %d, want 1", len(tr.Raised))
	}
	rec := tr.Raised[0]
	if rec.State != model.AlarmActive || rec.Value != 1.2 || rec.Episode != 1 || rec.Unit != "NTU" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	// Staying above the threshold does not raise again.
	for i := 0; i < 5; i++ {
		if tr := e.Evaluate(reading(tag, 1.5), t0.Add(time.Duration(i+2)*time.Second)); !tr.Empty() {
			t.Fatalf("duplicate transition while tripped: %+v", tr)
		}
	}
	if got := e.Active(); len(got) != 1 || got[0].LastValue != 1.5 {
		t.Fatalf("active = %+v", got)
	}
}

func TestHysteresisPreventsChatter(t *testing.T) {
	e := newTestEvaluator(t, turbidityLimit())
	tag := model.TagFilteredTurbidity
	e.Evaluate(reading(tag, 1.1), t0)

	// Inside the 5% band: still active.
	if tr := e.Evaluate(reading(tag, 0.97), t0.Add(time.Second)); len(tr.Cleared) != 0 {
		t.Fatalf("cleared inside hysteresis band")
	}
	tr := e.Evaluate(reading(tag, 0.94), t0.Add(2*time.Second))
	if len(tr.Cleared) != 1 {
		t.Fatalf("expected clear below band, got %+v", tr)
	}
	if tr.Cleared[0].ClearedAt != t0.Add(2*time.Second) {
		t.Fatalf("cleared at = %v", tr.Cleared[0].ClearedAt)
	}
	if e.ActiveCount() != 0 {
		t.Fatalf("active count = %d", e.ActiveCount())
	}
}

func TestReCrossingCreatesDistinctRecord(t *testing.T) {
	e := newTestEvaluator(t, turbidityLimit())
	tag := model.TagFilteredTurbidity

	first := e.Evaluate(reading(tag, 2), t0).Raised[0]
	e.Evaluate(reading(tag, 0.1), t0.Add(time.Second))
	second := e.Evaluate(reading(tag, 2), t0.Add(2*time.Second)).Raised[0]

	if first.ID == second.ID {
		t.Fatalf("re-crossing reused id %s", first.ID)
	}
	if second.Episode != first.Episode+1 {
		t.Fatalf("episode = %d, want %d", second.Episode, first.Episode+1)
	}
	hist := e.History()
	if len(hist) != 1 || hist[0].ID != first.ID || hist[0].State != model.AlarmCleared {
		t.Fatalf("history = %+v", hist)
	}
}

func TestLowLimit(t *testing.T) {
	e := newTestEvaluator(t, Limit{
		Tag:       model.TagChlorineResidual,
		Priority:  model.PriorityHigh,
		Direction: model.LimitLow,
		Threshold: 0.5,
	})
	tag := model.TagChlorineResidual
	if tr := e.Evaluate(reading(tag, 0.4), t0); len(tr.Raised) != 1 {
		t.Fatalf("low limit did not raise")
	}
	if tr := e.Evaluate(reading(tag, 0.51), t0); len(tr.Cleared) != 0 {
		t.Fatalf("cleared inside band")
	}
	if tr := e.Evaluate(reading(tag, 0.53), t0); len(tr.Cleared) != 1 {
		t.Fatalf("did not clear above band")
	}
}

func TestAcknowledgeKeepsAlarmOpen(t *testing.T) {
	e := newTestEvaluator(t, turbidityLimit())
	tag := model.TagFilteredTurbidity
	rec := e.Evaluate(reading(tag, 3), t0).Raised[0]

	acked, err := e.Acknowledge(rec.ID, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if acked.State != model.AlarmAcknowledged || acked.AcknowledgedAt != t0.Add(time.Minute) {
		t.Fatalf("acked = %+v", acked)
	}
	// Idempotent.
	again, err := e.Acknowledge(rec.ID, t0.Add(2*time.Minute))
	if err != nil || again.AcknowledgedAt != acked.AcknowledgedAt {
		t.Fatalf("second ack changed record: %+v err=%v", again, err)
	}
	if e.ActiveCount() != 1 {
		t.Fatalf("acknowledge must not clear the alarm")
	}

	tr := e.Evaluate(reading(tag, 0.1), t0.Add(3*time.Minute))
	if len(tr.Cleared) != 1 || tr.Cleared[0].State != model.AlarmCleared {
		t.Fatalf("acknowledged alarm did not clear: %+v", tr)
	}
	if _, err := e.Acknowledge(rec.ID, t0); err != nil {
		t.Fatalf("ack of cleared alarm: %v", err)
	}
}

func TestAcknowledgeUnknown(t *testing.T) {
	e := newTestEvaluator(t, turbidityLimit())
	_, err := e.Acknowledge("nope", t0)
	if !errors.Is(err, ErrUnknownAlarm) || !errors.Is(err, model.ErrUnknownEntity) {
		t.Fatalf("expected unknown alarm, got %v", err)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	e, err := NewEvaluator([]Limit{turbidityLimit()}, WithHistoryLimit(3), WithIDGenerator(seqIDs()))
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	tag := model.TagFilteredTurbidity
	for i := 0; i < 10; i++ {
		e.Evaluate(reading(tag, 2), t0)
		e.Evaluate(reading(tag, 0), t0)
	}
	hist := e.History()
	if len(hist) != 3 {
		t.Fatalf("history len = %d, want 3", len(hist))
	}
	if hist[0].ID != "alarm-10" {
		t.Fatalf("history not newest first: %s", hist[0].ID)
	}
}

func TestActiveOrderedByPriority(t *testing.T) {
	e := newTestEvaluator(t,
		Limit{Tag: "A", Priority: model.PriorityLow, Direction: model.LimitHigh, Threshold: 1},
		Limit{Tag: "B", Priority: model.PriorityHigh, Direction: model.LimitHigh, Threshold: 1},
		Limit{Tag: "C", Priority: model.PriorityMedium, Direction: model.LimitHigh, Threshold: 1},
	)
	e.Evaluate(map[string]model.TagReading{"A": {Value: 2}, "B": {Value: 2}, "C": {Value: 2}}, t0)
	got := e.Active()
	if len(got) != 3 || got[0].Tag != "B" || got[1].Tag != "C" || got[2].Tag != "A" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestLimitValidation(t *testing.T) {
	cases := []Limit{
		{Priority: model.PriorityHigh, Direction: model.LimitHigh},
		{Tag: "X", Priority: "urgent", Direction: model.LimitHigh},
		{Tag: "X", Priority: model.PriorityLow, Direction: "sideways"},
	}
	for _, l := range cases {
		if _, err := NewEvaluator([]Limit{l}); !errors.Is(err, ErrInvalidLimit) {
			t.Fatalf("limit %+v: expected ErrInvalidLimit, got %v", l, err)
		}
	}
	l := turbidityLimit()
	if _, err := NewEvaluator([]Limit{l, l}); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected duplicate limit rejection, got %v", err)
	}
}
