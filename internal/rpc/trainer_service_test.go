package rpc

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/plant-trainer/internal/catalog"
	"github.com/signalsfoundry/plant-trainer/internal/config"
	"github.com/signalsfoundry/plant-trainer/internal/logging"
	"github.com/signalsfoundry/plant-trainer/internal/observability"
	"github.com/signalsfoundry/plant-trainer/internal/sim"
	"github.com/signalsfoundry/plant-trainer/internal/tutorial"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type harness struct {
	session *sim.Session
	server  *Server
	client  *Client
	health  healthpb.HealthClient
}

func startHarness(t *testing.T) *harness {
	t.Helper()

	plant, err := config.DefaultPlant()
	if err != nil {
		t.Fatalf("DefaultPlant: %v", err)
	}
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	session, err := sim.New(plant, cat, sim.WithInitialSpeed(10), sim.WithIDGenerator(sequentialIDs()))
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	t.Cleanup(session.Close)

	collector, err := observability.NewRPCCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}
	srv := NewServer(NewTrainerService(session, logging.Noop()), logging.Noop(), collector)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := Dial(lis.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{
		session: session,
		server:  srv,
		client:  NewClient(conn),
		health:  healthpb.NewHealthClient(conn),
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := status.Code(err); got != code {
		t.Fatalf("status code = %v (%v), want %v", got, err, code)
	}
}

func TestHealthFlipsToServing(t *testing.T) {
	h := startHarness(t)
	ctx := testContext(t)

	resp, err := h.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status before start = %v, want NOT_SERVING", resp.GetStatus())
	}

	h.server.MarkServing()
	resp, err = h.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status after start = %v, want SERVING", resp.GetStatus())
	}
}

func TestCommandRoundTrip(t *testing.T) {
	h := startHarness(t)
	ctx := WithRequestID(testContext(t), "req-42")

	dose := 25.0
	resp, err := h.client.IssueCommand(ctx, &CommandRequest{EquipmentID: "alum-feed", Verb: "applySetpoint", Value: &dose})
	if err != nil {
		t.Fatalf("IssueCommand: %v", err)
	}
	if !strings.Contains(resp.Event.Description, "18.0 → 25.0 mg/L") {
		t.Fatalf("event description = %q", resp.Event.Description)
	}

	history, err := h.client.ListHistory(ctx, &HistoryRequest{Limit: 5})
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history.Events) != 1 || history.Events[0].ID != resp.Event.ID {
		t.Fatalf("history = %+v, want the command event", history.Events)
	}

	state, err := h.client.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.Frame.State == nil || state.Frame.State.Equipment["alum-feed"].Setpoint != 25 {
		t.Fatalf("state setpoint not republished: %+v", state.Frame.State)
	}
	if state.Frame.State.Coagulation.AlumDoseMgL != 18 {
		t.Fatalf("alum dose %.1f applied before the next tick", state.Frame.State.Coagulation.AlumDoseMgL)
	}

	h.session.Step()
	state, err = h.client.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.Frame.State.Coagulation.AlumDoseMgL != 25 {
		t.Fatalf("alum dose after tick = %.1f, want 25", state.Frame.State.Coagulation.AlumDoseMgL)
	}
}

func TestCommandErrorsMapToStatusCodes(t *testing.T) {
	h := startHarness(t)
	ctx := testContext(t)

	dose := 99.0
	_, err := h.client.IssueCommand(ctx, &CommandRequest{EquipmentID: "alum-feed", Verb: "applySetpoint", Value: &dose})
	wantCode(t, err, codes.OutOfRange)

	_, err = h.client.IssueCommand(ctx, &CommandRequest{EquipmentID: "no-such-pump", Verb: "start"})
	wantCode(t, err, codes.NotFound)

	_, err = h.client.IssueCommand(ctx, &CommandRequest{EquipmentID: "rapid-mixer", Verb: "open"})
	wantCode(t, err, codes.FailedPrecondition)

	_, err = h.client.IssueCommand(ctx, &CommandRequest{EquipmentID: "rapid-mixer", Verb: "explode"})
	wantCode(t, err, codes.InvalidArgument)

	_, err = h.client.SetSpeed(ctx, &SpeedRequest{Multiplier: 3})
	wantCode(t, err, codes.OutOfRange)

	_, err = h.client.ExportHistory(ctx, &ExportRequest{Format: "docx"})
	wantCode(t, err, codes.InvalidArgument)

	history, err := h.client.ListHistory(ctx, &HistoryRequest{})
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history.Events) != 0 {
		t.Fatalf("rejected commands recorded history: %+v", history.Events)
	}
}

func TestScenarioAndTutorialLifecycle(t *testing.T) {
	h := startHarness(t)
	ctx := testContext(t)

	cat, err := h.client.ListCatalog(ctx)
	if err != nil {
		t.Fatalf("ListCatalog: %v", err)
	}
	if len(cat.Tutorials) == 0 || len(cat.Scenarios) == 0 || len(cat.Entries) != len(cat.Tutorials)+len(cat.Scenarios) {
		t.Fatalf("catalog = %+v", cat)
	}

	started, err := h.client.StartScenario(ctx, &ScenarioRequest{ID: "intake-pump-trip"})
	if err != nil {
		t.Fatalf("StartScenario: %v", err)
	}
	if started.Active.Definition.ID != "intake-pump-trip" {
		t.Fatalf("active scenario = %+v", started.Active)
	}
	_, err = h.client.StartScenario(ctx, &ScenarioRequest{ID: "turbidity-spike"})
	wantCode(t, err, codes.AlreadyExists)
	_, err = h.client.StartScenario(ctx, &ScenarioRequest{ID: "nope"})
	wantCode(t, err, codes.NotFound)

	stopped, err := h.client.StopScenario(ctx)
	if err != nil || !stopped.Stopped {
		t.Fatalf("StopScenario = %+v, %v", stopped, err)
	}

	view, err := h.client.StartTutorial(ctx, &TutorialRequest{ID: "intake-startup"})
	if err != nil {
		t.Fatalf("StartTutorial: %v", err)
	}
	if view.View.Phase != tutorial.PhaseRunning || view.View.TutorialID != "intake-startup" {
		t.Fatalf("tutorial view = %+v", view.View)
	}
	_, err = h.client.StartTutorial(ctx, &TutorialRequest{ID: "coagulation-dose"})
	wantCode(t, err, codes.AlreadyExists)

	exited, err := h.client.ExitTutorial(ctx)
	if err != nil {
		t.Fatalf("ExitTutorial: %v", err)
	}
	if exited.View.Phase != tutorial.PhaseIdle {
		t.Fatalf("phase after exit = %q, want idle", exited.View.Phase)
	}
}

func TestWatchStateStreamsFrames(t *testing.T) {
	h := startHarness(t)
	ctx := testContext(t)

	stream, err := h.client.WatchState(ctx)
	if err != nil {
		t.Fatalf("WatchState: %v", err)
	}
	first, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if first.State == nil {
		t.Fatalf("first frame has no state")
	}

	// The subscription is registered by the time the first frame arrives.
	for i := 0; i < 3; i++ {
		h.session.Step()
	}
	var last uint64
	for i := 0; i < 3; i++ {
		f, err := stream.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if f.Seq <= first.Seq || f.Seq <= last {
			t.Fatalf("frame seq %d not increasing (first %d, last %d)", f.Seq, first.Seq, last)
		}
		last = f.Seq
	}
	if last != first.Seq+3 {
		t.Fatalf("last seq = %d, want %d", last, first.Seq+3)
	}
}

func TestExportAndTrends(t *testing.T) {
	h := startHarness(t)
	ctx := testContext(t)

	if _, err := h.client.IssueCommand(ctx, &CommandRequest{EquipmentID: "intake-valve", Verb: "close"}); err != nil {
		t.Fatalf("IssueCommand: %v", err)
	}
	h.session.Step()

	out, err := h.client.ExportHistory(ctx, &ExportRequest{Format: "csv"})
	if err != nil {
		t.Fatalf("ExportHistory: %v", err)
	}
	if !strings.HasPrefix(out.ContentType, "text/csv") || !strings.Contains(string(out.Data), "open → closed") {
		t.Fatalf("export = %q %q", out.ContentType, out.Data)
	}

	tags, err := h.client.ListTrendTags(ctx)
	if err != nil || len(tags.Tags) == 0 {
		t.Fatalf("ListTrendTags = %+v, %v", tags, err)
	}
	trend, err := h.client.GetTrend(ctx, &TrendRequest{Tag: tags.Tags[0]})
	if err != nil {
		t.Fatalf("GetTrend: %v", err)
	}
	if len(trend.Points) == 0 {
		t.Fatalf("trend for %s is empty", tags.Tags[0])
	}
	_, err = h.client.GetTrend(ctx, &TrendRequest{Tag: "NOPE-001"})
	wantCode(t, err, codes.NotFound)

	cleared, err := h.client.ClearHistory(ctx)
	if err != nil || cleared.Removed != 1 {
		t.Fatalf("ClearHistory = %+v, %v", cleared, err)
	}
}
