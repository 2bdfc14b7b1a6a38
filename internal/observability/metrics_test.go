package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/planttrainer.v1.TrainerService/IssueCommand"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("TrainerService", "IssueCommand", "OK")); got != 1 {
		t.Fatalf("trainer_rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "trainer_rpc_request_duration_seconds", map[string]string{
		"service": "TrainerService",
		"method":  "IssueCommand",
	}); count != 1 {
		t.Fatalf("trainer_rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/planttrainer.v1.TrainerService/StartScenario"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.AlreadyExists, "scenario active")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("TrainerService", "StartScenario", "AlreadyExists")); got != 1 {
		t.Fatalf("trainer_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestCollectorsShareAlreadyRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}
	first.ObserveTick(time.Millisecond)
	second.ObserveTick(time.Millisecond)
	if got := testutil.ToFloat64(first.Ticks); got != 2 {
		t.Fatalf("sim_ticks_total = %v, want 2", got)
	}
}

func TestSimCollectorRecordsValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	c.RecordCommand("applySetpoint", ResultOK)
	c.RecordCommand("applySetpoint", ResultRejected)
	c.RecordCommand("", ResultRejected)
	c.SetActiveAlarms(3)
	c.SetObservers(2)
	c.SetSpeed(10)
	c.IncDerivationFailure("filtration")

	if got := testutil.ToFloat64(c.Commands.WithLabelValues("applySetpoint", ResultRejected)); got != 1 {
		t.Fatalf("rejected applySetpoint = %v", got)
	}
	if got := testutil.ToFloat64(c.Commands.WithLabelValues(ResultUnknown, ResultRejected)); got != 1 {
		t.Fatalf("unknown verb = %v", got)
	}
	if got := testutil.ToFloat64(c.SpeedMultiplier); got != 10 {
		t.Fatalf("speed = %v", got)
	}
	if got := testutil.ToFloat64(c.DerivationFailures.WithLabelValues("filtration")); got != 1 {
		t.Fatalf("derivation failures = %v", got)
	}

	var nilCollector *SimCollector
	nilCollector.ObserveTick(time.Millisecond)
	nilCollector.RecordCommand("start", ResultOK)
}

func TestMetricsHandlerExposesSimGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	sim, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	rpc, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}
	sim.SetActiveAlarms(4)
	sim.ObserveTick(2 * time.Millisecond)
	rpc.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	rpc.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"trainer_rpc_requests_total",
		"sim_ticks_total",
		"sim_tick_duration_seconds",
		"sim_active_alarms 4",
		"sim_speed_multiplier",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestHTTPMiddlewareCountsRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}
	h := c.HTTPMiddleware(func(*http.Request) string { return "/api/v1/state" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))
	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues("/api/v1/state", "418")); got != 1 {
		t.Fatalf("trainer_http_requests_total = %v", got)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
