package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// RPCCollector bundles Prometheus metrics for the gRPC and HTTP surfaces and
// provides helpers to wire them into servers.
type RPCCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
	HTTPRequests *prometheus.CounterVec
}

// NewRPCCollector registers request metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewRPCCollector(reg prometheus.Registerer) (*RPCCollector, error) {
	reg, gatherer := gathererFor(reg)

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trainer_rpc_requests_total",
		Help: "Total number of handled trainer RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "trainer_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trainer_rpc_request_duration_seconds",
		Help:    "Trainer RPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"service", "method"}), "trainer_rpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	httpRequests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trainer_http_requests_total",
		Help: "Total number of HTTP API requests, labeled by route and status code.",
	}, []string{"route", "code"}), "trainer_http_requests_total")
	if err != nil {
		return nil, err
	}

	return &RPCCollector{
		gatherer:     gatherer,
		RPCRequests:  requests,
		RPCDurations: durations,
		HTTPRequests: httpRequests,
	}, nil
}

func (c *RPCCollector) observe(fullMethod string, start time.Time, err error) {
	if c == nil {
		return
	}
	service, method := SplitMethod(fullMethod)
	if c.RPCRequests != nil {
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
	}
	if c.RPCDurations != nil {
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
	}
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *RPCCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		c.observe(fullMethod, start, err)
		return resp, err
	}
}

// StreamServerInterceptor records one count and the stream lifetime when a
// server stream ends.
func (c *RPCCollector) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		c.observe(fullMethod, start, err)
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent event streams working through the wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// HTTPMiddleware counts requests per route. route maps a request onto a
// low-cardinality label such as the router's path template.
func (c *RPCCollector) HTTPMiddleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)
			if c == nil || c.HTTPRequests == nil {
				return
			}
			label := "unknown"
			if route != nil {
				if l := route(r); l != "" {
					label = l
				}
			}
			c.HTTPRequests.WithLabelValues(label, strconv.Itoa(rec.code)).Inc()
		})
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *RPCCollector) Handler() http.Handler {
	return metricsHandler(c.gatherer)
}

func metricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
