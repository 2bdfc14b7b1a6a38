package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Command results used as the "result" label of sim_commands_total.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultUnknown  = "unknown"
)

// SimCollector exposes simulation metrics: tick throughput, command
// outcomes, alarm and observer counts and derivation failures.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Ticks              prometheus.Counter
	TickDuration       prometheus.Histogram
	Commands           *prometheus.CounterVec
	ActiveAlarms       prometheus.Gauge
	Observers          prometheus.Gauge
	SpeedMultiplier    prometheus.Gauge
	DerivationFailures *prometheus.CounterVec
	DroppedFrames      prometheus.Gauge
}

// NewSimCollector registers simulation metrics against the provided registerer.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	reg, gatherer := gathererFor(reg)

	ticks, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Number of simulation ticks computed.",
	}), "sim_ticks_total")
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Wall-clock time spent computing one tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}), "sim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	commands, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_commands_total",
		Help: "Operator equipment commands, labeled by verb and result.",
	}, []string{"verb", "result"}), "sim_commands_total")
	if err != nil {
		return nil, err
	}

	alarms, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_active_alarms",
		Help: "Number of alarms currently active or acknowledged.",
	}), "sim_active_alarms")
	if err != nil {
		return nil, err
	}

	observers, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_observers",
		Help: "Number of connected state observers.",
	}), "sim_observers")
	if err != nil {
		return nil, err
	}

	speed, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_speed_multiplier",
		Help: "Current simulation speed multiplier.",
	}), "sim_speed_multiplier")
	if err != nil {
		return nil, err
	}

	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_derivation_failures_total",
		Help: "Derived values that could not be computed and held their prior value, by stage.",
	}, []string{"stage"}), "sim_derivation_failures_total")
	if err != nil {
		return nil, err
	}

	dropped, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_dropped_frames",
		Help: "Frames skipped for observers whose buffer was full.",
	}), "sim_dropped_frames")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:           gatherer,
		Ticks:              ticks,
		TickDuration:       duration,
		Commands:           commands,
		ActiveAlarms:       alarms,
		Observers:          observers,
		SpeedMultiplier:    speed,
		DerivationFailures: failures,
		DroppedFrames:      dropped,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes the collector's registry over HTTP.
func (c *SimCollector) Handler() http.Handler {
	return metricsHandler(c.Gatherer())
}

// ObserveTick counts one tick and its compute time.
func (c *SimCollector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	if c.Ticks != nil {
		c.Ticks.Inc()
	}
	if c.TickDuration != nil {
		c.TickDuration.Observe(d.Seconds())
	}
}

// RecordCommand counts one command outcome.
func (c *SimCollector) RecordCommand(verb, result string) {
	if c == nil || c.Commands == nil {
		return
	}
	if verb == "" {
		verb = ResultUnknown
	}
	c.Commands.WithLabelValues(verb, result).Inc()
}

// SetActiveAlarms updates the open alarm gauge.
func (c *SimCollector) SetActiveAlarms(n int) {
	if c == nil || c.ActiveAlarms == nil {
		return
	}
	c.ActiveAlarms.Set(float64(n))
}

// SetObservers updates the observer gauge.
func (c *SimCollector) SetObservers(n int) {
	if c == nil || c.Observers == nil {
		return
	}
	c.Observers.Set(float64(n))
}

// SetSpeed updates the speed multiplier gauge.
func (c *SimCollector) SetSpeed(m int) {
	if c == nil || c.SpeedMultiplier == nil {
		return
	}
	c.SpeedMultiplier.Set(float64(m))
}

// SetDroppedFrames mirrors the broadcaster's cumulative drop count.
func (c *SimCollector) SetDroppedFrames(n uint64) {
	if c == nil || c.DroppedFrames == nil {
		return
	}
	c.DroppedFrames.Set(float64(n))
}

// IncDerivationFailure counts one held value for stage.
func (c *SimCollector) IncDerivationFailure(stage string) {
	if c == nil || c.DerivationFailures == nil {
		return
	}
	c.DerivationFailures.WithLabelValues(stage).Inc()
}
