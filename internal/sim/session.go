// Package sim owns the single authoritative simulation session. One mutex
// orders ticks, operator commands, scenario changes and tutorial control so
// no command ever interleaves with a tick computation.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/plant-trainer/internal/alarm"
	"github.com/signalsfoundry/plant-trainer/internal/broadcast"
	"github.com/signalsfoundry/plant-trainer/internal/catalog"
	"github.com/signalsfoundry/plant-trainer/internal/config"
	"github.com/signalsfoundry/plant-trainer/internal/equipment"
	"github.com/signalsfoundry/plant-trainer/internal/export"
	"github.com/signalsfoundry/plant-trainer/internal/history"
	"github.com/signalsfoundry/plant-trainer/internal/logging"
	"github.com/signalsfoundry/plant-trainer/internal/process"
	"github.com/signalsfoundry/plant-trainer/internal/scenario"
	"github.com/signalsfoundry/plant-trainer/internal/tutorial"
	"github.com/signalsfoundry/plant-trainer/model"
	"github.com/signalsfoundry/plant-trainer/timectrl"
)

// ErrInvalidEffect is returned for a start/stop effect that cannot be applied.
var ErrInvalidEffect = fmt.Errorf("sim: effect: %w", model.ErrOutOfRange)

// MetricsRecorder receives simulation measurements.
type MetricsRecorder interface {
	ObserveTick(d time.Duration)
	RecordCommand(verb, result string)
	SetActiveAlarms(n int)
	SetObservers(n int)
	SetSpeed(m int)
	SetDroppedFrames(n uint64)
	IncDerivationFailure(stage string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTick(time.Duration)    {}
func (noopMetrics) RecordCommand(string, string) {}
func (noopMetrics) SetActiveAlarms(int)          {}
func (noopMetrics) SetObservers(int)             {}
func (noopMetrics) SetSpeed(int)                 {}
func (noopMetrics) SetDroppedFrames(uint64)      {}
func (noopMetrics) IncDerivationFailure(string)  {}

type settings struct {
	log               logging.Logger
	metrics           MetricsRecorder
	hub               *broadcast.Hub
	tickPeriod        time.Duration
	initialSpeed      int
	alarmHistoryLimit int
	historyCapacity   int
	trendSamples      int
	observerBuffer    int
	sinks             []func(model.HistoryEvent)
	idGen             func() string
}

// Option customises Session construction.
type Option func(*settings)

// WithLogger sets the structured logger.
func WithLogger(l logging.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *settings) { s.metrics = m }
}

// WithHub publishes frames to an existing hub instead of a private one.
func WithHub(h *broadcast.Hub) Option {
	return func(s *settings) { s.hub = h }
}

// WithTickPeriod sets the wall-clock period of one tick.
func WithTickPeriod(d time.Duration) Option {
	return func(s *settings) { s.tickPeriod = d }
}

// WithInitialSpeed sets the starting speed multiplier.
func WithInitialSpeed(m int) Option {
	return func(s *settings) { s.initialSpeed = m }
}

// WithAlarmHistoryLimit bounds the cleared-alarm history.
func WithAlarmHistoryLimit(n int) Option {
	return func(s *settings) { s.alarmHistoryLimit = n }
}

// WithHistoryCapacity bounds the operator event log. Zero keeps everything.
func WithHistoryCapacity(n int) Option {
	return func(s *settings) { s.historyCapacity = n }
}

// WithTrendSamples sets how many samples per tag the trend buffer keeps.
func WithTrendSamples(n int) Option {
	return func(s *settings) { s.trendSamples = n }
}

// WithObserverBuffer sets the per-observer frame buffer depth.
func WithObserverBuffer(n int) Option {
	return func(s *settings) { s.observerBuffer = n }
}

// WithEventSink forwards every recorded history event to fn.
func WithEventSink(fn func(model.HistoryEvent)) Option {
	return func(s *settings) {
		if fn != nil {
			s.sinks = append(s.sinks, fn)
		}
	}
}

// WithIDGenerator replaces uuid ids for history events and alarm records.
func WithIDGenerator(fn func() string) Option {
	return func(s *settings) { s.idGen = fn }
}

// Session is the SimulationSession: the plant, its engines and the
// published snapshot. All mutation happens under mu.
type Session struct {
	mu sync.Mutex

	clock     *timectrl.TimeController
	registry  *equipment.Registry
	model     *process.Model
	alarms    *alarm.Evaluator
	scenarios *scenario.Injector
	tutorials *tutorial.Engine
	history   *history.Log
	catalog   catalog.Catalog

	hub            *broadcast.Hub
	observerBuffer int
	trends         *TrendBuffer

	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer

	lastTick timectrl.Tick
	seq      uint64
	snapshot atomic.Pointer[model.ProcessState]
	running  atomic.Bool
}

// New builds a session for plant with the given tutorial and scenario
// catalog and publishes a settled initial snapshot at tick 0.
func New(plant config.Plant, cat catalog.Catalog, opts ...Option) (*Session, error) {
	st := settings{
		tickPeriod:        500 * time.Millisecond,
		initialSpeed:      1,
		alarmHistoryLimit: alarm.DefaultHistoryLimit,
		trendSamples:      DefaultTrendSamples,
		observerBuffer:    broadcast.DefaultBuffer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&st)
		}
	}
	if st.log == nil {
		st.log = logging.Noop()
	}
	if st.metrics == nil {
		st.metrics = noopMetrics{}
	}
	if st.hub == nil {
		st.hub = broadcast.NewHub()
	}

	clock, err := timectrl.NewTimeController(plant.StartTime, st.tickPeriod, st.initialSpeed)
	if err != nil {
		return nil, err
	}

	logOpts := []history.Option{history.WithCapacity(st.historyCapacity), history.WithNow(clock.Now)}
	if st.idGen != nil {
		logOpts = append(logOpts, history.WithIDGenerator(st.idGen))
	}
	for _, fn := range st.sinks {
		logOpts = append(logOpts, history.WithSink(fn))
	}
	hist := history.NewLog(logOpts...)

	registry, err := equipment.NewRegistry(plant.Equipment,
		equipment.WithRecorder(hist),
		equipment.WithClock(clock),
		equipment.WithBackwashDuration(plant.BackwashDuration),
	)
	if err != nil {
		return nil, err
	}

	alarmOpts := []alarm.Option{alarm.WithHysteresis(plant.HysteresisFraction), alarm.WithHistoryLimit(st.alarmHistoryLimit)}
	if st.idGen != nil {
		alarmOpts = append(alarmOpts, alarm.WithIDGenerator(st.idGen))
	}
	alarms, err := alarm.NewEvaluator(plant.Alarms, alarmOpts...)
	if err != nil {
		return nil, err
	}

	injector, err := scenario.NewInjector(cat.Scenarios)
	if err != nil {
		return nil, err
	}
	engine, err := tutorial.NewEngine(cat.Tutorials, tutorial.NewRegistry())
	if err != nil {
		return nil, err
	}

	s := &Session{
		clock:          clock,
		registry:       registry,
		model:          process.New(plant.Params, plant.Layout),
		alarms:         alarms,
		scenarios:      injector,
		tutorials:      engine,
		history:        hist,
		catalog:        cat,
		hub:            st.hub,
		observerBuffer: st.observerBuffer,
		trends:         NewTrendBuffer(st.trendSamples),
		log:            st.log.With(logging.String("component", "sim")),
		metrics:        st.metrics,
		tracer:         otel.Tracer("github.com/signalsfoundry/plant-trainer/internal/sim"),
	}
	s.lastTick = timectrl.Tick{SimTime: plant.StartTime, Speed: st.initialSpeed}
	s.metrics.SetSpeed(st.initialSpeed)

	s.mu.Lock()
	out := s.model.Settle(s.inputsLocked(s.lastTick))
	snap := s.composeLocked(context.Background(), s.lastTick, out)
	s.trends.Record(snap)
	s.mu.Unlock()

	clock.AddListener(s.onTick)
	return s, nil
}

// Run drives ticks from the wall clock until ctx is cancelled. The returned
// channel closes when the loop has stopped.
func (s *Session) Run(ctx context.Context) <-chan struct{} {
	s.running.Store(true)
	s.log.Info(ctx, "simulation started",
		logging.Duration("tick_period", s.clock.Period),
		logging.Int("speed", s.clock.Speed()),
	)
	done := s.clock.Start(ctx)
	out := make(chan struct{})
	go func() {
		<-done
		s.running.Store(false)
		s.log.Info(context.Background(), "simulation stopped", logging.Uint64("tick", s.clock.Seq()))
		close(out)
	}()
	return out
}

// Running reports whether the wall-clock loop is active.
func (s *Session) Running() bool { return s.running.Load() }

// Step advances exactly one tick synchronously.
func (s *Session) Step() timectrl.Tick { return s.clock.Step() }

// Close closes every observer subscription.
func (s *Session) Close() { s.hub.Close() }

func (s *Session) inputsLocked(t timectrl.Tick) process.Inputs {
	return process.Inputs{
		Tick:      t.Seq,
		Dt:        t.Delta,
		Elapsed:   t.Elapsed,
		Equipment: s.registry.Units(),
		Overrides: s.scenarios.Overrides(),
	}
}

// onTick is the tick pipeline: equipment timers, process model, head loss
// accumulation, alarms, snapshot, tutorial evaluation, publication.
func (s *Session) onTick(t timectrl.Tick) {
	start := time.Now()
	ctx, span := s.tracer.Start(context.Background(), "sim.tick",
		trace.WithAttributes(attribute.Int64("sim.tick", int64(t.Seq)), attribute.Int("sim.speed", t.Speed)))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(ctx, "tick panicked; keeping previous snapshot",
				logging.Uint64("tick", t.Seq), logging.Any("panic", r))
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.registry.Advance(t.Delta) {
		s.log.Info(ctx, "backwash complete", logging.String("equipment_id", id), logging.Uint64("tick", t.Seq))
	}

	out := s.model.Step(s.inputsLocked(t))
	for id, delta := range out.HeadLossDeltas {
		if err := s.registry.AddHeadLoss(id, delta); err != nil {
			s.log.Warn(ctx, "head loss not applied", logging.String("equipment_id", id), logging.Err(err))
		}
	}
	for _, f := range out.Failures {
		s.metrics.IncDerivationFailure(f.Stage)
		s.log.Warn(ctx, "derived value held at prior value",
			logging.String("stage", f.Stage),
			logging.String("tag", f.Tag),
			logging.Uint64("tick", t.Seq),
			logging.Err(f.Err),
		)
	}

	s.lastTick = t
	snap := s.composeLocked(ctx, t, out)
	s.trends.Record(snap)

	s.metrics.SetActiveAlarms(len(snap.ActiveAlarms))
	s.metrics.SetObservers(s.hub.Observers())
	s.metrics.SetDroppedFrames(s.hub.Dropped())
	s.metrics.ObserveTick(time.Since(start))
}

// composeLocked evaluates alarms, builds the immutable snapshot, runs the
// tutorial auto-advance against it and only then publishes it.
func (s *Session) composeLocked(ctx context.Context, t timectrl.Tick, out process.Output) *model.ProcessState {
	tr := s.alarms.Evaluate(out.Tags, t.SimTime)
	for _, a := range tr.Raised {
		s.log.Info(ctx, "alarm raised",
			logging.String("alarm_id", a.ID), logging.String("tag", a.Tag),
			logging.String("priority", string(a.Priority)), logging.Float("value", a.Value))
	}
	for _, a := range tr.Cleared {
		s.log.Info(ctx, "alarm cleared", logging.String("alarm_id", a.ID), logging.String("tag", a.Tag))
	}

	snap := &model.ProcessState{
		Tick:          t.Seq,
		SimTime:       t.SimTime,
		Elapsed:       t.Elapsed,
		Speed:         s.clock.Speed(),
		Intake:        out.Intake,
		Coagulation:   out.Coagulation,
		Sedimentation: out.Sedimentation,
		Disinfection:  out.Disinfection,
		Equipment:     s.registry.Units(),
		Tags:          out.Tags,
		ActiveAlarms:  s.alarms.Active(),
	}
	if a, ok := s.scenarios.Active(); ok {
		snap.ActiveScenario = a.Definition.ID
	}

	if n := s.tutorials.Evaluate(snap); n > 0 {
		s.log.Debug(ctx, "tutorial auto-advanced", logging.Int("steps", n), logging.Uint64("tick", t.Seq))
	}
	s.snapshot.Store(snap)
	s.publishLocked(snap)
	return snap
}

func (s *Session) publishLocked(snap *model.ProcessState) {
	s.seq++
	s.hub.Publish(broadcast.Frame{Seq: s.seq, State: snap, Tutorial: s.tutorials.View()})
}

// refreshLocked republishes the current tick with the operator-visible
// bookkeeping a command changes: equipment records, the active scenario,
// alarm acknowledgement and the tutorial view. Tags, stage values and alarm
// activation stay as the last tick computed them until the next tick.
func (s *Session) refreshLocked(ctx context.Context) {
	prev := s.snapshot.Load()
	if prev == nil {
		return
	}
	snap := *prev
	snap.Equipment = s.registry.Units()
	snap.ActiveAlarms = s.alarms.Active()
	snap.ActiveScenario = ""
	if a, ok := s.scenarios.Active(); ok {
		snap.ActiveScenario = a.Definition.ID
	}
	if n := s.tutorials.Evaluate(&snap); n > 0 {
		s.log.Debug(ctx, "tutorial auto-advanced", logging.Int("steps", n), logging.Uint64("tick", snap.Tick))
	}
	s.snapshot.Store(&snap)
	s.publishLocked(&snap)
}

// Snapshot returns the latest published state. Callers must not mutate it.
func (s *Session) Snapshot() *model.ProcessState { return s.snapshot.Load() }

// CurrentFrame returns the last frame handed to observers.
func (s *Session) CurrentFrame() broadcast.Frame {
	f, _ := s.hub.Current()
	return f
}

// Subscribe registers a state observer. The current frame is delivered first.
func (s *Session) Subscribe(name string) *broadcast.Subscription {
	sub := s.hub.Subscribe(name, s.observerBuffer)
	s.metrics.SetObservers(s.hub.Observers())
	return sub
}

// Unsubscribe removes an observer registered with Subscribe.
func (s *Session) Unsubscribe(sub *broadcast.Subscription) {
	s.hub.Unsubscribe(sub)
	s.metrics.SetObservers(s.hub.Observers())
}

// Hub exposes the broadcaster for external sinks.
func (s *Session) Hub() *broadcast.Hub { return s.hub }

// Speed returns the multiplier the next tick will use.
func (s *Session) Speed() int { return s.clock.Speed() }

// SetSpeed changes the multiplier from the next tick on.
func (s *Session) SetSpeed(ctx context.Context, m int) error {
	log := logging.LoggerFromContext(ctx, s.log)
	if err := s.clock.SetSpeed(m); err != nil {
		log.Warn(ctx, "speed change rejected", logging.Int("speed", m), logging.Err(err))
		return err
	}
	s.metrics.SetSpeed(m)
	log.Info(ctx, "speed changed", logging.Int("speed", m))
	return nil
}

// IssueCommand applies one operator command. On success exactly one history
// event is recorded and the refreshed snapshot is published.
func (s *Session) IssueCommand(ctx context.Context, cmd equipment.Command) (equipment.Result, error) {
	ctx, span := s.tracer.Start(ctx, "sim.command", trace.WithAttributes(
		attribute.String("equipment.id", cmd.EquipmentID),
		attribute.String("command.verb", string(cmd.Verb)),
	))
	defer span.End()
	log := logging.LoggerFromContext(ctx, s.log)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.registry.Issue(cmd)
	if err != nil {
		s.metrics.RecordCommand(string(cmd.Verb), commandResult(err))
		span.RecordError(err)
		log.Warn(ctx, "command rejected",
			logging.String("equipment_id", cmd.EquipmentID),
			logging.String("verb", string(cmd.Verb)),
			logging.Err(err),
		)
		return equipment.Result{}, err
	}
	s.metrics.RecordCommand(string(cmd.Verb), "ok")
	log.Info(ctx, "command applied",
		logging.String("equipment_id", res.Unit.ID),
		logging.String("verb", string(cmd.Verb)),
		logging.String("before", res.Before),
		logging.String("after", res.After),
		logging.Bool("noop", res.NoOp),
	)
	s.refreshLocked(ctx)
	return res, nil
}

func commandResult(err error) string {
	if errors.Is(err, model.ErrUnknownEntity) {
		return "unknown"
	}
	return "rejected"
}

// applyEffectsLocked runs start/stop effects in order. A failing effect is
// logged and skipped; the rest still apply.
func (s *Session) applyEffectsLocked(ctx context.Context, source string, effects []model.Effect) {
	for _, e := range effects {
		if err := s.applyEffectLocked(e); err != nil {
			s.log.Warn(ctx, "effect not applied",
				logging.String("source", source),
				logging.String("force_tag", e.ForceTag),
				logging.String("equipment_id", e.Equipment),
				logging.String("verb", string(e.Verb)),
				logging.Err(err),
			)
		}
	}
}

func (s *Session) applyEffectLocked(e model.Effect) error {
	if e.IsForce() {
		if e.Value == nil {
			return fmt.Errorf("%w: force %s needs a value", ErrInvalidEffect, e.ForceTag)
		}
		return s.model.ForceTag(e.ForceTag, *e.Value)
	}
	if _, err := s.registry.Issue(equipment.Command{EquipmentID: e.Equipment, Verb: e.Verb, Value: e.Value}); err != nil {
		s.metrics.RecordCommand(string(e.Verb), commandResult(err))
		return err
	}
	s.metrics.RecordCommand(string(e.Verb), "ok")
	return nil
}

// StartScenario activates a fault scenario. Its overrides take effect at the
// next tick; its onStart commands apply immediately.
func (s *Session) StartScenario(ctx context.Context, id string) (scenario.Active, error) {
	log := logging.LoggerFromContext(ctx, s.log)
	s.mu.Lock()
	defer s.mu.Unlock()

	def, err := s.scenarios.Start(id, s.clock.Now())
	if err != nil {
		log.Warn(ctx, "scenario start rejected", logging.String("scenario_id", id), logging.Err(err))
		return scenario.Active{}, err
	}
	s.recordScenarioLocked(def, "inactive", "active")
	s.applyEffectsLocked(ctx, "scenario:"+def.ID, def.OnStart)
	log.Info(ctx, "scenario started", logging.String("scenario_id", def.ID))
	s.refreshLocked(ctx)
	active, _ := s.scenarios.Active()
	return active, nil
}

// StopScenario deactivates the running scenario and removes all of its
// overrides. It reports false when nothing was active.
func (s *Session) StopScenario(ctx context.Context) (bool, error) {
	log := logging.LoggerFromContext(ctx, s.log)
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.scenarios.Stop()
	if !ok {
		return false, nil
	}
	s.recordScenarioLocked(def, "active", "inactive")
	s.applyEffectsLocked(ctx, "scenario:"+def.ID, def.OnStop)
	log.Info(ctx, "scenario stopped", logging.String("scenario_id", def.ID))
	s.refreshLocked(ctx)
	return true, nil
}

func (s *Session) recordScenarioLocked(def scenario.Definition, before, after string) {
	s.history.Record(model.HistoryEvent{
		Time:        s.clock.Now(),
		Category:    model.CategoryScenario,
		EntityID:    def.ID,
		Tag:         def.ID,
		Description: fmt.Sprintf("%s (%s): %s → %s", def.Name, def.ID, before, after),
		Before:      before,
		After:       after,
	})
}

// ActiveScenario returns the running scenario, if any.
func (s *Session) ActiveScenario() (scenario.Active, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenarios.Active()
}

// Catalog lists every tutorial and scenario for selection cards.
func (s *Session) Catalog() []catalog.Entry { return s.catalog.Entries() }

// TutorialSummaries lists the tutorials.
func (s *Session) TutorialSummaries() []tutorial.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tutorials.Summaries()
}

// ScenarioSummaries lists the scenarios.
func (s *Session) ScenarioSummaries() []scenario.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenarios.Summaries()
}

// TutorialView renders the current tutorial run.
func (s *Session) TutorialView() tutorial.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tutorials.View()
}

// StartTutorial starts a run, applies the tutorial's onStart effects and
// evaluates the refreshed snapshot so already satisfied waitFor steps are
// skipped before any observer sees the run.
func (s *Session) StartTutorial(ctx context.Context, id string) (tutorial.View, error) {
	log := logging.LoggerFromContext(ctx, s.log)
	s.mu.Lock()
	defer s.mu.Unlock()

	effects, err := s.tutorials.Start(id, s.clock.Now())
	if err != nil {
		log.Warn(ctx, "tutorial start rejected", logging.String("tutorial_id", id), logging.Err(err))
		return tutorial.View{}, err
	}
	s.applyEffectsLocked(ctx, "tutorial:"+id, effects)
	s.refreshLocked(ctx)
	v := s.tutorials.View()
	log.Info(ctx, "tutorial started", logging.String("tutorial_id", id), logging.Int("step", v.StepIndex))
	return v, nil
}

func (s *Session) tutorialOp(ctx context.Context, name string, op func() error) (tutorial.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := op(); err != nil {
		logging.LoggerFromContext(ctx, s.log).Debug(ctx, "tutorial "+name+" rejected", logging.Err(err))
		return s.tutorials.View(), err
	}
	if snap := s.snapshot.Load(); snap != nil {
		s.publishLocked(snap)
	}
	return s.tutorials.View(), nil
}

// NextStep advances the tutorial, then runs the auto-advance chain.
func (s *Session) NextStep(ctx context.Context) (tutorial.View, error) {
	return s.tutorialOp(ctx, "next", s.tutorials.Next)
}

// BackStep returns to the previous step.
func (s *Session) BackStep(ctx context.Context) (tutorial.View, error) {
	return s.tutorialOp(ctx, "back", s.tutorials.Back)
}

// FinishTutorial completes the run from its last step.
func (s *Session) FinishTutorial(ctx context.Context) (tutorial.View, error) {
	return s.tutorialOp(ctx, "finish", s.tutorials.Finish)
}

// ExitTutorial discards the run.
func (s *Session) ExitTutorial(ctx context.Context) tutorial.View {
	v, _ := s.tutorialOp(ctx, "exit", func() error {
		s.tutorials.Exit()
		return nil
	})
	return v
}

// ReportUIEvent tells the engine the trainee performed eventID.
func (s *Session) ReportUIEvent(ctx context.Context, eventID string) (bool, tutorial.View, error) {
	var matched bool
	v, err := s.tutorialOp(ctx, "ui event", func() error {
		var err error
		matched, err = s.tutorials.ReportUIEvent(eventID)
		return err
	})
	return matched, v, err
}

// Acknowledge marks an alarm as seen by the operator.
func (s *Session) Acknowledge(ctx context.Context, alarmID string) (model.AlarmRecord, error) {
	log := logging.LoggerFromContext(ctx, s.log)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.alarms.Acknowledge(alarmID, s.clock.Now())
	if err != nil {
		log.Warn(ctx, "acknowledge rejected", logging.String("alarm_id", alarmID), logging.Err(err))
		return model.AlarmRecord{}, err
	}
	log.Info(ctx, "alarm acknowledged", logging.String("alarm_id", alarmID), logging.String("tag", rec.Tag))
	s.refreshLocked(ctx)
	return rec, nil
}

// ActiveAlarms returns open alarms, highest priority first.
func (s *Session) ActiveAlarms() []model.AlarmRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alarms.Active()
}

// AlarmLimits returns the configured limits and the clearing band fraction.
func (s *Session) AlarmLimits() ([]alarm.Limit, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alarms.Limits(), s.alarms.Hysteresis()
}

// AlarmHistory returns cleared alarms, newest first.
func (s *Session) AlarmHistory() []model.AlarmRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alarms.History()
}

// History returns at most limit operator events, newest first. A negative
// limit returns all of them.
func (s *Session) History(limit int) []model.HistoryEvent {
	return s.history.Recent(limit)
}

// ClearHistory empties the operator event log.
func (s *Session) ClearHistory(ctx context.Context) int {
	n := s.history.Clear()
	logging.LoggerFromContext(ctx, s.log).Info(ctx, "history cleared", logging.Int("removed", n))
	return n
}

// Trends returns the buffered samples for tag, oldest first.
func (s *Session) Trends(tag string) ([]TrendPoint, error) {
	return s.trends.Series(tag)
}

// TrendTags lists every tag with trend samples.
func (s *Session) TrendTags() []string { return s.trends.Tags() }

// Export renders the operator history and alarm records in format f.
func (s *Session) Export(f export.Format) ([]byte, error) {
	s.mu.Lock()
	alarms := append(s.alarms.Active(), s.alarms.History()...)
	s.mu.Unlock()
	rows := export.Rows(s.history.List(), alarms)
	return export.Build(f, rows, s.clock.Now())
}
