package timectrl

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/plant-trainer/model"
)

// ErrInvalidSpeed is returned when a speed multiplier outside {1, 5, 10} is requested.
var ErrInvalidSpeed = fmt.Errorf("%w: speed multiplier must be 1, 5 or 10", model.ErrOutOfRange)

// SimClock is an interface for accessing simulation time. Command handlers
// and the history log depend on this rather than on the concrete controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// ValidSpeed reports whether m is a supported real-time multiplier.
func ValidSpeed(m int) bool {
	switch m {
	case 1, 5, 10:
		return true
	default:
		return false
	}
}

// Tick describes one advance of simulated time.
type Tick struct {
	// Seq is the tick number, starting at 1 and increasing by exactly one.
	Seq uint64
	// SimTime is the simulated instant at the end of this tick.
	SimTime time.Time
	// Delta is the simulated duration covered by this tick (period × speed).
	Delta time.Duration
	// Elapsed is the total simulated time since start.
	Elapsed time.Duration
	// Speed is the multiplier that was in force for this tick.
	Speed int
}

// TimeController drives simulation time and notifies registered listeners.
// Every wall-clock period produces exactly one tick; the speed multiplier only
// scales how much simulated time that tick covers.
type TimeController struct {
	StartTime time.Time
	Period    time.Duration

	// speed is the pending multiplier. It is sampled once at the start of
	// each tick, so a change never affects a tick already in progress.
	speed atomic.Int32

	// stepMu serialises ticks so listeners observe them in order.
	stepMu sync.Mutex

	mu          sync.RWMutex
	currentTime time.Time
	elapsed     time.Duration
	seq         uint64
	listeners   []func(Tick)
}

// NewTimeController constructs a controller at the given start time.
func NewTimeController(start time.Time, period time.Duration, speed int) (*TimeController, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: tick period must be positive", model.ErrOutOfRange)
	}
	if !ValidSpeed(speed) {
		return nil, ErrInvalidSpeed
	}
	tc := &TimeController{
		StartTime:   start,
		Period:      period,
		currentTime: start,
	}
	tc.speed.Store(int32(speed))
	return tc, nil
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Seq returns the number of the last completed tick.
func (tc *TimeController) Seq() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.seq
}

// Elapsed returns the simulated time covered so far.
func (tc *TimeController) Elapsed() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.elapsed
}

// Speed returns the multiplier that the next tick will use.
func (tc *TimeController) Speed() int {
	return int(tc.speed.Load())
}

// SetSpeed changes the wall-clock to sim-time ratio without resetting sim time.
// It takes effect on the next tick.
func (tc *TimeController) SetSpeed(m int) error {
	if !ValidSpeed(m) {
		return ErrInvalidSpeed
	}
	tc.speed.Store(int32(m))
	return nil
}

// AddListener registers a callback invoked on every tick, in registration order.
func (tc *TimeController) AddListener(fn func(Tick)) {
	if fn == nil {
		return
	}
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Step advances simulated time by one tick and runs all listeners
// synchronously before returning. The run loop calls it once per period;
// tests and accelerated tooling may call it directly.
func (tc *TimeController) Step() Tick {
	tc.stepMu.Lock()
	defer tc.stepMu.Unlock()

	speed := int(tc.speed.Load())
	delta := tc.Period * time.Duration(speed)

	tc.mu.Lock()
	tc.seq++
	tc.elapsed += delta
	tc.currentTime = tc.currentTime.Add(delta)
	tick := Tick{
		Seq:     tc.seq,
		SimTime: tc.currentTime,
		Delta:   delta,
		Elapsed: tc.elapsed,
		Speed:   speed,
	}
	listeners := append([]func(Tick){}, tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(tick)
	}
	return tick
}

// Start runs the controller against the wall clock until ctx is cancelled.
// It returns a channel that is closed when the loop exits. When a tick
// overruns its period the loop steps once for every period that came due in
// the meantime, so ticks are delayed but never dropped.
func (tc *TimeController) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		next := time.Now().Add(tc.Period)
		timer := time.NewTimer(tc.Period)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			next = tc.stepDue(ctx, next, time.Now())
			timer.Reset(time.Until(next))
		}
	}()
	return done
}

// stepDue runs one Step for every period deadline at or before now, starting
// with next, and returns the first deadline still in the future.
func (tc *TimeController) stepDue(ctx context.Context, next, now time.Time) time.Time {
	for !next.After(now) {
		if ctx.Err() != nil {
			return next
		}
		tc.Step()
		next = next.Add(tc.Period)
	}
	return next
}
