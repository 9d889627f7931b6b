// Package single implements a single-wire encoder, such as an LM393 based
// optical odometer or a motor driver's speed pulse output.
//
// The encoder counts rising edges on a digital interrupt and turns the
// interval between pulses into an RPM estimate. Raw intervals are noisy, so
// they pass through an interval band filter (derived from the configured RPM
// range) and a scalar Kalman filter before conversion. A watchdog reports
// 0 RPM once no pulses have arrived for the stopped timeout.
package single

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/stat"

	"github.com/jameskerry651/rc-assemble/board"
	"github.com/jameskerry651/rc-assemble/encoder"
)

const (
	// rpmHistorySize bounds the window Stats summarizes.
	rpmHistorySize = 100
	// watchdogInterval is how often the stopped timeout is checked.
	watchdogInterval = 100 * time.Millisecond

	// Kalman filter covariances for pulse interval smoothing.
	kalmanProcessNoise     = 0.1
	kalmanMeasurementNoise = 10.0
)

// NewEncoder constructs an encoder from the config and starts its
// measurement worker. The config must have been validated.
func NewEncoder(ctx context.Context, b board.Board, ec encoder.Config, logger golog.Logger) (encoder.Encoder, error) {
	return newEncoder(ctx, b, ec, clock.New(), logger)
}

func newEncoder(ctx context.Context, b board.Board, ec encoder.Config, clk clock.Clock, logger golog.Logger) (*Encoder, error) {
	di, err := b.DigitalInterruptByName(ec.Interrupt)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get encoder interrupt")
	}

	// The RPM range implies a plausible band of pulse intervals. Anything
	// shorter than the max-RPM interval is electrical noise or contact
	// bounce; anything longer than the stopped timeout means the motor
	// stopped in between.
	minIntervalNs := 60e9 / (ec.MaxRPM * ec.PulsesPerRev)
	stoppedTimeout := time.Duration(ec.StoppedTimeoutMs) * time.Millisecond

	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	e := &Encoder{
		di:             di,
		ppr:            ec.PulsesPerRev,
		minIntervalNs:  minIntervalNs,
		stoppedTimeout: stoppedTimeout,
		clk:            clk,
		filter:         newKalmanFilter(kalmanProcessNoise, kalmanMeasurementNoise),
		cancelCtx:      cancelCtx,
		cancelFunc:     cancelFunc,
		logger:         logger,
	}

	e.tickChan = make(chan board.Tick)
	di.AddCallback(e.tickChan)
	watchdog := clk.Ticker(watchdogInterval)

	e.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		defer watchdog.Stop()
		for {
			select {
			case <-cancelCtx.Done():
				return
			case tick := <-e.tickChan:
				if tick.High {
					e.pulse(tick.TimestampNanos)
				}
			case <-watchdog.C:
				e.checkStopped()
			}
		}
	}, e.activeBackgroundWorkers.Done)

	return e, nil
}

// An Encoder measures RPM from a single pulse line.
type Encoder struct {
	di       board.DigitalInterrupt
	tickChan chan board.Tick
	ppr      float64

	minIntervalNs  float64
	stoppedTimeout time.Duration
	clk            clock.Clock

	ticks int64 // atomic

	mu             sync.Mutex
	filter         *kalmanFilter
	lastPulseNanos uint64
	lastPulseWall  time.Time
	rpm            float64
	rpmHistory     []float64

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
	logger                  golog.Logger
}

var _ encoder.Encoder = (*Encoder)(nil)

// pulse processes one rising edge with its kernel timestamp.
func (e *Encoder) pulse(nanos uint64) {
	atomic.AddInt64(&e.ticks, 1)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clk.Now()
	last := e.lastPulseNanos
	e.lastPulseNanos = nanos
	e.lastPulseWall = now
	if last == 0 || nanos <= last {
		return
	}

	intervalNs := float64(nanos - last)
	if intervalNs < e.minIntervalNs || intervalNs > float64(e.stoppedTimeout.Nanoseconds()) {
		// Bounce or a gap spanning a stop; don't let it pollute the filter.
		return
	}

	smoothedNs := e.filter.Update(intervalNs)
	e.rpm = 60e9 / (smoothedNs * e.ppr)
	e.rpmHistory = append(e.rpmHistory, e.rpm)
	if len(e.rpmHistory) > rpmHistorySize {
		e.rpmHistory = e.rpmHistory[1:]
	}
}

// checkStopped zeroes the estimate when pulses have dried up.
func (e *Encoder) checkStopped() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rpm == 0 || e.lastPulseWall.IsZero() {
		return
	}
	if e.clk.Now().Sub(e.lastPulseWall) >= e.stoppedTimeout {
		e.rpm = 0
		e.lastPulseNanos = 0
		e.filter.Reset()
		e.logger.Debugw("encoder stopped", "timeout", e.stoppedTimeout)
	}
}

// Ticks returns the pulses counted so far.
func (e *Encoder) Ticks(ctx context.Context) (int64, error) {
	return atomic.LoadInt64(&e.ticks), nil
}

// RPM returns the current smoothed speed estimate.
func (e *Encoder) RPM(ctx context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rpm, nil
}

// Stats summarizes the recent RPM history.
func (e *Encoder) Stats(ctx context.Context) (encoder.Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := encoder.Stats{Count: len(e.rpmHistory)}
	if s.Count == 0 {
		return s, nil
	}
	s.Min = math.Inf(1)
	s.Max = math.Inf(-1)
	for _, r := range e.rpmHistory {
		s.Min = math.Min(s.Min, r)
		s.Max = math.Max(s.Max, r)
	}
	s.Mean = stat.Mean(e.rpmHistory, nil)
	if s.Count > 1 {
		s.StdDev = stat.StdDev(e.rpmHistory, nil)
	}
	return s, nil
}

// Reset zeroes the tick count and clears the RPM state.
func (e *Encoder) Reset(ctx context.Context) error {
	atomic.StoreInt64(&e.ticks, 0)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rpm = 0
	e.rpmHistory = nil
	e.lastPulseNanos = 0
	e.lastPulseWall = time.Time{}
	e.filter.Reset()
	return nil
}

// Close stops the measurement worker. The tick channel is unsubscribed
// first, while the worker is still draining it: a producer may be blocked
// mid-Tick on this channel, and cancelling the worker before the
// unsubscribe completes would strand that send forever.
func (e *Encoder) Close(ctx context.Context) error {
	e.di.RemoveCallback(e.tickChan)
	e.cancelFunc()
	e.activeBackgroundWorkers.Wait()
	return nil
}
