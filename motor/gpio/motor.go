// Package gpio implements a motor driven by a PWM throttle pin and a
// direction pin, the interface exposed by common brushless motor drivers.
package gpio

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/jameskerry651/rc-assemble/board"
	"github.com/jameskerry651/rc-assemble/motor"
)

// rampInterval is how often the ramp worker steps the applied power toward
// the target.
const rampInterval = 20 * time.Millisecond

// NewMotor constructs a motor on the given board from the config. The config
// must have been validated.
func NewMotor(b board.Board, mc motor.Config, logger golog.Logger) (motor.Motor, error) {
	pwmPin, err := b.GPIOPinByName(mc.PWMPin)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get motor PWM pin")
	}
	dirPin, err := b.GPIOPinByName(mc.DirPin)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get motor direction pin")
	}

	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	m := &Motor{
		pwmPin:      pwmPin,
		dirPin:      dirPin,
		pwmFreq:     mc.PWMFreqHz,
		minPowerPct: mc.MinPowerPct,
		maxPowerPct: mc.MaxPowerPct,
		rampRate:    mc.RampRate,
		cancelCtx:   cancelCtx,
		cancelFunc:  cancelFunc,
		logger:      logger,
	}
	return m, nil
}

// A Motor is a GPIO based motor: one PWM pin for throttle duty and one
// digital pin for direction.
type Motor struct {
	pwmPin board.GPIOPin
	dirPin board.GPIOPin

	pwmFreq     uint
	minPowerPct float64
	maxPowerPct float64
	rampRate    float64

	mu         sync.Mutex
	appliedPct float64 // power currently on the pins, signed
	targetPct  float64 // power the ramp is heading toward, signed
	rampingUp  bool    // a ramp worker is running

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
	logger                  golog.Logger
}

var _ motor.Motor = (*Motor)(nil)

// SetPower sets the motor power in [-1, 1]. With a ramp rate configured the
// call returns immediately and a background worker walks the applied power to
// the target; otherwise the power is applied before returning.
func (m *Motor) SetPower(ctx context.Context, powerPct float64) error {
	powerPct = math.Max(math.Min(powerPct, 1), -1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.targetPct = powerPct

	if m.rampRate == 0 {
		return m.applyPower(ctx, powerPct)
	}
	m.startRampLocked()
	return nil
}

// startRampLocked assumes the mutex is held.
func (m *Motor) startRampLocked() {
	if m.rampingUp {
		return
	}
	m.rampingUp = true
	m.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		m.rampLoop(m.cancelCtx)
	}, m.activeBackgroundWorkers.Done)
}

func (m *Motor) rampLoop(ctx context.Context) {
	step := m.rampRate * rampInterval.Seconds()
	for {
		if !utils.SelectContextOrWait(ctx, rampInterval) {
			return
		}

		m.mu.Lock()
		applied, target := m.appliedPct, m.targetPct
		if applied == target {
			m.rampingUp = false
			m.mu.Unlock()
			return
		}

		next := target
		if math.Abs(target-applied) > step {
			if target > applied {
				next = applied + step
			} else {
				next = applied - step
			}
		}
		if err := m.applyPower(ctx, next); err != nil {
			m.logger.Errorw("motor ramp step failed", "error", err)
		}
		m.mu.Unlock()
	}
}

// applyPower drives the pins. It assumes the mutex is held. A sign flip while
// the motor is running passes through zero first so the driver never sees the
// direction pin toggle under load.
func (m *Motor) applyPower(ctx context.Context, powerPct float64) error {
	if math.Abs(powerPct) <= 0.001 {
		if err := m.pwmPin.SetPWM(ctx, 0); err != nil {
			return err
		}
		m.appliedPct = 0
		return nil
	}

	forward := powerPct > 0
	if m.appliedPct != 0 && (m.appliedPct > 0) != forward {
		if err := m.pwmPin.SetPWM(ctx, 0); err != nil {
			return err
		}
		m.appliedPct = 0
	}

	if err := m.dirPin.Set(ctx, forward); err != nil {
		return err
	}

	magnitude := math.Abs(powerPct)
	magnitude = math.Min(magnitude, m.maxPowerPct)
	magnitude = math.Max(magnitude, m.minPowerPct)

	if err := m.pwmPin.SetPWMFreq(ctx, m.pwmFreq); err != nil {
		return err
	}
	if err := m.pwmPin.SetPWM(ctx, magnitude); err != nil {
		return err
	}
	if forward {
		m.appliedPct = magnitude
	} else {
		m.appliedPct = -magnitude
	}
	return nil
}

// Power returns the signed power currently applied to the pins.
func (m *Motor) Power(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appliedPct, nil
}

// Stop cuts power immediately, bypassing any ramp in progress.
func (m *Motor) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targetPct = 0
	return m.applyPower(ctx, 0)
}

// IsMoving reports whether any power is applied.
func (m *Motor) IsMoving(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appliedPct != 0, nil
}

// Close stops the motor and its ramp worker.
func (m *Motor) Close(ctx context.Context) error {
	err := m.Stop(ctx)
	m.cancelFunc()
	m.activeBackgroundWorkers.Wait()
	return err
}
