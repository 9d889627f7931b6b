// Package gpio implements a pin based servo.
package gpio

import (
	"context"
	"math"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/jameskerry651/rc-assemble/board"
	"github.com/jameskerry651/rc-assemble/servo"
)

// NewServo constructs a servo on the given board from the config, moving it
// to its starting position. The config must have been validated.
func NewServo(ctx context.Context, b board.Board, sc servo.Config, logger golog.Logger) (servo.Servo, error) {
	pin, err := b.GPIOPinByName(sc.Pin)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get servo pin")
	}
	if err := pin.SetPWMFreq(ctx, sc.FrequencyHz); err != nil {
		return nil, errors.Wrap(err, "error setting servo pin frequency")
	}

	minDeg, maxDeg := sc.Limits()
	startPos := 90.0
	if sc.StartPos != nil {
		startPos = *sc.StartPos
	}

	s := &servoGPIO{
		pin:       pin,
		min:       minDeg,
		max:       maxDeg,
		frequency: sc.FrequencyHz,
		minUs:     sc.MinWidthUs,
		maxUs:     sc.MaxWidthUs,
		logger:    logger,
	}
	if err := s.Move(ctx, startPos); err != nil {
		return nil, errors.Wrap(err, "couldn't move servo to start position")
	}
	return s, nil
}

type servoGPIO struct {
	pin       board.GPIOPin
	min       float64
	max       float64
	frequency uint
	minUs     uint
	maxUs     uint

	mu     sync.Mutex
	logger golog.Logger
}

var _ servo.Servo = (*servoGPIO)(nil)

// mapDegToDutyCyclePct converts an angle to the duty cycle producing the
// matching pulse width. The pulse width band always spans 0-180 degrees,
// regardless of any angle limits.
func mapDegToDutyCyclePct(minUs, maxUs uint, deg float64, frequency uint) float64 {
	periodUs := 1e6 / float64(frequency)
	widthUs := float64(minUs) + (float64(maxUs)-float64(minUs))*deg/180.0
	return widthUs / periodUs
}

// mapDutyCyclePctToDeg is the inverse of mapDegToDutyCyclePct, clamped to the
// pulse width band.
func mapDutyCyclePctToDeg(minUs, maxUs uint, pct float64, frequency uint) float64 {
	periodUs := 1e6 / float64(frequency)
	widthUs := pct * periodUs
	widthUs = math.Max(widthUs, float64(minUs))
	widthUs = math.Min(widthUs, float64(maxUs))
	return (widthUs - float64(minUs)) / (float64(maxUs) - float64(minUs)) * 180.0
}

// Move moves the servo to the given angle, clamped to the configured limits.
func (s *servoGPIO) Move(ctx context.Context, angleDeg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	angleDeg = math.Max(angleDeg, s.min)
	angleDeg = math.Min(angleDeg, s.max)
	pct := mapDegToDutyCyclePct(s.minUs, s.maxUs, angleDeg, s.frequency)
	if err := s.pin.SetPWM(ctx, pct); err != nil {
		return errors.Wrap(err, "couldn't move the servo")
	}
	return nil
}

// Position derives the held angle back from the pin's duty cycle.
func (s *servoGPIO) Position(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pct, err := s.pin.PWM(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "couldn't get servo pin duty cycle")
	}
	return mapDutyCyclePctToDeg(s.minUs, s.maxUs, pct, s.frequency), nil
}

// Stop cuts the control signal, releasing the servo.
func (s *servoGPIO) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pin.SetPWM(ctx, 0); err != nil {
		return errors.Wrap(err, "couldn't stop servo")
	}
	s.logger.Debug("servo released")
	return nil
}

// Close stops the servo.
func (s *servoGPIO) Close(ctx context.Context) error {
	return s.Stop(ctx)
}
