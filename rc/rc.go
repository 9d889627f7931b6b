// Package rc binds a gamepad to the vehicle: one stick axis steers the
// servo, another drives the motor.
package rc

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/jameskerry651/rc-assemble/encoder"
	"github.com/jameskerry651/rc-assemble/input"
	"github.com/jameskerry651/rc-assemble/motor"
	"github.com/jameskerry651/rc-assemble/servo"
)

// Config describes how stick motion maps to vehicle motion.
type Config struct {
	// SteeringAxis and ThrottleAxis name the controls to listen on.
	// Defaults: AbsoluteX (left stick) steers, AbsoluteRY (right stick)
	// drives.
	SteeringAxis string `json:"steering_axis,omitempty"`
	ThrottleAxis string `json:"throttle_axis,omitempty"`

	// Deadzone is the stick fraction treated as centered. Defaults to 0.05.
	Deadzone float64 `json:"deadzone,omitempty"`

	// MinAngleDeg and MaxAngleDeg are the steering endpoints; the center is
	// halfway between them. Defaults 0 and 180.
	MinAngleDeg *float64 `json:"min_angle_deg,omitempty"`
	MaxAngleDeg *float64 `json:"max_angle_deg,omitempty"`

	// TelemetryIntervalMs is how often to log encoder readings. 0 disables
	// telemetry.
	TelemetryIntervalMs int `json:"telemetry_interval_ms,omitempty"`
}

// Validate ensures all parts of the config are valid and fills defaults.
func (config *Config) Validate(path string) error {
	if config.SteeringAxis == "" {
		config.SteeringAxis = string(input.AbsoluteX)
	}
	if config.ThrottleAxis == "" {
		config.ThrottleAxis = string(input.AbsoluteRY)
	}
	if config.Deadzone == 0 {
		config.Deadzone = 0.05
	}
	if config.Deadzone < 0 || config.Deadzone >= 1 {
		return errors.Errorf("%s: deadzone must be in [0, 1)", path)
	}
	minAngle, maxAngle := config.angleLimits()
	if minAngle >= maxAngle {
		return errors.Errorf("%s: min_angle_deg must be below max_angle_deg", path)
	}
	if config.TelemetryIntervalMs < 0 {
		return errors.Errorf("%s: telemetry_interval_ms cannot be negative", path)
	}
	return nil
}

func (config *Config) angleLimits() (minAngle, maxAngle float64) {
	minAngle, maxAngle = 0, 180
	if config.MinAngleDeg != nil {
		minAngle = *config.MinAngleDeg
	}
	if config.MaxAngleDeg != nil {
		maxAngle = *config.MaxAngleDeg
	}
	return minAngle, maxAngle
}

// New wires the controller to the motor and servo and starts the optional
// telemetry worker. The encoder may be nil. The config must have been
// validated.
func New(
	ctx context.Context,
	controller input.Controller,
	m motor.Motor,
	s servo.Servo,
	e encoder.Encoder,
	cfg Config,
	logger golog.Logger,
) (*Service, error) {
	minAngle, maxAngle := cfg.angleLimits()
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	svc := &Service{
		controller: controller,
		motor:      m,
		servo:      s,
		encoder:    e,
		deadzone:   cfg.Deadzone,
		minAngle:   minAngle,
		maxAngle:   maxAngle,
		lastAngle:  -1,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		logger:     logger,
	}

	steering := input.Control(cfg.SteeringAxis)
	throttle := input.Control(cfg.ThrottleAxis)

	err := controller.RegisterControlCallback(ctx, steering,
		[]input.EventType{input.PositionChangeAbs}, svc.handleSteering)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't register steering callback")
	}
	err = controller.RegisterControlCallback(ctx, throttle,
		[]input.EventType{input.PositionChangeAbs}, svc.handleThrottle)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't register throttle callback")
	}
	// Losing the gamepad must never leave the car driving.
	err = controller.RegisterControlCallback(ctx, throttle,
		[]input.EventType{input.Disconnect}, svc.handleDisconnect)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't register disconnect callback")
	}

	if cfg.TelemetryIntervalMs > 0 && e != nil {
		interval := time.Duration(cfg.TelemetryIntervalMs) * time.Millisecond
		svc.activeBackgroundWorkers.Add(1)
		utils.ManagedGo(func() {
			svc.telemetryLoop(interval)
		}, svc.activeBackgroundWorkers.Done)
	}
	return svc, nil
}

// A Service is a running remote-control binding.
type Service struct {
	controller input.Controller
	motor      motor.Motor
	servo      servo.Servo
	encoder    encoder.Encoder

	deadzone float64
	minAngle float64
	maxAngle float64

	mu        sync.Mutex
	lastAngle int // last integer angle sent, -1 before the first

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
	logger                  golog.Logger
}

// steeringAngle maps a stick value in [-1, 1] to a servo angle. Inside the
// deadzone the wheels center; pushing left of the deadzone swings toward
// maxAngle, right toward minAngle, each renormalized so the angle starts
// moving right at the deadzone edge.
func steeringAngle(value, deadzone, minAngle, centerAngle, maxAngle float64) float64 {
	var angle float64
	switch {
	case value < -deadzone:
		effective := (-value - deadzone) / (1.0 - deadzone)
		angle = centerAngle + effective*(maxAngle-centerAngle)
	case value > deadzone:
		effective := (value - deadzone) / (1.0 - deadzone)
		angle = centerAngle - effective*(centerAngle-minAngle)
	default:
		angle = centerAngle
	}
	return math.Max(minAngle, math.Min(maxAngle, angle))
}

// throttlePower maps a stick value in [-1, 1] to signed motor power. Stick
// up (negative axis values) drives forward.
func throttlePower(value, deadzone float64) float64 {
	if math.Abs(value) < deadzone {
		return 0
	}
	effective := (math.Abs(value) - deadzone) / (1.0 - deadzone)
	if value < 0 {
		return effective
	}
	return -effective
}

func (svc *Service) center() float64 {
	return (svc.minAngle + svc.maxAngle) / 2
}

func (svc *Service) handleSteering(ctx context.Context, ev input.Event) {
	angle := steeringAngle(ev.Value, svc.deadzone, svc.minAngle, svc.center(), svc.maxAngle)
	angleInt := int(math.Round(angle))

	svc.mu.Lock()
	if angleInt == svc.lastAngle {
		svc.mu.Unlock()
		return
	}
	svc.mu.Unlock()

	// lastAngle is only recorded on success, so a failed move is retried the
	// next time the stick reports the same angle.
	if err := svc.servo.Move(ctx, angle); err != nil {
		svc.logger.Errorw("steering failed", "angle", angleInt, "error", err)
		return
	}
	svc.mu.Lock()
	svc.lastAngle = angleInt
	svc.mu.Unlock()
	svc.logger.Debugw("steering", "stick", ev.Value, "angle", angleInt)
}

func (svc *Service) handleThrottle(ctx context.Context, ev input.Event) {
	power := throttlePower(ev.Value, svc.deadzone)
	if err := svc.motor.SetPower(ctx, power); err != nil {
		svc.logger.Errorw("throttle failed", "power", power, "error", err)
		return
	}
	svc.logger.Debugw("throttle", "stick", ev.Value, "power", power)
}

func (svc *Service) handleDisconnect(ctx context.Context, ev input.Event) {
	svc.logger.Warn("gamepad disconnected; stopping")
	if err := svc.stopVehicle(ctx); err != nil {
		svc.logger.Errorw("safety stop failed", "error", err)
	}
}

func (svc *Service) stopVehicle(ctx context.Context) error {
	motorErr := svc.motor.Stop(ctx)
	servoErr := svc.servo.Move(ctx, svc.center())
	if servoErr == nil {
		svc.mu.Lock()
		svc.lastAngle = int(math.Round(svc.center()))
		svc.mu.Unlock()
	}
	return multierr.Combine(motorErr, servoErr)
}

func (svc *Service) telemetryLoop(interval time.Duration) {
	for {
		if !utils.SelectContextOrWait(svc.cancelCtx, interval) {
			return
		}
		rpm, err := svc.encoder.RPM(svc.cancelCtx)
		if err != nil {
			svc.logger.Errorw("telemetry read failed", "error", err)
			continue
		}
		stats, err := svc.encoder.Stats(svc.cancelCtx)
		if err != nil {
			svc.logger.Errorw("telemetry read failed", "error", err)
			continue
		}
		ticks, err := svc.encoder.Ticks(svc.cancelCtx)
		if err != nil {
			svc.logger.Errorw("telemetry read failed", "error", err)
			continue
		}
		svc.logger.Infow("motor status",
			"rpm", rpm,
			"ticks", ticks,
			"mean", stats.Mean,
			"std_dev", stats.StdDev,
			"min", stats.Min,
			"max", stats.Max,
		)
	}
}

// Close stops the vehicle and detaches from the controller.
func (svc *Service) Close(ctx context.Context) error {
	svc.cancelFunc()
	svc.activeBackgroundWorkers.Wait()
	return svc.stopVehicle(ctx)
}
