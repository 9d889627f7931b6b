package rc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/jameskerry651/rc-assemble/input"
)

func TestSteeringAngle(t *testing.T) {
	const dz = 0.05

	// Inside the deadzone the wheels center.
	test.That(t, steeringAngle(0, dz, 0, 90, 180), test.ShouldEqual, 90)
	test.That(t, steeringAngle(0.04, dz, 0, 90, 180), test.ShouldEqual, 90)
	test.That(t, steeringAngle(-0.04, dz, 0, 90, 180), test.ShouldEqual, 90)

	// Full left is full lock toward the max angle, full right toward min.
	test.That(t, steeringAngle(-1, dz, 0, 90, 180), test.ShouldAlmostEqual, 180)
	test.That(t, steeringAngle(1, dz, 0, 90, 180), test.ShouldAlmostEqual, 0)

	// The angle starts moving right at the deadzone edge, not with a jump.
	test.That(t, steeringAngle(dz+1e-9, dz, 0, 90, 180), test.ShouldAlmostEqual, 90, 1e-3)
	test.That(t, steeringAngle(-dz-1e-9, dz, 0, 90, 180), test.ShouldAlmostEqual, 90, 1e-3)

	// Halfway through the usable range is halfway through the sweep.
	mid := dz + (1.0-dz)/2
	test.That(t, steeringAngle(-mid, dz, 0, 90, 180), test.ShouldAlmostEqual, 135)
	test.That(t, steeringAngle(mid, dz, 0, 90, 180), test.ShouldAlmostEqual, 45)

	// Results clamp to asymmetric limits too.
	test.That(t, steeringAngle(-1, dz, 30, 90, 150), test.ShouldAlmostEqual, 150)
	test.That(t, steeringAngle(1, dz, 30, 90, 150), test.ShouldAlmostEqual, 30)
}

func TestThrottlePower(t *testing.T) {
	const dz = 0.05

	test.That(t, throttlePower(0, dz), test.ShouldEqual, 0)
	test.That(t, throttlePower(0.04, dz), test.ShouldEqual, 0)

	// Stick up (negative) drives forward.
	test.That(t, throttlePower(-1, dz), test.ShouldAlmostEqual, 1)
	test.That(t, throttlePower(1, dz), test.ShouldAlmostEqual, -1)
	test.That(t, throttlePower(-dz, dz), test.ShouldAlmostEqual, 0)
}

// fakeController delivers injected events to registered callbacks.
type fakeController struct {
	mu        sync.Mutex
	callbacks map[input.Control]map[input.EventType]input.ControlFunction
}

func newFakeController() *fakeController {
	return &fakeController{callbacks: map[input.Control]map[input.EventType]input.ControlFunction{}}
}

func (c *fakeController) Controls(ctx context.Context) ([]input.Control, error) {
	return []input.Control{input.AbsoluteX, input.AbsoluteRY}, nil
}

func (c *fakeController) Events(ctx context.Context) (map[input.Control]input.Event, error) {
	return map[input.Control]input.Event{}, nil
}

func (c *fakeController) RegisterControlCallback(
	ctx context.Context,
	control input.Control,
	triggers []input.EventType,
	ctrlFunc input.ControlFunction,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.callbacks[control] == nil {
		c.callbacks[control] = map[input.EventType]input.ControlFunction{}
	}
	for _, trigger := range triggers {
		c.callbacks[control][trigger] = ctrlFunc
	}
	return nil
}

func (c *fakeController) Close(ctx context.Context) error { return nil }

func (c *fakeController) inject(ctx context.Context, ev input.Event) {
	c.mu.Lock()
	ctrlFunc := c.callbacks[ev.Control][ev.Type]
	c.mu.Unlock()
	if ctrlFunc != nil {
		ctrlFunc(ctx, ev)
	}
}

// fakeMotor records the last power set.
type fakeMotor struct {
	mu      sync.Mutex
	power   float64
	stopped bool
}

func (m *fakeMotor) SetPower(ctx context.Context, powerPct float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.power = powerPct
	m.stopped = false
	return nil
}

func (m *fakeMotor) Power(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.power, nil
}

func (m *fakeMotor) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.power = 0
	m.stopped = true
	return nil
}

func (m *fakeMotor) IsMoving(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.power != 0, nil
}

func (m *fakeMotor) Close(ctx context.Context) error { return m.Stop(ctx) }

// fakeServo records every commanded angle and can fail the next move.
type fakeServo struct {
	mu       sync.Mutex
	failNext error
	angles   []float64
}

func (s *fakeServo) Move(ctx context.Context, angleDeg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.angles = append(s.angles, angleDeg)
	return nil
}

func (s *fakeServo) Position(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.angles) == 0 {
		return 0, nil
	}
	return s.angles[len(s.angles)-1], nil
}

func (s *fakeServo) Stop(ctx context.Context) error  { return nil }
func (s *fakeServo) Close(ctx context.Context) error { return nil }

func makeService(t *testing.T, cfg Config) (*fakeController, *fakeMotor, *fakeServo, *Service) {
	t.Helper()
	ctx := context.Background()
	controller := newFakeController()
	m := &fakeMotor{}
	s := &fakeServo{}
	test.That(t, cfg.Validate("rc"), test.ShouldBeNil)
	svc, err := New(ctx, controller, m, s, nil, cfg, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return controller, m, s, svc
}

func TestServiceDrivesMotorAndServo(t *testing.T) {
	ctx := context.Background()
	controller, m, s, svc := makeService(t, Config{})
	defer func() {
		test.That(t, svc.Close(ctx), test.ShouldBeNil)
	}()

	controller.inject(ctx, input.Event{
		Time: time.Now(), Type: input.PositionChangeAbs, Control: input.AbsoluteX, Value: -1,
	})
	pos, err := s.Position(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldAlmostEqual, 180)

	controller.inject(ctx, input.Event{
		Time: time.Now(), Type: input.PositionChangeAbs, Control: input.AbsoluteRY, Value: -1,
	})
	power, err := m.Power(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, power, test.ShouldAlmostEqual, 1)

	// Stick back to center: motor off, wheels straight.
	controller.inject(ctx, input.Event{
		Time: time.Now(), Type: input.PositionChangeAbs, Control: input.AbsoluteRY, Value: 0,
	})
	power, err = m.Power(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, power, test.ShouldEqual, 0)

	controller.inject(ctx, input.Event{
		Time: time.Now(), Type: input.PositionChangeAbs, Control: input.AbsoluteX, Value: 0,
	})
	pos, err = s.Position(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldAlmostEqual, 90)
}

func TestServiceSkipsRepeatedAngles(t *testing.T) {
	ctx := context.Background()
	controller, _, s, svc := makeService(t, Config{})
	defer func() {
		test.That(t, svc.Close(ctx), test.ShouldBeNil)
	}()

	// Two stick values rounding to the same integer angle produce one move.
	controller.inject(ctx, input.Event{
		Type: input.PositionChangeAbs, Control: input.AbsoluteX, Value: -1,
	})
	controller.inject(ctx, input.Event{
		Type: input.PositionChangeAbs, Control: input.AbsoluteX, Value: -0.9999,
	})

	s.mu.Lock()
	moves := len(s.angles)
	s.mu.Unlock()
	test.That(t, moves, test.ShouldEqual, 1)
}

func TestServiceRetriesAfterSteeringError(t *testing.T) {
	ctx := context.Background()
	controller, _, s, svc := makeService(t, Config{})
	defer func() {
		test.That(t, svc.Close(ctx), test.ShouldBeNil)
	}()

	s.mu.Lock()
	s.failNext = errors.New("servo fault")
	s.mu.Unlock()

	// The failed move must not be recorded as the held angle; the same stick
	// position has to reach the servo on the next event.
	controller.inject(ctx, input.Event{
		Type: input.PositionChangeAbs, Control: input.AbsoluteX, Value: -1,
	})
	s.mu.Lock()
	moves := len(s.angles)
	s.mu.Unlock()
	test.That(t, moves, test.ShouldEqual, 0)

	controller.inject(ctx, input.Event{
		Type: input.PositionChangeAbs, Control: input.AbsoluteX, Value: -1,
	})
	pos, err := s.Position(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldAlmostEqual, 180)
}

func TestServiceStopsOnDisconnect(t *testing.T) {
	ctx := context.Background()
	controller, m, s, svc := makeService(t, Config{})
	defer func() {
		test.That(t, svc.Close(ctx), test.ShouldBeNil)
	}()

	controller.inject(ctx, input.Event{
		Type: input.PositionChangeAbs, Control: input.AbsoluteRY, Value: -0.8,
	})
	power, err := m.Power(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, power, test.ShouldBeGreaterThan, 0)

	controller.inject(ctx, input.Event{Type: input.Disconnect, Control: input.AbsoluteRY})

	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	test.That(t, stopped, test.ShouldBeTrue)

	pos, err := s.Position(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldAlmostEqual, 90)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Deadzone: 1.5}
	test.That(t, cfg.Validate("rc"), test.ShouldNotBeNil)

	bad := 200.0
	cfg = Config{MinAngleDeg: &bad}
	test.That(t, cfg.Validate("rc"), test.ShouldNotBeNil)

	cfg = Config{}
	test.That(t, cfg.Validate("rc"), test.ShouldBeNil)
	test.That(t, cfg.SteeringAxis, test.ShouldEqual, string(input.AbsoluteX))
	test.That(t, cfg.ThrottleAxis, test.ShouldEqual, string(input.AbsoluteRY))
	test.That(t, cfg.Deadzone, test.ShouldEqual, 0.05)
}
