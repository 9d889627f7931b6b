package gpio

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	fakeboard "github.com/jameskerry651/rc-assemble/board/fake"
	"github.com/jameskerry651/rc-assemble/servo"
)

func TestMapDegToDutyCyclePct(t *testing.T) {
	// Standard hobby servo at 50Hz: 500us = 2.5%, 1500us = 7.5%, 2500us = 12.5%.
	test.That(t, mapDegToDutyCyclePct(500, 2500, 0, 50), test.ShouldAlmostEqual, 0.025)
	test.That(t, mapDegToDutyCyclePct(500, 2500, 90, 50), test.ShouldAlmostEqual, 0.075)
	test.That(t, mapDegToDutyCyclePct(500, 2500, 180, 50), test.ShouldAlmostEqual, 0.125)

	for _, deg := range []float64{0, 45, 90, 135, 180} {
		pct := mapDegToDutyCyclePct(500, 2500, deg, 50)
		test.That(t, mapDutyCyclePctToDeg(500, 2500, pct, 50), test.ShouldAlmostEqual, deg)
	}
}

func TestServoMoveAndPosition(t *testing.T) {
	ctx := context.Background()
	b := fakeboard.NewBoard()

	sc := servo.Config{Pin: "33"}
	test.That(t, sc.Validate("servo"), test.ShouldBeNil)

	s, err := NewServo(ctx, b, sc, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	// Starts centered.
	pos, err := s.Position(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldAlmostEqual, 90)

	freq, err := b.GPIOPin("33").PWMFreq(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, freq, test.ShouldEqual, 50)

	test.That(t, s.Move(ctx, 45), test.ShouldBeNil)
	pos, err = s.Position(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldAlmostEqual, 45)

	// Out-of-range angles clamp to the limits.
	test.That(t, s.Move(ctx, 270), test.ShouldBeNil)
	pos, err = s.Position(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldAlmostEqual, 180)

	test.That(t, s.Move(ctx, -15), test.ShouldBeNil)
	pos, err = s.Position(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldAlmostEqual, 0)

	test.That(t, s.Stop(ctx), test.ShouldBeNil)
	duty, err := b.GPIOPin("33").PWM(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, duty, test.ShouldEqual, 0)
}

func TestServoAngleLimits(t *testing.T) {
	ctx := context.Background()
	b := fakeboard.NewBoard()

	minDeg, maxDeg, start := 30.0, 150.0, 90.0
	sc := servo.Config{Pin: "33", MinDeg: &minDeg, MaxDeg: &maxDeg, StartPos: &start}
	test.That(t, sc.Validate("servo"), test.ShouldBeNil)

	s, err := NewServo(ctx, b, sc, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, s.Move(ctx, 0), test.ShouldBeNil)
	pos, err := s.Position(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldAlmostEqual, 30)
}

func TestServoConfigValidate(t *testing.T) {
	sc := servo.Config{}
	test.That(t, sc.Validate("servo"), test.ShouldNotBeNil)

	sc = servo.Config{Pin: "33", FrequencyHz: 1000}
	test.That(t, sc.Validate("servo"), test.ShouldNotBeNil)

	sc = servo.Config{Pin: "33", MinWidthUs: 100}
	test.That(t, sc.Validate("servo"), test.ShouldNotBeNil)

	bad := 200.0
	sc = servo.Config{Pin: "33", StartPos: &bad}
	test.That(t, sc.Validate("servo"), test.ShouldNotBeNil)

	sc = servo.Config{Pin: "33"}
	test.That(t, sc.Validate("servo"), test.ShouldBeNil)
	test.That(t, sc.FrequencyHz, test.ShouldEqual, 50)
	test.That(t, sc.MinWidthUs, test.ShouldEqual, uint(500))
	test.That(t, sc.MaxWidthUs, test.ShouldEqual, uint(2500))
}
