package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rover.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o644), test.ShouldBeNil)
	return path
}

func TestReadDefaults(t *testing.T) {
	conf, err := Read("")
	test.That(t, err, test.ShouldBeNil)

	test.That(t, conf.Board.Model, test.ShouldEqual, BoardModelJetson)
	test.That(t, conf.Motor.PWMPin, test.ShouldEqual, "15")
	test.That(t, conf.Motor.DirPin, test.ShouldEqual, "13")
	test.That(t, conf.Servo.Pin, test.ShouldEqual, "33")
	test.That(t, conf.Gamepad.AutoReconnect, test.ShouldBeTrue)
	test.That(t, conf.Encoder, test.ShouldBeNil)

	// Section defaults got filled by validation.
	test.That(t, conf.Motor.PWMFreqHz, test.ShouldEqual, 1000)
	test.That(t, conf.Servo.FrequencyHz, test.ShouldEqual, 50)
	test.That(t, conf.RC.Deadzone, test.ShouldEqual, 0.05)
}

func TestReadFile(t *testing.T) {
	path := writeConfig(t, `{
		"board": {
			"model": "fake",
			"digital_interrupts": [{"name": "enc", "pin": "16"}]
		},
		"motor": {"pwm_pin": "15", "dir_pin": "13", "ramp_rate": 2.0},
		"servo": {"pin": "33", "min_angle_deg": 30, "max_angle_deg": 150},
		"encoder": {"interrupt": "enc", "pulses_per_rev": 20},
		"rc": {"deadzone": 0.1}
	}`)

	conf, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Board.Model, test.ShouldEqual, BoardModelFake)
	test.That(t, conf.Motor.RampRate, test.ShouldEqual, 2.0)
	test.That(t, *conf.Servo.MinDeg, test.ShouldEqual, 30)
	test.That(t, conf.Encoder, test.ShouldNotBeNil)
	test.That(t, conf.Encoder.PulsesPerRev, test.ShouldEqual, 20)
	test.That(t, conf.RC.Deadzone, test.ShouldEqual, 0.1)
}

func TestReadRejectsBadConfigs(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	path := writeConfig(t, `{not json`)
	_, err = Read(path)
	test.That(t, err, test.ShouldNotBeNil)

	path = writeConfig(t, `{"board": {"model": "raspberry"}}`)
	_, err = Read(path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown board model")

	path = writeConfig(t, `{"motor": {"pwm_pin": "15", "dir_pin": ""}}`)
	_, err = Read(path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "dir_pin is required")

	// An encoder must point at a declared interrupt.
	path = writeConfig(t, `{"encoder": {"interrupt": "enc"}}`)
	_, err = Read(path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not declared")
}
