// Package config reads and validates the rover's JSON configuration file.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/jameskerry651/rc-assemble/board"
	"github.com/jameskerry651/rc-assemble/encoder"
	"github.com/jameskerry651/rc-assemble/input/gamepad"
	"github.com/jameskerry651/rc-assemble/motor"
	"github.com/jameskerry651/rc-assemble/rc"
	"github.com/jameskerry651/rc-assemble/servo"
)

// Board models.
const (
	BoardModelJetson = "jetson"
	BoardModelFake   = "fake"
)

// A Board selects the board implementation and its interrupts.
type Board struct {
	// Model is "jetson" or "fake". Defaults to "jetson".
	Model string `json:"model,omitempty"`

	DigitalInterrupts []board.DigitalInterruptConfig `json:"digital_interrupts,omitempty"`
}

// Validate ensures all parts of the config are valid and fills defaults.
func (conf *Board) Validate(path string) error {
	if conf.Model == "" {
		conf.Model = BoardModelJetson
	}
	if conf.Model != BoardModelJetson && conf.Model != BoardModelFake {
		return errors.Errorf("%s: unknown board model %q", path, conf.Model)
	}
	for idx := range conf.DigitalInterrupts {
		if err := conf.DigitalInterrupts[idx].Validate(path + ".digital_interrupts"); err != nil {
			return err
		}
	}
	return nil
}

// A Config is the full configuration of the vehicle.
type Config struct {
	Board   Board           `json:"board"`
	Motor   motor.Config    `json:"motor"`
	Servo   servo.Config    `json:"servo"`
	Encoder *encoder.Config `json:"encoder,omitempty"`
	Gamepad gamepad.Config  `json:"gamepad"`
	RC      rc.Config       `json:"rc"`
}

// Validate ensures all parts of the config are valid and fills defaults.
func (conf *Config) Validate() error {
	if err := conf.Board.Validate("board"); err != nil {
		return err
	}
	if err := conf.Motor.Validate("motor"); err != nil {
		return err
	}
	if err := conf.Servo.Validate("servo"); err != nil {
		return err
	}
	if conf.Encoder != nil {
		if err := conf.Encoder.Validate("encoder"); err != nil {
			return err
		}
		found := false
		for _, ic := range conf.Board.DigitalInterrupts {
			if ic.Name == conf.Encoder.Interrupt {
				found = true
				break
			}
		}
		if !found {
			return errors.Errorf(
				"encoder: interrupt %q is not declared in board.digital_interrupts",
				conf.Encoder.Interrupt)
		}
	}
	return conf.RC.Validate("rc")
}

// Default returns the configuration matching the documented wiring: motor
// PWM on pin 15, direction on pin 13, servo on pin 33.
func Default() Config {
	return Config{
		Motor: motor.Config{
			PWMPin: "15",
			DirPin: "13",
		},
		Servo: servo.Config{
			Pin: "33",
		},
		Gamepad: gamepad.Config{
			AutoReconnect: true,
		},
	}
}

// Read loads and validates a config file. An empty path yields the default
// configuration.
func Read(path string) (Config, error) {
	conf := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "cannot read config")
		}
		if err := json.Unmarshal(data, &conf); err != nil {
			return Config{}, errors.Wrapf(err, "cannot parse config %q", path)
		}
	}
	if err := conf.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config %q", path)
	}
	return conf, nil
}
