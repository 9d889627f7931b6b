// Package motor defines the throttle motor of the vehicle.
package motor

import (
	"context"

	"github.com/pkg/errors"
)

// A Motor drives the rear wheels. Implementations live in subpackages.
type Motor interface {
	// SetPower sets the motor power in [-1, 1]; the sign selects the
	// direction and 0 stops the motor. Depending on configuration the motor
	// may ramp toward the requested power in the background.
	SetPower(ctx context.Context, powerPct float64) error

	// Power returns the power most recently applied to the motor, signed.
	Power(ctx context.Context) (float64, error)

	// Stop cuts power immediately, bypassing any ramp.
	Stop(ctx context.Context) error

	// IsMoving reports whether the motor is currently powered.
	IsMoving(ctx context.Context) (bool, error)

	// Close stops the motor and releases its pins.
	Close(ctx context.Context) error
}

// Config describes a motor attached to board pins.
type Config struct {
	// PWMPin and DirPin are physical pin numbers on the board.
	PWMPin string `json:"pwm_pin"`
	DirPin string `json:"dir_pin"`

	// PWMFreqHz is the throttle PWM frequency. Defaults to 1000.
	PWMFreqHz uint `json:"pwm_freq_hz,omitempty"`

	// MinPowerPct and MaxPowerPct clamp the magnitude of any non-zero power.
	// MaxPowerPct defaults to 1.0.
	MinPowerPct float64 `json:"min_power_pct,omitempty"`
	MaxPowerPct float64 `json:"max_power_pct,omitempty"`

	// RampRate is the maximum power change per second, in power fraction
	// (e.g. 0.5 takes two seconds from stop to full). 0 disables ramping.
	RampRate float64 `json:"ramp_rate,omitempty"`
}

// Validate ensures all parts of the config are valid and fills defaults.
func (config *Config) Validate(path string) error {
	if config.PWMPin == "" {
		return errors.Errorf("%s: pwm_pin is required", path)
	}
	if config.DirPin == "" {
		return errors.Errorf("%s: dir_pin is required", path)
	}
	if config.PWMFreqHz == 0 {
		config.PWMFreqHz = 1000
	}
	if config.MaxPowerPct == 0 {
		config.MaxPowerPct = 1.0
	}
	if config.MaxPowerPct < 0.06 || config.MaxPowerPct > 1.0 {
		return errors.Errorf("%s: max_power_pct must be between 0.06 and 1.0", path)
	}
	if config.MinPowerPct < 0 || config.MinPowerPct > config.MaxPowerPct {
		return errors.Errorf("%s: min_power_pct must be between 0 and max_power_pct", path)
	}
	if config.RampRate < 0 {
		return errors.Errorf("%s: ramp_rate cannot be negative", path)
	}
	return nil
}
