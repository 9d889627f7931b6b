// Package servo defines the steering servo of the vehicle.
package servo

import (
	"context"

	"github.com/pkg/errors"
)

// A Servo holds a commanded angle. Implementations live in subpackages.
type Servo interface {
	// Move moves the servo to the given angle in degrees.
	Move(ctx context.Context, angleDeg float64) error

	// Position returns the angle the servo currently holds.
	Position(ctx context.Context) (float64, error)

	// Stop releases the servo by cutting the control signal.
	Stop(ctx context.Context) error

	// Close stops the servo and releases its pin.
	Close(ctx context.Context) error
}

const (
	defaultMinDeg float64 = 0.0
	defaultMaxDeg float64 = 180.0
	// Absolute limits for the control pulse width. Hobby servos expect
	// 500-2500us; anything outside can hit the mechanical stop.
	minWidthUs uint = 500
	maxWidthUs uint = 2500
)

// Config describes a servo attached to a board pin.
type Config struct {
	// Pin is the physical pin number carrying the control signal.
	Pin string `json:"pin"`

	// FrequencyHz is the control signal frequency. Defaults to 50.
	FrequencyHz uint `json:"frequency_hz,omitempty"`

	// MinDeg and MaxDeg limit the commanded angle. They do not affect the
	// pulse width calculation, which always spans MinWidthUs..MaxWidthUs
	// over 0..180 degrees.
	MinDeg *float64 `json:"min_angle_deg,omitempty"`
	MaxDeg *float64 `json:"max_angle_deg,omitempty"`

	// StartPos is the angle taken on startup. Defaults to 90 (centered).
	StartPos *float64 `json:"starting_position_deg,omitempty"`

	// MinWidthUs and MaxWidthUs override the pulse width band.
	MinWidthUs uint `json:"min_width_us,omitempty"`
	MaxWidthUs uint `json:"max_width_us,omitempty"`
}

// Validate ensures all parts of the config are valid and fills defaults.
func (config *Config) Validate(path string) error {
	if config.Pin == "" {
		return errors.Errorf("%s: pin is required", path)
	}
	if config.FrequencyHz == 0 {
		config.FrequencyHz = 50
	}
	if config.FrequencyHz > 450 {
		return errors.Errorf("%s: frequency_hz must not be above 450", path)
	}
	if config.MinWidthUs == 0 {
		config.MinWidthUs = minWidthUs
	}
	if config.MaxWidthUs == 0 {
		config.MaxWidthUs = maxWidthUs
	}
	if config.MinWidthUs < minWidthUs {
		return errors.Errorf("%s: min_width_us cannot be lower than %d", path, minWidthUs)
	}
	if config.MaxWidthUs > maxWidthUs {
		return errors.Errorf("%s: max_width_us cannot be higher than %d", path, maxWidthUs)
	}
	minDeg, maxDeg := defaultMinDeg, defaultMaxDeg
	if config.MinDeg != nil {
		minDeg = *config.MinDeg
	}
	if config.MaxDeg != nil {
		maxDeg = *config.MaxDeg
	}
	if minDeg < 0 || maxDeg > 180 || minDeg >= maxDeg {
		return errors.Errorf("%s: angle limits must satisfy 0 <= min < max <= 180", path)
	}
	if config.StartPos != nil && (*config.StartPos < minDeg || *config.StartPos > maxDeg) {
		return errors.Errorf("%s: starting_position_deg should be between %.1f and %.1f", path, minDeg, maxDeg)
	}
	return nil
}

// Limits returns the configured angle limits with defaults applied.
func (config *Config) Limits() (minDeg, maxDeg float64) {
	minDeg, maxDeg = defaultMinDeg, defaultMaxDeg
	if config.MinDeg != nil {
		minDeg = *config.MinDeg
	}
	if config.MaxDeg != nil {
		maxDeg = *config.MaxDeg
	}
	return minDeg, maxDeg
}
