// Package encoder defines speed measurement for the drive motor.
package encoder

import (
	"context"

	"github.com/pkg/errors"
)

// An Encoder measures motor speed from pulses on an interrupt pin.
type Encoder interface {
	// Ticks returns the number of pulses counted since start or last Reset.
	Ticks(ctx context.Context) (int64, error)

	// RPM returns the current smoothed speed estimate in revolutions per
	// minute. It reads 0 when no pulses have arrived for the configured
	// stopped timeout.
	RPM(ctx context.Context) (float64, error)

	// Stats summarizes the recent RPM history.
	Stats(ctx context.Context) (Stats, error)

	// Reset zeroes the tick count and clears the RPM history.
	Reset(ctx context.Context) error

	// Close stops the measurement worker.
	Close(ctx context.Context) error
}

// Stats summarizes a window of RPM samples.
type Stats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Count  int     `json:"count"`
}

// Config describes an encoder attached to a board interrupt.
type Config struct {
	// Interrupt is the name of the digital interrupt carrying the pulses.
	Interrupt string `json:"interrupt"`

	// PulsesPerRev is the number of pulses per motor revolution.
	// Defaults to 1000.
	PulsesPerRev float64 `json:"pulses_per_rev,omitempty"`

	// MinRPM and MaxRPM bound the measurable speed; pulse intervals outside
	// the implied band are treated as noise and dropped. MaxRPM defaults to
	// 6000.
	MinRPM float64 `json:"min_rpm,omitempty"`
	MaxRPM float64 `json:"max_rpm,omitempty"`

	// StoppedTimeoutMs is how long without pulses before the motor is
	// considered stopped. Defaults to 2000.
	StoppedTimeoutMs int `json:"stopped_timeout_ms,omitempty"`
}

// Validate ensures all parts of the config are valid and fills defaults.
func (config *Config) Validate(path string) error {
	if config.Interrupt == "" {
		return errors.Errorf("%s: interrupt is required", path)
	}
	if config.PulsesPerRev == 0 {
		config.PulsesPerRev = 1000
	}
	if config.PulsesPerRev < 0 {
		return errors.Errorf("%s: pulses_per_rev cannot be negative", path)
	}
	if config.MaxRPM == 0 {
		config.MaxRPM = 6000
	}
	if config.MinRPM < 0 || config.MinRPM >= config.MaxRPM {
		return errors.Errorf("%s: rpm range must satisfy 0 <= min < max", path)
	}
	if config.StoppedTimeoutMs == 0 {
		config.StoppedTimeoutMs = 2000
	}
	if config.StoppedTimeoutMs < 0 {
		return errors.Errorf("%s: stopped_timeout_ms cannot be negative", path)
	}
	return nil
}
