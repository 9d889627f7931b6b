// Package board abstracts the GPIO and PWM hardware of a single-board computer.
//
// A Board hands out GPIOPins for digital and PWM output and DigitalInterrupts
// for edge-counting inputs. Implementations live in subpackages (jetson for
// real hardware, fake for tests).
package board

import (
	"context"

	"github.com/pkg/errors"
)

// A Board is a collection of GPIO pins and digital interrupts on one device.
type Board interface {
	// GPIOPinByName returns the pin with the given name. For boards using
	// physical header numbering the name is the pin number as a string.
	GPIOPinByName(name string) (GPIOPin, error)

	// DigitalInterruptByName returns a configured digital interrupt.
	DigitalInterruptByName(name string) (DigitalInterrupt, error)

	// Close shuts down the board and releases all claimed pins.
	Close(ctx context.Context) error
}

// A GPIOPin is a single pin usable for digital or PWM output.
type GPIOPin interface {
	// Set sets the pin high or low, stopping any PWM signal on it.
	Set(ctx context.Context, high bool) error

	// Get reads the current digital state of the pin.
	Get(ctx context.Context) (bool, error)

	// PWM returns the duty cycle currently set on the pin, in [0, 1].
	PWM(ctx context.Context) (float64, error)

	// SetPWM starts a PWM signal on the pin with the given duty cycle in [0, 1].
	SetPWM(ctx context.Context, dutyCyclePct float64) error

	// PWMFreq returns the PWM frequency of the pin in Hz.
	PWMFreq(ctx context.Context) (uint, error)

	// SetPWMFreq sets the PWM frequency of the pin in Hz.
	SetPWMFreq(ctx context.Context, freqHz uint) error
}

// A Tick is one edge observed on a digital interrupt pin.
type Tick struct {
	High           bool
	TimestampNanos uint64
}

// A DigitalInterrupt counts edges on an input pin and can stream them to
// subscribers.
type DigitalInterrupt interface {
	// Value returns the number of rising edges seen since creation or the
	// last reset.
	Value(ctx context.Context) (int64, error)

	// AddCallback subscribes a channel to future ticks. The channel receives
	// every tick; slow consumers block the producer.
	AddCallback(c chan Tick)

	// RemoveCallback unsubscribes a previously added channel.
	RemoveCallback(c chan Tick)
}

// DigitalInterruptConfig describes one digital interrupt on a board.
type DigitalInterruptConfig struct {
	Name string `json:"name"`
	Pin  string `json:"pin"`
}

// Validate ensures the interrupt config is complete.
func (config *DigitalInterruptConfig) Validate(path string) error {
	if config.Name == "" {
		return errors.Errorf("%s: name is required", path)
	}
	if config.Pin == "" {
		return errors.Errorf("%s: pin is required", path)
	}
	return nil
}
