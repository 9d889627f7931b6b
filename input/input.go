// Package input models human input devices, reduced to what a gamepad
// provides: absolute axes and buttons.
package input

import (
	"context"
	"time"
)

// A Controller is a logical input device, e.g. one gamepad.
type Controller interface {
	// Controls returns the controls the device provides.
	Controls(ctx context.Context) ([]Control, error)

	// Events returns the most recent event per control, i.e. the current
	// state of the device.
	Events(ctx context.Context) (map[Control]Event, error)

	// RegisterControlCallback registers a callback that fires on the given
	// event types for the given control. Passing a nil function removes the
	// registration.
	RegisterControlCallback(ctx context.Context, control Control, triggers []EventType, ctrlFunc ControlFunction) error

	// Close stops the device's read loop.
	Close(ctx context.Context) error
}

// ControlFunction is a callback passed to RegisterControlCallback. It runs on
// the controller's event goroutine and must not block.
type ControlFunction func(ctx context.Context, ev Event)

// EventType classifies an input event.
type EventType string

// Event types emitted by controllers.
const (
	// Connect is sent once per control at device (re)connection.
	Connect EventType = "Connect"
	// Disconnect is sent once per control when the device goes away.
	Disconnect EventType = "Disconnect"
	// ButtonPress and ButtonRelease are the two halves of a key event.
	ButtonPress   EventType = "ButtonPress"
	ButtonRelease EventType = "ButtonRelease"
	// PositionChangeAbs reports an absolute axis position in Value.
	PositionChangeAbs EventType = "PositionChangeAbs"
)

// Control identifies one axis or button of a controller.
type Control string

// Controls provided by common gamepads. Axis values are normalized to
// [-1, 1]; trigger values to [0, 1].
const (
	AbsoluteX  Control = "AbsoluteX"
	AbsoluteY  Control = "AbsoluteY"
	AbsoluteRX Control = "AbsoluteRX"
	AbsoluteRY Control = "AbsoluteRY"
	AbsoluteZ  Control = "AbsoluteZ"
	AbsoluteRZ Control = "AbsoluteRZ"

	ButtonSouth  Control = "ButtonSouth"
	ButtonEast   Control = "ButtonEast"
	ButtonWest   Control = "ButtonWest"
	ButtonNorth  Control = "ButtonNorth"
	ButtonLT     Control = "ButtonLT"
	ButtonRT     Control = "ButtonRT"
	ButtonSelect Control = "ButtonSelect"
	ButtonStart  Control = "ButtonStart"
)

// An Event is one state change of one control.
type Event struct {
	Time    time.Time
	Type    EventType
	Control Control
	// Value is the normalized axis position for PositionChangeAbs, 1/0 for
	// button press/release.
	Value float64
}
