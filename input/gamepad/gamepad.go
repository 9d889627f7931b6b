// Package gamepad implements input.Controller for Linux evdev gamepads.
package gamepad

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	evdev "github.com/holoplot/go-evdev"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/jameskerry651/rc-assemble/input"
)

// reconnectWait is how long to wait before probing for the device again
// after a disconnect or a failed open.
const reconnectWait = time.Second

// Config describes which gamepad to use.
type Config struct {
	// DevicePath is an explicit /dev/input/eventN path. When empty the
	// first device exposing absolute axes is used.
	DevicePath string `json:"device_path,omitempty"`

	// AutoReconnect keeps probing for the device when it goes away instead
	// of failing.
	AutoReconnect bool `json:"auto_reconnect,omitempty"`
}

var axisToControl = map[evdev.EvCode]input.Control{
	evdev.ABS_X:  input.AbsoluteX,
	evdev.ABS_Y:  input.AbsoluteY,
	evdev.ABS_RX: input.AbsoluteRX,
	evdev.ABS_RY: input.AbsoluteRY,
	evdev.ABS_Z:  input.AbsoluteZ,
	evdev.ABS_RZ: input.AbsoluteRZ,
}

var buttonToControl = map[evdev.EvCode]input.Control{
	evdev.BTN_SOUTH:  input.ButtonSouth,
	evdev.BTN_EAST:   input.ButtonEast,
	evdev.BTN_WEST:   input.ButtonWest,
	evdev.BTN_NORTH:  input.ButtonNorth,
	evdev.BTN_TL:     input.ButtonLT,
	evdev.BTN_TR:     input.ButtonRT,
	evdev.BTN_SELECT: input.ButtonSelect,
	evdev.BTN_START:  input.ButtonStart,
}

// triggerControls are reported in [0, 1] instead of [-1, 1].
var triggerControls = map[input.Control]bool{
	input.AbsoluteZ:  true,
	input.AbsoluteRZ: true,
}

// inputDevice is the part of *evdev.InputDevice the controller uses.
// Tests swap in fake devices through openDevice.
type inputDevice interface {
	Name() (string, error)
	CapableTypes() []evdev.EvType
	AbsInfos() (map[evdev.EvCode]evdev.AbsInfo, error)
	ReadOne() (*evdev.InputEvent, error)
	Close() error
}

var (
	openDevice = func(path string) (inputDevice, error) {
		return evdev.Open(path)
	}
	listDevicePaths = evdev.ListDevicePaths
)

// NewController opens the gamepad and starts its read loop. With
// AutoReconnect set, a missing device is not an error; the controller waits
// for it to appear.
func NewController(ctx context.Context, cfg Config, logger golog.Logger) (input.Controller, error) {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	g := &Controller{
		cfg:        cfg,
		callbacks:  map[input.Control]map[input.EventType]input.ControlFunction{},
		lastEvents: map[input.Control]input.Event{},
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		logger:     logger,
	}

	if !cfg.AutoReconnect {
		// Fail fast when the device must be there at startup.
		if err := g.connect(); err != nil {
			return nil, err
		}
	}

	g.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		g.run()
	}, g.activeBackgroundWorkers.Done)
	return g, nil
}

// A Controller is one evdev gamepad.
type Controller struct {
	cfg Config

	mu         sync.Mutex
	dev        inputDevice
	absInfo    map[evdev.EvCode]evdev.AbsInfo
	controls   []input.Control
	callbacks  map[input.Control]map[input.EventType]input.ControlFunction
	lastEvents map[input.Control]input.Event

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
	logger                  golog.Logger
}

var _ input.Controller = (*Controller)(nil)

// findDevicePath returns the first input device exposing absolute axes.
func findDevicePath() (string, error) {
	paths, err := listDevicePaths()
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		dev, err := openDevice(p.Path)
		if err != nil {
			continue
		}
		types := dev.CapableTypes()
		utils.UncheckedErrorFunc(dev.Close)
		for _, t := range types {
			if t == evdev.EV_ABS {
				return p.Path, nil
			}
		}
	}
	return "", errors.New("no gamepad found: no evdev device with absolute axes")
}

// connect opens the device and snapshots its axis ranges.
func (g *Controller) connect() error {
	path := g.cfg.DevicePath
	if path == "" {
		var err error
		path, err = findDevicePath()
		if err != nil {
			return err
		}
	}

	dev, err := openDevice(path)
	if err != nil {
		return errors.Wrapf(err, "cannot open gamepad %q", path)
	}
	absInfo, err := dev.AbsInfos()
	if err != nil {
		utils.UncheckedErrorFunc(dev.Close)
		return errors.Wrapf(err, "cannot read axis ranges of %q", path)
	}

	name, err := dev.Name()
	if err != nil {
		name = path
	}

	var controls []input.Control
	for code := range absInfo {
		if ctrl, ok := axisToControl[code]; ok {
			controls = append(controls, ctrl)
		}
	}
	for _, ctrl := range buttonToControl {
		controls = append(controls, ctrl)
	}

	g.mu.Lock()
	g.dev = dev
	g.absInfo = absInfo
	g.controls = controls
	g.mu.Unlock()

	g.logger.Infow("gamepad connected", "name", name, "path", path)
	g.sendConnectionStatus(input.Connect)
	return nil
}

// run owns the device: (re)connect, read events, dispatch.
func (g *Controller) run() {
	for {
		if g.cancelCtx.Err() != nil {
			return
		}

		g.mu.Lock()
		connected := g.dev != nil
		g.mu.Unlock()
		if !connected {
			if err := g.connect(); err != nil {
				if !g.cfg.AutoReconnect {
					g.logger.Errorw("gamepad connect failed", "error", err)
					return
				}
				if !utils.SelectContextOrWait(g.cancelCtx, reconnectWait) {
					return
				}
				continue
			}
		}

		g.readUntilError()

		g.sendConnectionStatus(input.Disconnect)
		g.mu.Lock()
		if g.dev != nil {
			utils.UncheckedErrorFunc(g.dev.Close)
			g.dev = nil
		}
		g.mu.Unlock()

		if !g.cfg.AutoReconnect {
			return
		}
		if !utils.SelectContextOrWait(g.cancelCtx, reconnectWait) {
			return
		}
	}
}

func (g *Controller) readUntilError() {
	g.mu.Lock()
	dev := g.dev
	g.mu.Unlock()
	if dev == nil {
		return
	}
	for {
		ev, err := dev.ReadOne()
		if err != nil {
			if g.cancelCtx.Err() == nil {
				g.logger.Debugw("gamepad read error", "error", err)
			}
			return
		}
		g.processEvent(ev)
	}
}

func (g *Controller) processEvent(ev *evdev.InputEvent) {
	switch ev.Type {
	case evdev.EV_ABS:
		ctrl, ok := axisToControl[ev.Code]
		if !ok {
			return
		}
		g.mu.Lock()
		info, haveInfo := g.absInfo[ev.Code]
		g.mu.Unlock()
		if !haveInfo {
			return
		}
		g.dispatch(input.Event{
			Time:    time.Now(),
			Type:    input.PositionChangeAbs,
			Control: ctrl,
			Value:   normalizeAxis(ctrl, info, ev.Value),
		})
	case evdev.EV_KEY:
		ctrl, ok := buttonToControl[ev.Code]
		if !ok {
			return
		}
		eventType := input.ButtonRelease
		value := 0.0
		if ev.Value != 0 {
			eventType = input.ButtonPress
			value = 1.0
		}
		g.dispatch(input.Event{Time: time.Now(), Type: eventType, Control: ctrl, Value: value})
	}
}

// normalizeAxis maps a raw axis value into [-1, 1], or [0, 1] for triggers.
func normalizeAxis(ctrl input.Control, info evdev.AbsInfo, raw int32) float64 {
	span := float64(info.Maximum) - float64(info.Minimum)
	if span == 0 {
		return 0
	}
	pct := (float64(raw) - float64(info.Minimum)) / span
	if triggerControls[ctrl] {
		return pct
	}
	return 2*pct - 1
}

func (g *Controller) sendConnectionStatus(eventType input.EventType) {
	g.mu.Lock()
	controls := make([]input.Control, len(g.controls))
	copy(controls, g.controls)
	g.mu.Unlock()

	now := time.Now()
	for _, ctrl := range controls {
		g.dispatch(input.Event{Time: now, Type: eventType, Control: ctrl})
	}
}

func (g *Controller) dispatch(ev input.Event) {
	g.mu.Lock()
	g.lastEvents[ev.Control] = ev
	var ctrlFunc input.ControlFunction
	if cbs, ok := g.callbacks[ev.Control]; ok {
		ctrlFunc = cbs[ev.Type]
	}
	g.mu.Unlock()

	if ctrlFunc != nil {
		ctrlFunc(g.cancelCtx, ev)
	}
}

// Controls implements input.Controller.
func (g *Controller) Controls(ctx context.Context) ([]input.Control, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.controls == nil {
		return nil, errors.New("gamepad not connected")
	}
	out := make([]input.Control, len(g.controls))
	copy(out, g.controls)
	return out, nil
}

// Events implements input.Controller.
func (g *Controller) Events(ctx context.Context) (map[input.Control]input.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[input.Control]input.Event, len(g.lastEvents))
	for k, v := range g.lastEvents {
		out[k] = v
	}
	return out, nil
}

// RegisterControlCallback implements input.Controller.
func (g *Controller) RegisterControlCallback(
	ctx context.Context,
	control input.Control,
	triggers []input.EventType,
	ctrlFunc input.ControlFunction,
) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.callbacks[control] == nil {
		g.callbacks[control] = map[input.EventType]input.ControlFunction{}
	}
	for _, trigger := range triggers {
		if ctrlFunc == nil {
			delete(g.callbacks[control], trigger)
		} else {
			g.callbacks[control][trigger] = ctrlFunc
		}
	}
	return nil
}

// Close stops the read loop and closes the device.
func (g *Controller) Close(ctx context.Context) error {
	g.cancelFunc()
	g.mu.Lock()
	if g.dev != nil {
		// Unblocks ReadOne.
		utils.UncheckedErrorFunc(g.dev.Close)
		g.dev = nil
	}
	g.mu.Unlock()
	g.activeBackgroundWorkers.Wait()
	return nil
}
