// Package jetson implements the 40-pin expansion header of NVIDIA Jetson
// boards: digital I/O through periph.io, hardware PWM through sysfs, and
// digital interrupts through gpiochip edge events.
//
// Pins are named by their physical (BOARD) number on the header, matching the
// wiring documentation in the README. Hardware PWM requires the matching
// header mode to have been selected with jetson-io first.
package jetson

import (
	"context"
	"strconv"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
	"periph.io/x/host/v3"

	"github.com/jameskerry651/rc-assemble/board"
)

var periphHostOnce sync.Once

// A Config describes which digital interrupts to claim at construction.
// Plain GPIO and PWM pins need no configuration; they are claimed on first
// use.
type Config struct {
	DigitalInterrupts []board.DigitalInterruptConfig `json:"digital_interrupts,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	for idx := range conf.DigitalInterrupts {
		if err := conf.DigitalInterrupts[idx].Validate(path + ".digital_interrupts"); err != nil {
			return err
		}
	}
	return nil
}

// NewBoard sets up a Jetson board from the given config.
func NewBoard(ctx context.Context, conf Config, logger golog.Logger) (*Board, error) {
	periphHostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			logger.Debugw("error initializing periph host", "error", err)
		}
	})

	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	b := &Board{
		pins:       map[string]*gpioPin{},
		interrupts: map[string]*digitalInterrupt{},
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		logger:     logger,
	}

	for _, ic := range conf.DigitalInterrupts {
		di, err := b.newDigitalInterrupt(ic)
		if err != nil {
			return nil, multierr.Combine(err, b.Close(ctx))
		}
		b.interrupts[ic.Name] = di
	}
	return b, nil
}

// A Board is an open Jetson 40-pin header.
type Board struct {
	mu         sync.Mutex
	pins       map[string]*gpioPin
	interrupts map[string]*digitalInterrupt

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
	logger                  golog.Logger
}

// GPIOPinByName returns the pin with the given physical pin number.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pin, ok := b.pins[name]; ok {
		return pin, nil
	}

	pinNum, err := strconv.Atoi(name)
	if err != nil {
		return nil, errors.Errorf("cannot parse pin name %q: expected a physical pin number", name)
	}
	mapping, ok := gpioMappings[pinNum]
	if !ok {
		return nil, errors.Errorf("physical pin %d is not a GPIO-capable pin on the 40-pin header", pinNum)
	}

	pin := &gpioPin{
		mapping:   mapping,
		pwmFreqHz: defaultPWMFreqHz,
		cancelCtx: b.cancelCtx,
		waitGroup: &b.activeBackgroundWorkers,
		logger:    b.logger,
	}
	if mapping.hwPWMSupported {
		chipPath, err := findPwmChipPath(pwmRootPath, mapping.pwmSysfsDir)
		if err != nil {
			// The PWM controller is missing when the pinmux was never set up.
			// Fall back to software PWM rather than failing pin lookup.
			b.logger.Warnw("hardware PWM unavailable, falling back to software PWM",
				"pin", pinNum, "device", mapping.pwmSysfsDir, "error", err)
		} else {
			pin.hwPwm = newPwmDevice(chipPath, mapping.pwmLine)
		}
	}
	b.pins[name] = pin
	return pin, nil
}

// DigitalInterruptByName returns a configured digital interrupt.
func (b *Board) DigitalInterruptByName(name string) (board.DigitalInterrupt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	di, ok := b.interrupts[name]
	if !ok {
		return nil, errors.Errorf("unknown digital interrupt %q", name)
	}
	return di, nil
}

type digitalInterrupt struct {
	board.BasicDigitalInterrupt
	line *gpiocdev.Line
}

func (b *Board) newDigitalInterrupt(conf board.DigitalInterruptConfig) (*digitalInterrupt, error) {
	pinNum, err := strconv.Atoi(conf.Pin)
	if err != nil {
		return nil, errors.Errorf("cannot parse interrupt pin %q: expected a physical pin number", conf.Pin)
	}
	mapping, ok := gpioMappings[pinNum]
	if !ok {
		return nil, errors.Errorf("physical pin %d is not a GPIO-capable pin on the 40-pin header", pinNum)
	}

	di := &digitalInterrupt{}
	handler := func(evt gpiocdev.LineEvent) {
		high := evt.Type == gpiocdev.LineEventRisingEdge
		if err := di.Tick(b.cancelCtx, high, uint64(evt.Timestamp)); err != nil {
			b.logger.Debugw("dropped interrupt tick", "interrupt", conf.Name, "error", err)
		}
	}

	line, err := gpiocdev.RequestLine(mainGPIOChip, mapping.line,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(handler),
		gpiocdev.WithConsumer("rc-assemble"))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot claim line %d (%s) for interrupt %q",
			mapping.line, mapping.name, conf.Name)
	}
	di.line = line
	return di, nil
}

// Close releases all pins and interrupt lines.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cancelFunc()
	b.activeBackgroundWorkers.Wait()

	var err error
	for _, pin := range b.pins {
		err = multierr.Combine(err, pin.close())
	}
	for _, di := range b.interrupts {
		if di.line != nil {
			err = multierr.Combine(err, di.line.Close())
		}
	}
	return err
}
