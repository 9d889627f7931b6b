// This file implements board.GPIOPin on top of periph.io sysfs pins, with
// hardware PWM where the header pin supports it and a software PWM loop
// everywhere else.

package jetson

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Changing the frequency without restarting PWM keeps this default until the
// next SetPWM call.
const defaultPWMFreqHz = 800

type gpioPin struct {
	mapping pinMapping

	mu sync.Mutex

	// periphPin is resolved lazily so that pins muxed away from GPIO (e.g. a
	// hardware PWM pad) never touch the sysfs gpio tree.
	periphPin gpio.PinIO

	hwPwm *pwmDevice // nil when the pin has no hardware PWM

	pwmFreqHz       uint
	pwmDutyCyclePct float64
	pwmRunning      bool
	softwareLoopUp  bool

	cancelCtx context.Context
	waitGroup *sync.WaitGroup
	logger    golog.Logger
}

func (pin *gpioPin) getPeriphPin() (gpio.PinIO, error) {
	if pin.periphPin != nil {
		return pin.periphPin, nil
	}
	p := gpioreg.ByName(strconv.Itoa(pin.mapping.gpioGlobal()))
	if p == nil {
		return nil, errors.Errorf("no GPIO found for global number %d (%s)",
			pin.mapping.gpioGlobal(), pin.mapping.name)
	}
	pin.periphPin = p
	return p, nil
}

// Set implements board.GPIOPin.
func (pin *gpioPin) Set(ctx context.Context, high bool) error {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	return pin.setInternal(high)
}

// setInternal assumes the mutex is held. It stops any PWM signal on the pin.
func (pin *gpioPin) setInternal(high bool) error {
	pin.pwmRunning = false
	if pin.hwPwm != nil {
		if err := pin.hwPwm.disable(); err != nil {
			return err
		}
	}
	p, err := pin.getPeriphPin()
	if err != nil {
		return err
	}
	l := gpio.Low
	if high {
		l = gpio.High
	}
	return p.Out(l)
}

// Get implements board.GPIOPin.
func (pin *gpioPin) Get(ctx context.Context) (bool, error) {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	p, err := pin.getPeriphPin()
	if err != nil {
		return false, err
	}
	if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return false, err
	}
	return p.Read() == gpio.High, nil
}

// PWM implements board.GPIOPin.
func (pin *gpioPin) PWM(ctx context.Context) (float64, error) {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	if !pin.pwmRunning {
		return 0, nil
	}
	return pin.pwmDutyCyclePct, nil
}

// SetPWM implements board.GPIOPin.
func (pin *gpioPin) SetPWM(ctx context.Context, dutyCyclePct float64) error {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if dutyCyclePct < 0 || dutyCyclePct > 1 {
		return errors.Errorf("duty cycle %.3f is outside [0, 1]", dutyCyclePct)
	}
	pin.pwmDutyCyclePct = dutyCyclePct
	return pin.startPwm()
}

// PWMFreq implements board.GPIOPin.
func (pin *gpioPin) PWMFreq(ctx context.Context) (uint, error) {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	return pin.pwmFreqHz, nil
}

// SetPWMFreq implements board.GPIOPin.
func (pin *gpioPin) SetPWMFreq(ctx context.Context, freqHz uint) error {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	if freqHz == 0 {
		return errors.New("PWM frequency cannot be 0")
	}
	pin.pwmFreqHz = freqHz
	if pin.pwmRunning {
		return pin.startPwm()
	}
	return nil
}

// startPwm assumes the mutex is held.
func (pin *gpioPin) startPwm() error {
	pin.pwmRunning = true
	if pin.hwPwm != nil {
		return pin.hwPwm.setPwm(pin.pwmFreqHz, pin.pwmDutyCyclePct)
	}

	// Software PWM. A single background loop per pin re-reads frequency and
	// duty cycle every period, so repeated SetPWM calls just update state.
	if pin.softwareLoopUp {
		return nil
	}
	pin.softwareLoopUp = true
	pin.waitGroup.Add(1)
	utils.ManagedGo(func() {
		pin.softwarePwmLoop(pin.cancelCtx)
	}, pin.waitGroup.Done)
	return nil
}

func (pin *gpioPin) softwarePwmLoop(ctx context.Context) {
	for {
		running, freqHz, duty := pin.pwmState()
		if !running {
			pin.mu.Lock()
			pin.softwareLoopUp = false
			pin.mu.Unlock()
			return
		}

		period := time.Duration(float64(time.Second) / float64(freqHz))
		highTime := time.Duration(float64(period) * duty)

		if highTime > 0 {
			if err := pin.setRaw(true); err != nil {
				pin.logger.Errorw("software PWM set high failed", "pin", pin.mapping.name, "error", err)
			}
			if !utils.SelectContextOrWait(ctx, highTime) {
				return
			}
		}
		if period-highTime > 0 {
			if err := pin.setRaw(false); err != nil {
				pin.logger.Errorw("software PWM set low failed", "pin", pin.mapping.name, "error", err)
			}
			if !utils.SelectContextOrWait(ctx, period-highTime) {
				return
			}
		}
	}
}

// setRaw writes the digital level without disturbing PWM bookkeeping; it is
// how the software PWM loop toggles the pin.
func (pin *gpioPin) setRaw(high bool) error {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	p, err := pin.getPeriphPin()
	if err != nil {
		return err
	}
	l := gpio.Low
	if high {
		l = gpio.High
	}
	return p.Out(l)
}

func (pin *gpioPin) pwmState() (bool, uint, float64) {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	return pin.pwmRunning, pin.pwmFreqHz, pin.pwmDutyCyclePct
}

// close assumes no further calls on the pin. Hardware PWM lines are
// unexported so the signal stops at the pad.
func (pin *gpioPin) close() error {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	pin.pwmRunning = false
	if pin.hwPwm != nil {
		return pin.hwPwm.Close()
	}
	return nil
}
