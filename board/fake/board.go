// Package fake implements an in-memory board for tests.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/jameskerry651/rc-assemble/board"
)

// NewBoard returns a board whose pins exist on first use and whose interrupts
// can be ticked from test code.
func NewBoard() *Board {
	return &Board{
		pins:       map[string]*GPIOPin{},
		interrupts: map[string]*DigitalInterrupt{},
	}
}

// A Board is a fake board. Pins are created lazily; interrupts must be added
// with AddDigitalInterrupt before lookup.
type Board struct {
	mu         sync.Mutex
	pins       map[string]*GPIOPin
	interrupts map[string]*DigitalInterrupt
	closed     bool
}

// GPIOPinByName returns the named pin, creating it if needed.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[name]
	if !ok {
		p = &GPIOPin{pwmFreq: 800}
		b.pins[name] = p
	}
	return p, nil
}

// GPIOPin returns the named pin with its fake-specific accessors, for tests
// that need to inspect writes.
func (b *Board) GPIOPin(name string) *GPIOPin {
	p, _ := b.GPIOPinByName(name)
	return p.(*GPIOPin)
}

// AddDigitalInterrupt registers an interrupt under the given name.
func (b *Board) AddDigitalInterrupt(name string) *DigitalInterrupt {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := &DigitalInterrupt{}
	b.interrupts[name] = i
	return i
}

// DigitalInterruptByName returns a previously added interrupt.
func (b *Board) DigitalInterruptByName(name string) (board.DigitalInterrupt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.interrupts[name]
	if !ok {
		return nil, errors.Errorf("unknown digital interrupt %q", name)
	}
	return i, nil
}

// Close marks the board closed.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// A GPIOPin records everything written to it.
type GPIOPin struct {
	mu      sync.Mutex
	high    bool
	pwm     float64
	pwmFreq uint

	// Histories of every write, oldest first.
	SetHistory     []bool
	PWMHistory     []float64
	PWMFreqHistory []uint
}

// Set sets the digital state and zeroes any PWM.
func (p *GPIOPin) Set(ctx context.Context, high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.high = high
	p.pwm = 0
	p.SetHistory = append(p.SetHistory, high)
	return nil
}

// Get returns the digital state.
func (p *GPIOPin) Get(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.high, nil
}

// PWM returns the last duty cycle set.
func (p *GPIOPin) PWM(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pwm, nil
}

// SetPWM records the duty cycle.
func (p *GPIOPin) SetPWM(ctx context.Context, dutyCyclePct float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pwm = dutyCyclePct
	p.PWMHistory = append(p.PWMHistory, dutyCyclePct)
	return nil
}

// PWMFreq returns the last frequency set.
func (p *GPIOPin) PWMFreq(ctx context.Context) (uint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pwmFreq, nil
}

// SetPWMFreq records the frequency.
func (p *GPIOPin) SetPWMFreq(ctx context.Context, freqHz uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pwmFreq = freqHz
	p.PWMFreqHistory = append(p.PWMFreqHistory, freqHz)
	return nil
}

// A DigitalInterrupt is tickable from tests.
type DigitalInterrupt struct {
	board.BasicDigitalInterrupt
}

// Tick injects one edge.
func (i *DigitalInterrupt) Tick(ctx context.Context, high bool, nanos uint64) error {
	return i.BasicDigitalInterrupt.Tick(ctx, high, nanos)
}
