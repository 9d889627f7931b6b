package board

import (
	"context"
	"sync"
	"sync/atomic"
)

// BasicDigitalInterrupt is the in-memory bookkeeping shared by interrupt
// implementations: an edge counter plus a set of subscriber channels.
// Producers (a gpiochip event handler, a fake board in tests) call Tick.
type BasicDigitalInterrupt struct {
	count int64

	mu        sync.RWMutex
	callbacks []chan Tick
}

// Value returns the number of rising edges seen so far.
func (i *BasicDigitalInterrupt) Value(ctx context.Context) (int64, error) {
	return atomic.LoadInt64(&i.count), nil
}

// Tick records an edge and fans it out to all subscribers. Sends block until
// delivered or the context is done, so subscribers must keep draining.
func (i *BasicDigitalInterrupt) Tick(ctx context.Context, high bool, nanos uint64) error {
	if high {
		atomic.AddInt64(&i.count, 1)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	for _, c := range i.callbacks {
		select {
		case c <- Tick{High: high, TimestampNanos: nanos}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// AddCallback subscribes a channel to future ticks.
func (i *BasicDigitalInterrupt) AddCallback(c chan Tick) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.callbacks = append(i.callbacks, c)
}

// RemoveCallback unsubscribes a channel.
func (i *BasicDigitalInterrupt) RemoveCallback(c chan Tick) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for id := range i.callbacks {
		if i.callbacks[id] == c {
			i.callbacks = append(i.callbacks[:id], i.callbacks[id+1:]...)
			break
		}
	}
}
