// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package edge

import (
	"fmt"

	"github.com/kidoman/embd"
	"go.uber.org/multierr"
)

// WatchedPin is an embd input pin that calls a handler on each rising edge, for use with a
// receiver.Interrupt. embd delivers edges from its own watcher goroutine.
type WatchedPin struct {
	p embd.DigitalPin
}

// OpenWatched opens a pin by embd key, e.g. 27 or "GPIO_27". embd.InitGPIO must have been
// called.
func OpenWatched(key interface{}) (*WatchedPin, error) {
	p, err := embd.NewDigitalPin(key)
	if err != nil {
		return nil, fmt.Errorf("edge: cannot open pin %v: %w", key, err)
	}
	w, err := NewWatched(p)
	if err != nil {
		p.Close()
		return nil, err
	}
	return w, nil
}

// NewWatched configures p as an input.
func NewWatched(p embd.DigitalPin) (*WatchedPin, error) {
	if err := p.SetDirection(embd.In); err != nil {
		return nil, fmt.Errorf("edge: pin %d: %w", p.N(), err)
	}
	return &WatchedPin{p: p}, nil
}

// SetInterrupt calls handler on every rising edge until Close.
func (w *WatchedPin) SetInterrupt(handler func()) error {
	return w.p.Watch(embd.EdgeRising, func(embd.DigitalPin) { handler() })
}

// Asserted reports whether the pin is high.
func (w *WatchedPin) Asserted() bool {
	v, err := w.p.Read()
	return err == nil && v == embd.High
}

// Close stops watching the pin and releases it.
func (w *WatchedPin) Close() error {
	return multierr.Append(w.p.StopWatching(), w.p.Close())
}
