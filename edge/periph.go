// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package edge

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Pin is a periph input pin configured for rising edges, waited on by a receiver.Poller.
type Pin struct {
	p gpio.PinIn
}

// Open looks up a pin by name, e.g. "GPIO27", and configures it. periph's host drivers must
// have been initialized.
func Open(name string) (*Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("edge: cannot open pin %s", name)
	}
	return New(p)
}

// New configures p as a floating input with rising edge detection. Edges that were pending
// from earlier use of the pin are discarded.
func New(p gpio.PinIn) (*Pin, error) {
	if err := p.In(gpio.Float, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("edge: pin %s: %w", p, err)
	}
	for p.WaitForEdge(0) {
	}
	return &Pin{p: p}, nil
}

// WaitForEdge blocks until a rising edge or the timeout, -1 waits forever.
func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	return p.p.WaitForEdge(timeout)
}

// Asserted reports whether the pin is high.
func (p *Pin) Asserted() bool { return p.p.Read() == gpio.High }

func (p *Pin) String() string { return p.p.String() }

// Close turns edge detection off, which releases a pending WaitForEdge.
func (p *Pin) Close() error {
	return p.p.In(gpio.Float, gpio.NoEdge)
}
