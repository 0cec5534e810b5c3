// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package receiver

import (
	"context"
	"fmt"
	"time"

	"github.com/tve/lorarx"
	"github.com/tve/lorarx/thread"
)

// Source delivers the radio's interrupts to a Servicer until ctx is done.
type Source interface {
	Run(ctx context.Context) error
}

// InterruptLine is a GPIO input that calls a handler from interrupt context on each rising
// edge.
type InterruptLine interface {
	SetInterrupt(handler func()) error
}

// EdgeLine is a GPIO input whose rising edges can be waited for. A timeout of -1 waits
// forever.
type EdgeLine interface {
	WaitForEdge(timeout time.Duration) bool
}

// Asserter is implemented by lines that can report whether they are currently high.
type Asserter interface {
	Asserted() bool
}

// Interrupt delivers interrupts raised in interrupt context. The handler registered on the line
// only queues the interrupt; Run services the queue in order on the calling goroutine.
type Interrupt struct {
	s *Servicer
}

// NewInterrupt binds the servicer to the line's interrupt. The registration stays in place
// until the line's owner removes it.
func NewInterrupt(line InterruptLine, s *Servicer) (*Interrupt, error) {
	if err := s.bind(regimeInterrupt); err != nil {
		return nil, err
	}
	if err := line.SetInterrupt(s.HandleInterruptFromISR); err != nil {
		s.regime.Store(regimeNone)
		return nil, fmt.Errorf("receiver: cannot register interrupt: %w", err)
	}
	return &Interrupt{s: s}, nil
}

// Run services pending interrupts until ctx is done.
func (i *Interrupt) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-i.s.isrQ:
			i.s.HandleInterrupt()
		}
	}
}

// PollOpts configures a Poller.
type PollOpts struct {
	// Timeout bounds each wait for an edge, 0 or negative waits forever.
	Timeout time.Duration
	// ServiceOnTimeout runs a servicing pass whenever a wait times out, even if the line is
	// low. This masks lost edges on hosts with unreliable edge detection.
	ServiceOnTimeout bool
	// Realtime runs the polling loop on a kernel thread with realtime priority.
	Realtime bool
}

// Poller delivers interrupts by blocking on a line's edges.
type Poller struct {
	line EdgeLine
	s    *Servicer
	opts PollOpts
	log  lorarx.LogPrintf
}

// NewPoller binds the servicer to a line that is waited on by Poll.
func NewPoller(line EdgeLine, s *Servicer, opts PollOpts) (*Poller, error) {
	if err := s.bind(regimePoll); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = -1
	}
	return &Poller{line: line, s: s, opts: opts, log: s.h.log}, nil
}

// Poll waits for one edge and services it. A wait that times out still services the radio if
// the line is high, since the edge was then missed, or if ServiceOnTimeout is set.
func (p *Poller) Poll() Outcome {
	if p.line.WaitForEdge(p.opts.Timeout) {
		return p.s.HandleInterrupt()
	}
	if p.asserted() {
		p.log("interrupt was missed")
		return p.s.HandleInterrupt()
	}
	if p.opts.ServiceOnTimeout {
		return p.s.HandleInterrupt()
	}
	return OutcomeIdle
}

// Run calls Poll until ctx is done. Cancellation is only observed between waits.
func (p *Poller) Run(ctx context.Context) error {
	if p.opts.Realtime {
		if err := thread.Realtime(); err != nil {
			return fmt.Errorf("receiver: realtime polling: %w", err)
		}
	}
	// Make sure we're not missing an initial edge due to a race condition.
	if p.asserted() {
		p.s.HandleInterrupt()
	}
	for ctx.Err() == nil {
		p.Poll()
	}
	return nil
}

func (p *Poller) asserted() bool {
	a, ok := p.line.(Asserter)
	return ok && a.Asserted()
}
