// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package receiver

import (
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/tve/lorarx"
)

// Outcome describes how a servicing pass ended.
type Outcome uint8

const (
	OutcomeIdle        Outcome = iota // no pass ran
	OutcomeSpurious                   // interrupt without RxDone
	OutcomeEmpty                      // RxDone but no frame, e.g. CRC failure
	OutcomeDelivered                  // packet handed to the callback
	OutcomeReadFailure                // flags or payload could not be read
)

var outcomeNames = [...]string{"idle", "spurious", "empty", "delivered", "read-failure"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "outcome(?)"
}

// Stats counts servicing outcomes.
type Stats struct {
	Edges        uint64 // servicing passes run
	Spurious     uint64
	Empty        uint64
	Delivered    uint64
	ReadFailures uint64 // passes ended by a flags or payload read failure
	ISRDrops     uint64 // interrupts dropped because the queue was full
}

const (
	regimeNone int32 = iota
	regimeInterrupt
	regimePoll
)

// isrQueueLen is the number of interrupts that can be pending before they are dropped.
const isrQueueLen = 8

// Servicer runs the receive pass for a Handle each time its radio raises an interrupt.
// Passes never overlap: each holds the handle's lock from the flags read to the return of
// the callback.
type Servicer struct {
	h      *Handle
	regime atomic.Int32  // edge source bound to this servicer
	isrQ   chan struct{} // filled by HandleInterruptFromISR, drained by Interrupt.Run

	edges, spurious, empty, delivered, failures, drops atomic.Uint64
}

// NewServicer returns the servicer of a handle, creating it on first use.
func NewServicer(h *Handle) *Servicer {
	s := &Servicer{h: h, isrQ: make(chan struct{}, isrQueueLen)}
	if h.svc.CompareAndSwap(nil, s) {
		return s
	}
	return h.svc.Load()
}

// bind attaches the servicer to an edge source. Only one may ever be bound.
func (s *Servicer) bind(regime int32) error {
	if !s.regime.CompareAndSwap(regimeNone, regime) {
		return ErrRegimeMixed
	}
	return nil
}

// HandleInterruptFromISR may be called from interrupt context. It pends an interrupt for
// Interrupt.Run without blocking or allocating and counts it as dropped if the queue is full.
func (s *Servicer) HandleInterruptFromISR() {
	select {
	case s.isrQ <- struct{}{}:
	default:
		s.drops.Add(1)
	}
}

// HandleInterrupt runs one servicing pass. It reads and clears the interrupt flags and, if a
// packet was received, hands it with its telemetry to the callback. Telemetry read failures
// are logged and do not prevent delivery.
func (s *Servicer) HandleInterrupt() Outcome {
	h := s.h
	h.mu.Lock()
	defer h.mu.Unlock()
	s.edges.Add(1)

	flags, err := h.radio.IRQFlags()
	if err != nil {
		return s.fail(&ReadError{FieldFlags, err})
	}
	if flags&lorarx.IRQRxDone == 0 {
		h.log("interrupt without packet, flags %#02x", flags)
		s.spurious.Add(1)
		return OutcomeSpurious
	}

	n, err := h.extractPayload()
	if err != nil {
		return s.fail(err)
	}
	if n == 0 || h.cb == nil {
		s.empty.Add(1)
		return OutcomeEmpty
	}

	h.tel = decodeTelemetry(h.radio)
	for _, err := range multierr.Errors(h.tel.Err()) {
		h.log("%s", err)
	}

	h.inPass.Store(true)
	defer h.clearPacket()
	h.cb(h)
	s.delivered.Add(1)
	return OutcomeDelivered
}

func (s *Servicer) fail(err error) Outcome {
	s.h.log("%s", err)
	s.failures.Add(1)
	return OutcomeReadFailure
}

// Stats returns a snapshot of the servicing counters.
func (s *Servicer) Stats() Stats {
	return Stats{
		Edges:        s.edges.Load(),
		Spurious:     s.spurious.Load(),
		Empty:        s.empty.Load(),
		Delivered:    s.delivered.Load(),
		ReadFailures: s.failures.Load(),
		ISRDrops:     s.drops.Load(),
	}
}
