// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package receiver

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tve/lorarx"
)

var errBus = errors.New("spi: bus error")

// fakeRadio records the operations performed on it and fails the ones listed in fail.
type fakeRadio struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error

	flags   lorarx.IRQ
	payload []byte
	rssi    int16
	snr     float32
	fei     int32

	busy    atomic.Int32
	overlap atomic.Bool
	delay   time.Duration // time spent in IRQFlags, widens the window for overlaps
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{fail: map[string]error{}}
}

func (f *fakeRadio) call(name string) error {
	if f.busy.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.busy.Add(-1)
	if name == "IRQFlags" {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.fail[name]
}

func (f *fakeRadio) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRadio) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// receive makes the next IRQFlags report a received frame.
func (f *fakeRadio) receive(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = lorarx.IRQRxDone | lorarx.IRQValidHeader
	f.payload = p
}

func (f *fakeRadio) SetMode(m lorarx.Mode) error { return f.call("SetMode:" + m.String()) }
func (f *fakeRadio) SetFrequency(uint32) error { return f.call("SetFrequency") }
func (f *fakeRadio) ResetFifo() error { return f.call("ResetFifo") }
func (f *fakeRadio) SetLnaBoost(bool) error { return f.call("SetLnaBoost") }
func (f *fakeRadio) SetLnaGain(lorarx.LnaGain) error { return f.call("SetLnaGain") }
func (f *fakeRadio) SetBandwidth(lorarx.Bandwidth) error { return f.call("SetBandwidth") }
func (f *fakeRadio) SetHeaderMode(lorarx.Header) error { return f.call("SetHeaderMode") }
func (f *fakeRadio) SetSyncWord(byte) error { return f.call("SetSyncWord") }
func (f *fakeRadio) SetPreambleLength(uint16) error { return f.call("SetPreambleLength") }
func (f *fakeRadio) SetSpreadingFactor(lorarx.SpreadingFactor) error {
	return f.call("SetSpreadingFactor")
}

func (f *fakeRadio) IRQFlags() (lorarx.IRQ, error) {
	if err := f.call("IRQFlags"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	flags := f.flags
	f.flags = 0
	return flags, nil
}

func (f *fakeRadio) ReadPayload(buf []byte) (int, error) {
	if err := f.call("ReadPayload"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return copy(buf, f.payload), nil
}

func (f *fakeRadio) PacketRssi() (int16, error) {
	if err := f.call("PacketRssi"); err != nil {
		return 0, err
	}
	return f.rssi, nil
}

func (f *fakeRadio) PacketSnr() (float32, error) {
	if err := f.call("PacketSnr"); err != nil {
		return 0, err
	}
	return f.snr, nil
}

func (f *fakeRadio) FrequencyError() (int32, error) {
	if err := f.call("FrequencyError"); err != nil {
		return 0, err
	}
	return f.fei, nil
}

// fakeLine is an edge line driven by the test: each value sent on edges is the result of one
// WaitForEdge call.
type fakeLine struct {
	edges    chan bool
	level    atomic.Bool
	mu       sync.Mutex
	timeouts []time.Duration
	handler  func()
	setErr   error
}

func newFakeLine() *fakeLine { return &fakeLine{edges: make(chan bool, 16)} }

func (l *fakeLine) WaitForEdge(timeout time.Duration) bool {
	l.mu.Lock()
	l.timeouts = append(l.timeouts, timeout)
	l.mu.Unlock()
	return <-l.edges
}

func (l *fakeLine) Asserted() bool { return l.level.Load() }

func (l *fakeLine) SetInterrupt(handler func()) error {
	if l.setErr != nil {
		return l.setErr
	}
	l.handler = handler
	return nil
}

// plainLine is an edge line that cannot report its level.
type plainLine struct{ edges chan bool }

func (l plainLine) WaitForEdge(time.Duration) bool { return <-l.edges }
