// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package receiver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tve/lorarx"
)

func TestRegimesDontMix(t *testing.T) {
	s := NewServicer(NewHandle(newFakeRadio(), Opts{}))
	line := newFakeLine()
	_, err := NewInterrupt(line, s)
	require.NoError(t, err)
	_, err = NewPoller(line, s, PollOpts{})
	assert.ErrorIs(t, err, ErrRegimeMixed)
	_, err = NewInterrupt(line, s)
	assert.ErrorIs(t, err, ErrRegimeMixed)

	s = NewServicer(NewHandle(newFakeRadio(), Opts{}))
	_, err = NewPoller(line, s, PollOpts{})
	require.NoError(t, err)
	_, err = NewInterrupt(line, s)
	assert.ErrorIs(t, err, ErrRegimeMixed)
}

func TestInterruptRegistrationFailure(t *testing.T) {
	h := NewHandle(newFakeRadio(), Opts{})
	s := NewServicer(h)
	line := newFakeLine()
	line.setErr = errors.New("gpio: no interrupt")
	_, err := NewInterrupt(line, s)
	assert.ErrorIs(t, err, line.setErr)
	assert.False(t, h.sourceBound())

	// The servicer is free to be bound again.
	line.setErr = nil
	_, err = NewInterrupt(line, s)
	assert.NoError(t, err)
	assert.True(t, h.sourceBound())
}

func TestISREntryDropsWhenFull(t *testing.T) {
	s := NewServicer(NewHandle(newFakeRadio(), Opts{}))
	line := newFakeLine()
	_, err := NewInterrupt(line, s)
	require.NoError(t, err)

	// Nobody drains the queue: the handler must neither block nor lose count.
	done := make(chan struct{})
	go func() {
		for i := 0; i < isrQueueLen+5; i++ {
			line.handler()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("interrupt handler blocked")
	}
	assert.Equal(t, uint64(5), s.Stats().ISRDrops)
	assert.Zero(t, s.Stats().Edges)
}

// interruptRig is an armed handle fed by an Interrupt whose Run executes on a goroutine.
type interruptRig struct {
	h      *Handle
	s      *Servicer
	r      *fakeRadio
	line   *fakeLine
	cancel context.CancelFunc
	done   chan error
}

func newInterruptRig(t *testing.T, cb Callback) *interruptRig {
	r := newFakeRadio()
	h := NewHandle(r, Opts{Logger: t.Logf})
	s := NewServicer(h)
	line := newFakeLine()
	intr, err := NewInterrupt(line, s)
	require.NoError(t, err)
	require.NoError(t, Configure(h, DefaultConfig(), cb))

	ctx, cancel := context.WithCancel(context.Background())
	rig := &interruptRig{h: h, s: s, r: r, line: line, cancel: cancel, done: make(chan error)}
	go func() { rig.done <- intr.Run(ctx) }()
	return rig
}

func (rig *interruptRig) stop(t *testing.T) {
	rig.cancel()
	select {
	case err := <-rig.done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestInterruptDelivers(t *testing.T) {
	got := make(chan string, 1)
	rig := newInterruptRig(t, func(h *Handle) {
		if hv, err := h.HexView(); assert.NoError(t, err) {
			got <- hv.String()
		}
	})
	defer rig.stop(t)

	rig.r.receive([]byte{0xca, 0xfe})
	rig.line.handler()
	select {
	case hex := <-got:
		assert.Equal(t, "CAFE", hex)
	case <-time.After(time.Second):
		t.Fatal("packet not delivered")
	}
}

// seqRadio hands out numbered frames, one per IRQFlags, so the order of delivery can be checked.
type seqRadio struct {
	*fakeRadio
	mu   sync.Mutex
	next byte
	cur  byte
}

func (r *seqRadio) IRQFlags() (lorarx.IRQ, error) {
	if _, err := r.fakeRadio.IRQFlags(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = r.next
	r.next++
	return lorarx.IRQRxDone, nil
}

func (r *seqRadio) ReadPayload(buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf[0] = r.cur
	return 1, nil
}

func TestInterruptServicesSequentially(t *testing.T) {
	fr := newFakeRadio()
	fr.delay = 200 * time.Microsecond
	r := &seqRadio{fakeRadio: fr}
	h := NewHandle(r, Opts{})
	s := NewServicer(h)
	line := newFakeLine()
	intr, err := NewInterrupt(line, s)
	require.NoError(t, err)

	const n = 20
	var got []byte
	all := make(chan struct{})
	require.NoError(t, Configure(h, DefaultConfig(), func(h *Handle) {
		p, _ := h.Payload()
		got = append(got, p[0])
		if len(got) == n {
			close(all)
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go intr.Run(ctx)

	// Edges arrive faster than they are serviced, but never more than the queue holds.
	for i := 0; i < n; i++ {
		for len(s.isrQ) == isrQueueLen {
			time.Sleep(50 * time.Microsecond)
		}
		line.handler()
	}
	select {
	case <-all:
	case <-time.After(5 * time.Second):
		t.Fatalf("only %d of %d packets delivered", len(got), n)
	}
	for i := range got {
		assert.Equal(t, byte(i), got[i])
	}
	assert.False(t, fr.overlap.Load(), "servicing passes overlapped")
	assert.Zero(t, s.Stats().ISRDrops)
}

func TestPollerAndDirectCallsDontOverlap(t *testing.T) {
	r := newFakeRadio()
	r.delay = 100 * time.Microsecond
	h := NewHandle(r, Opts{})
	s := NewServicer(h)
	line := newFakeLine()
	p, err := NewPoller(line, s, PollOpts{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				line.edges <- true
				p.Poll()
			}
		}()
	}
	wg.Wait()
	assert.False(t, r.overlap.Load(), "servicing passes overlapped")
	assert.Equal(t, uint64(40), s.Stats().Edges)
}

var pollCases = map[string]struct {
	edge             bool
	level            bool
	serviceOnTimeout bool
	outcome          Outcome
}{
	"edge":            {true, false, false, OutcomeSpurious},
	"timeout-low":     {false, false, false, OutcomeIdle},
	"timeout-missed":  {false, true, false, OutcomeSpurious},
	"timeout-degrade": {false, false, true, OutcomeSpurious},
}

func TestPoll(t *testing.T) {
	for n, tc := range pollCases {
		r := newFakeRadio()
		s := NewServicer(NewHandle(r, Opts{Logger: t.Logf}))
		line := newFakeLine()
		line.level.Store(tc.level)
		p, err := NewPoller(line, s, PollOpts{
			Timeout:          10 * time.Millisecond,
			ServiceOnTimeout: tc.serviceOnTimeout,
		})
		require.NoError(t, err, n)
		line.edges <- tc.edge
		assert.Equal(t, tc.outcome, p.Poll(), n)
		assert.Equal(t, []time.Duration{10 * time.Millisecond}, line.timeouts, n)
		if tc.outcome == OutcomeIdle {
			assert.Empty(t, r.Calls(), n)
		}
	}
}

func TestPollWithoutLevel(t *testing.T) {
	s := NewServicer(NewHandle(newFakeRadio(), Opts{}))
	line := plainLine{edges: make(chan bool, 1)}
	p, err := NewPoller(line, s, PollOpts{})
	require.NoError(t, err)
	line.edges <- false
	assert.Equal(t, OutcomeIdle, p.Poll())
}

func TestPollerWaitsForever(t *testing.T) {
	for _, to := range []time.Duration{0, -5 * time.Second} {
		s := NewServicer(NewHandle(newFakeRadio(), Opts{}))
		line := newFakeLine()
		p, err := NewPoller(line, s, PollOpts{Timeout: to})
		require.NoError(t, err)
		line.edges <- true
		p.Poll()
		assert.Equal(t, []time.Duration{-1}, line.timeouts)
	}
}

func TestPollerRun(t *testing.T) {
	r := newFakeRadio()
	h := NewHandle(r, Opts{Logger: t.Logf})
	s := NewServicer(h)
	line := newFakeLine()
	line.level.Store(true) // a packet arrived before the loop started
	p, err := NewPoller(line, s, PollOpts{Timeout: time.Millisecond})
	require.NoError(t, err)

	got := make(chan []byte, 2)
	require.NoError(t, Configure(h, DefaultConfig(), func(h *Handle) {
		pl, _ := h.Payload()
		got <- append([]byte(nil), pl...)
	}))
	r.receive([]byte("early"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- p.Run(ctx) }()

	select {
	case pl := <-got:
		assert.Equal(t, "early", string(pl))
	case <-time.After(time.Second):
		t.Fatal("pending packet not serviced at start")
	}
	line.level.Store(false)

	r.receive([]byte("late"))
	line.edges <- true
	select {
	case pl := <-got:
		assert.Equal(t, "late", string(pl))
	case <-time.After(time.Second):
		t.Fatal("packet not serviced")
	}

	cancel()
	line.edges <- false
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
