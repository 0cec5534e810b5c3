// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package receiver

import (
	"sync"
	"sync/atomic"

	"github.com/tve/lorarx"
)

// Callback receives each non-empty packet. It runs inside the servicing pass and reads the
// packet through the handle's accessors, which are only valid until it returns. Callbacks are
// never invoked concurrently.
type Callback func(h *Handle)

// Opts contains options used when creating a Handle.
type Opts struct {
	Logger lorarx.LogPrintf // function to use for logging, nil disables logging
}

// Handle owns one radio for the receive pipeline: its current mode, the registered callback,
// and the snapshot of the packet being serviced.
type Handle struct {
	radio lorarx.Radio
	log   lorarx.LogPrintf

	mu   sync.Mutex    // held by Configure and by each servicing pass
	mode atomic.Uint32 // last mode successfully entered
	cb   Callback
	svc  atomic.Pointer[Servicer]

	// Packet snapshot, valid while inPass is set.
	inPass  atomic.Bool
	payload [MaxPayload]byte
	n       int
	hex     HexView
	tel     Telemetry
}

// NewHandle returns a handle for a radio. Its mode starts out as Standby, the chip's
// power-on mode.
func NewHandle(radio lorarx.Radio, opts Opts) *Handle {
	h := &Handle{radio: radio, log: lorarx.Prefixed(opts.Logger, "receiver: ")}
	h.mode.Store(uint32(lorarx.ModeStandby))
	return h
}

// Mode returns the mode most recently entered successfully.
func (h *Handle) Mode() lorarx.Mode { return lorarx.Mode(h.mode.Load()) }

// Armed reports whether the radio is in continuous receive.
func (h *Handle) Armed() bool { return h.Mode() == lorarx.ModeRxContinuous }

func (h *Handle) setMode(m lorarx.Mode) error {
	if err := h.radio.SetMode(m); err != nil {
		return err
	}
	h.mode.Store(uint32(m))
	return nil
}

// sourceBound reports whether an edge source can deliver interrupts to this handle.
func (h *Handle) sourceBound() bool {
	s := h.svc.Load()
	return s != nil && s.regime.Load() != regimeNone
}

// Payload returns the payload of the packet being delivered. The slice aliases the handle
// and must not be retained past the callback.
func (h *Handle) Payload() ([]byte, error) {
	if !h.inPass.Load() {
		return nil, ErrNoPacket
	}
	return h.payload[:h.n], nil
}

// HexView returns the hex rendering of the packet being delivered.
func (h *Handle) HexView() (*HexView, error) {
	if !h.inPass.Load() {
		return nil, ErrNoPacket
	}
	return &h.hex, nil
}

// PacketRssi returns the RSSI of the packet being delivered in dBm.
func (h *Handle) PacketRssi() (int16, error) {
	if !h.inPass.Load() {
		return 0, ErrNoPacket
	}
	return h.tel.Rssi, h.tel.rssiErr
}

// PacketSnr returns the SNR of the packet being delivered in dB.
func (h *Handle) PacketSnr() (float32, error) {
	if !h.inPass.Load() {
		return 0, ErrNoPacket
	}
	return h.tel.Snr, h.tel.snrErr
}

// FrequencyError returns the carrier offset of the packet being delivered in Hz.
func (h *Handle) FrequencyError() (int32, error) {
	if !h.inPass.Load() {
		return 0, ErrNoPacket
	}
	return h.tel.FrequencyError, h.tel.feiErr
}

// Telemetry returns all the statistics of the packet being delivered. The error is only
// ErrNoPacket outside a callback; fields whose read failed are zero and reported by the
// returned Telemetry's Err.
func (h *Handle) Telemetry() (Telemetry, error) {
	if !h.inPass.Load() {
		return Telemetry{}, ErrNoPacket
	}
	return h.tel, nil
}

// extractPayload pulls the received frame out of the radio into the snapshot and renders
// its hex view. It returns the frame length, 0 meaning there was no frame.
func (h *Handle) extractPayload() (int, error) {
	n, err := h.radio.ReadPayload(h.payload[:])
	if err != nil {
		return 0, &ReadError{FieldPayload, err}
	}
	if n < 0 || n > MaxPayload {
		return 0, &ReadError{FieldPayload, ErrPayloadTooLong}
	}
	h.n = n
	if err := h.hex.Render(h.payload[:n]); err != nil {
		return 0, &ReadError{FieldPayload, err}
	}
	return n, nil
}

// clearPacket drops the snapshot at the end of a pass.
func (h *Handle) clearPacket() {
	h.inPass.Store(false)
	h.n = 0
	h.hex.reset()
	h.tel = Telemetry{}
}
