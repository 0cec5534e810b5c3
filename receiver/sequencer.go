// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package receiver

import (
	"errors"
	"fmt"

	"github.com/tve/lorarx"
)

// RadioConfig holds the receive parameters applied by Configure.
type RadioConfig struct {
	Frequency       uint32 // carrier frequency in Hz
	Bandwidth       lorarx.Bandwidth
	SpreadingFactor lorarx.SpreadingFactor
	SyncWord        byte
	PreambleLength  uint16 // symbols
	LnaGain         lorarx.LnaGain
	LnaBoost        bool          // HF port LNA current boost
	Header          lorarx.Header // zero value is explicit header mode
}

// DefaultConfig returns the settings of the 433MHz test network: 437.2MHz, 125kHz, SF9,
// private sync word, 8 symbol preamble, and a fixed LNA gain with boost.
func DefaultConfig() RadioConfig {
	return RadioConfig{
		Frequency:       437200012,
		Bandwidth:       lorarx.BW125,
		SpreadingFactor: lorarx.SF9,
		SyncWord:        18,
		PreambleLength:  8,
		LnaGain:         lorarx.LnaGainG4,
		LnaBoost:        true,
	}
}

// Validate checks the parameters against what the chip supports.
func (c RadioConfig) Validate() error {
	if c.Frequency < 137000000 || c.Frequency > 1020000000 {
		return fmt.Errorf("frequency %dHz out of range 137-1020MHz", c.Frequency)
	}
	bwOK := false
	for _, bw := range lorarx.Bandwidths {
		bwOK = bwOK || bw == c.Bandwidth
	}
	if !bwOK {
		return fmt.Errorf("unsupported bandwidth %dHz", c.Bandwidth)
	}
	if c.SpreadingFactor < lorarx.SF6 || c.SpreadingFactor > lorarx.SF12 {
		return fmt.Errorf("spreading factor %d out of range 6-12", c.SpreadingFactor)
	}
	if c.SpreadingFactor == lorarx.SF6 && !c.Header.Implicit {
		return errors.New("spreading factor 6 requires implicit header mode")
	}
	if c.PreambleLength < 6 {
		return fmt.Errorf("preamble length %d too short, must be at least 6", c.PreambleLength)
	}
	if c.LnaGain > lorarx.LnaGainG6 {
		return fmt.Errorf("invalid LNA gain %d", c.LnaGain)
	}
	if c.Header.Implicit {
		if c.Header.Length == 0 {
			return errors.New("implicit header mode requires a payload length")
		}
		if c.Header.CodingRate < lorarx.CR4_5 || c.Header.CodingRate > lorarx.CR4_8 {
			return fmt.Errorf("invalid coding rate %d", c.Header.CodingRate)
		}
	}
	return nil
}

// Configure applies cfg to the handle's radio and registers cb, then arms continuous receive.
// It stops at the first step that fails and returns a *ConfigError naming it, leaving the
// radio in whatever state the earlier steps produced. An edge source must be bound to the
// handle's servicer before calling Configure since packets may arrive as soon as the radio
// is armed.
func Configure(h *Handle, cfg RadioConfig, cb Callback) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Armed() {
		return ErrArmed
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{StepValidate, err}
	}

	r := h.radio
	steps := []struct {
		step Step
		fn   func() error
	}{
		{StepSleep, func() error { return h.setMode(lorarx.ModeSleep) }},
		{StepFrequency, func() error { return r.SetFrequency(cfg.Frequency) }},
		{StepResetFifo, r.ResetFifo},
		{StepLnaBoost, func() error { return r.SetLnaBoost(cfg.LnaBoost) }},
		{StepStandby, func() error { return h.setMode(lorarx.ModeStandby) }},
		{StepLnaGain, func() error { return r.SetLnaGain(cfg.LnaGain) }},
		{StepBandwidth, func() error { return r.SetBandwidth(cfg.Bandwidth) }},
		{StepHeaderMode, func() error { return r.SetHeaderMode(cfg.Header) }},
		{StepSpreadingFactor, func() error { return r.SetSpreadingFactor(cfg.SpreadingFactor) }},
		{StepSyncWord, func() error { return r.SetSyncWord(cfg.SyncWord) }},
		{StepPreambleLength, func() error { return r.SetPreambleLength(cfg.PreambleLength) }},
		{StepCallback, func() error {
			if cb == nil {
				return ErrNoCallback
			}
			h.cb = cb
			return nil
		}},
		{StepReceive, func() error {
			if !h.sourceBound() {
				return ErrNoEdgeSource
			}
			return h.setMode(lorarx.ModeRxContinuous)
		}},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			h.log("configure failed at %s: %s", s.step, err)
			return &ConfigError{s.step, err}
		}
	}
	h.log("armed at %dHz bw=%dHz sf=%d", cfg.Frequency, cfg.Bandwidth, cfg.SpreadingFactor)
	return nil
}
