// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package receiver

import (
	"errors"
	"fmt"
)

var (
	// ErrArmed is returned by Configure when the handle is already in continuous receive.
	ErrArmed = errors.New("receiver: handle is armed")
	// ErrNoEdgeSource is returned when arming is attempted before an Interrupt or Poller
	// has been bound to the handle's servicer.
	ErrNoEdgeSource = errors.New("receiver: no edge source bound")
	// ErrRegimeMixed is returned when a second edge source is bound to a servicer.
	ErrRegimeMixed = errors.New("receiver: servicer already bound to an edge source")
	// ErrNoPacket is returned by the packet accessors outside of a receive callback.
	ErrNoPacket = errors.New("receiver: no packet")
	// ErrPayloadTooLong is returned when a frame exceeds MaxPayload bytes.
	ErrPayloadTooLong = errors.New("receiver: payload too long")
	// ErrNoCallback is returned by Configure when no callback is given.
	ErrNoCallback = errors.New("receiver: nil callback")
)

// Step identifies one stage of the configuration sequence.
type Step uint8

const (
	StepValidate Step = iota
	StepSleep
	StepFrequency
	StepResetFifo
	StepLnaBoost
	StepStandby
	StepLnaGain
	StepBandwidth
	StepHeaderMode
	StepSpreadingFactor
	StepSyncWord
	StepPreambleLength
	StepCallback
	StepReceive
)

var stepNames = [...]string{"validate", "sleep", "frequency", "reset-fifo", "lna-boost",
	"standby", "lna-gain", "bandwidth", "header-mode", "spreading-factor", "sync-word",
	"preamble-length", "callback", "receive"}

func (s Step) String() string {
	if int(s) < len(stepNames) {
		return stepNames[s]
	}
	return fmt.Sprintf("step(%d)", uint8(s))
}

// ConfigError reports the configuration step that failed and why.
type ConfigError struct {
	Step Step
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("receiver: configure %s: %v", e.Step, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StepOf returns the failed step if err is or wraps a *ConfigError.
func StepOf(err error) (Step, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Step, true
	}
	return 0, false
}

// Field identifies what a servicing pass was reading when it failed.
type Field uint8

const (
	FieldFlags Field = iota
	FieldPayload
	FieldRssi
	FieldSnr
	FieldFrequencyError
)

var fieldNames = [...]string{"irq flags", "payload", "rssi", "snr", "frequency error"}

func (f Field) String() string {
	if int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

// ReadError is a register or FIFO read that failed while servicing an interrupt. It never
// stops future servicing.
type ReadError struct {
	Field Field
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("receiver: can't read %s: %v", e.Field, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
