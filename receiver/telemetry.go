// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package receiver

import (
	"go.uber.org/multierr"

	"github.com/tve/lorarx"
)

// Telemetry holds the link statistics of one received packet. A field whose read failed is
// left at zero and its error is kept.
type Telemetry struct {
	Rssi           int16   // dBm
	Snr            float32 // dB
	FrequencyError int32   // Hz

	rssiErr, snrErr, feiErr error
}

// Err returns all the read failures, combined, or nil.
func (t *Telemetry) Err() error {
	return multierr.Combine(t.rssiErr, t.snrErr, t.feiErr)
}

// decodeTelemetry performs the three packet statistics reads. Each read is independent: a
// failure is recorded and the remaining reads proceed.
func decodeTelemetry(r lorarx.Radio) Telemetry {
	var t Telemetry
	var err error
	if t.Rssi, err = r.PacketRssi(); err != nil {
		t.Rssi, t.rssiErr = 0, &ReadError{FieldRssi, err}
	}
	if t.Snr, err = r.PacketSnr(); err != nil {
		t.Snr, t.snrErr = 0, &ReadError{FieldSnr, err}
	}
	if t.FrequencyError, err = r.FrequencyError(); err != nil {
		t.FrequencyError, t.feiErr = 0, &ReadError{FieldFrequencyError, err}
	}
	return t
}
