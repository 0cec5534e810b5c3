// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package lorarx

import "fmt"

// Mode is a radio operating mode.
type Mode byte

const (
	ModeSleep Mode = iota
	ModeStandby
	ModeFSTx         // frequency synthesis TX
	ModeTx           // TX
	ModeFSRx         // frequency synthesis RX
	ModeRxContinuous // RX continuous
	ModeRxSingle     // RX single
	ModeCAD          // channel activity detection
)

var modeNames = [...]string{"sleep", "standby", "fs-tx", "tx", "fs-rx", "rx-cont", "rx-single", "cad"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", byte(m))
}

// Bandwidth is a LoRa signal bandwidth in Hz. Only the values listed below are supported by the
// chip.
type Bandwidth uint32

const (
	BW7_8   Bandwidth = 7800
	BW10_4  Bandwidth = 10400
	BW15_6  Bandwidth = 15600
	BW20_8  Bandwidth = 20800
	BW31_25 Bandwidth = 31250
	BW41_7  Bandwidth = 41700
	BW62_5  Bandwidth = 62500
	BW125   Bandwidth = 125000
	BW250   Bandwidth = 250000
	BW500   Bandwidth = 500000
)

// Bandwidths lists the supported bandwidths in register order.
var Bandwidths = []Bandwidth{BW7_8, BW10_4, BW15_6, BW20_8, BW31_25, BW41_7, BW62_5, BW125,
	BW250, BW500}

// SpreadingFactor is the LoRa spreading factor, 6 through 12.
type SpreadingFactor uint8

const (
	SF6  SpreadingFactor = 6
	SF7  SpreadingFactor = 7
	SF8  SpreadingFactor = 8
	SF9  SpreadingFactor = 9
	SF10 SpreadingFactor = 10
	SF11 SpreadingFactor = 11
	SF12 SpreadingFactor = 12
)

// LnaGain selects the low-noise amplifier gain. LnaGainAuto hands gain control to the chip's
// AGC, G1 is the highest gain and G6 the lowest.
type LnaGain uint8

const (
	LnaGainAuto LnaGain = iota
	LnaGainG1
	LnaGainG2
	LnaGainG3
	LnaGainG4
	LnaGainG5
	LnaGainG6
)

// CodingRate is the LoRa forward error correction rate, 4/5 through 4/8.
type CodingRate uint8

const (
	CR4_5 CodingRate = iota + 1
	CR4_6
	CR4_7
	CR4_8
)

// Header describes the LoRa header mode. The zero value selects explicit header mode where
// length, coding rate and CRC presence travel in the packet header. In implicit mode they are
// fixed on both ends and must be supplied here.
type Header struct {
	Implicit   bool
	Length     uint8      // payload length, implicit mode only
	CRC        bool       // payload CRC present, implicit mode only
	CodingRate CodingRate // implicit mode only
}

// IRQ holds the radio's interrupt flags.
type IRQ uint8

const (
	IRQCADDetect IRQ = 1 << iota
	IRQFHSSChange
	IRQCADDone
	IRQTxDone
	IRQValidHeader
	IRQCRCError
	IRQRxDone
	IRQRxTimeout
)

// Radio is the set of operations the receive pipeline performs on a radio. Every operation
// performs bus transactions and reports bus or parameter errors.
type Radio interface {
	SetMode(Mode) error
	SetFrequency(hz uint32) error
	ResetFifo() error
	SetLnaBoost(on bool) error
	SetLnaGain(LnaGain) error
	SetBandwidth(Bandwidth) error
	SetHeaderMode(Header) error
	SetSpreadingFactor(SpreadingFactor) error
	SetSyncWord(byte) error
	SetPreambleLength(symbols uint16) error

	// IRQFlags reads and clears the pending interrupt flags.
	IRQFlags() (IRQ, error)
	// ReadPayload copies the most recently received frame into buf and returns its length.
	// A frame that failed its CRC reads as length 0.
	ReadPayload(buf []byte) (int, error)
	PacketRssi() (int16, error)
	PacketSnr() (float32, error)
	FrequencyError() (int32, error)
}

// LogPrintf is a function used by the driver and the receive pipeline to print logging info.
type LogPrintf func(format string, v ...interface{})

// Discard is a LogPrintf that drops everything.
func Discard(format string, v ...interface{}) {}

// Prefixed returns a LogPrintf prepending prefix to every format, or Discard if l is nil.
func Prefixed(l LogPrintf, prefix string) LogPrintf {
	if l == nil {
		return Discard
	}
	return func(format string, v ...interface{}) { l(prefix+format, v...) }
}
