// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// The SX127x package interfaces with a Semtech SX1276/77/78/79 LoRa radio connected to an SPI bus,
// such as the HopeRF RFM95/96/97/98 modules.
//
// The driver only performs register operations: it changes modes, programs the modem parameters,
// reads and clears the interrupt flags, and pulls received frames and their link statistics out
// of the chip. It implements lorarx.Radio and leaves interrupt handling, sequencing, and
// dispatching of received packets to the receiver package. Note that the SX1276, SX1277, SX1278,
// and SX1279 all function identically and only differ in which RF bands they support.
//
// Every register access returns the bus error, if any. Unlike a radio with a single persistent
// error, the caller decides which failures are fatal: the configuration sequence aborts on the
// first one while the receive path reports them and carries on.
//
// Limitations
//
// This driver uses the SX127x in LoRa mode only and does not transmit.
//
// The methods on the Device object are not concurrency safe. The receiver package guarantees
// that configuration completes before the receiver is armed and that interrupts are serviced one
// at a time.
package sx127x

import (
	"errors"
	"fmt"

	"github.com/tve/lorarx"
)

// Bus is the SPI connection to the radio. It must assert chip select for the duration of each
// Tx call. A periph.io spi.Conn satisfies it directly.
type Bus interface {
	Tx(w, r []byte) error
}

// Device represents a Semtech SX127x radio in LoRa mode.
type Device struct {
	bus  Bus              // SPI device to access the radio
	log  lorarx.LogPrintf // function to use for logging
	freq uint32           // carrier frequency, selects the LF or HF RSSI offset
	bw   lorarx.Bandwidth // current bandwidth, 0 if not yet programmed
	sf   lorarx.SpreadingFactor
	hdr  lorarx.Header
	irq  lorarx.IRQ // flags returned by the most recent IRQFlags
	// buffers for FIFO reads so the receive path doesn't allocate
	wBuf, rBuf [maxPayload + 1]byte
}

// Opts contains options used when initializing a Device.
type Opts struct {
	Logger lorarx.LogPrintf // function to use for logging, nil disables logging
}

var (
	errNotDetected   = errors.New("sx127x: radio not detected")
	errSF6Implicit   = errors.New("sx127x: SF6 can only be used with implicit header mode")
	errShortBuffer   = errors.New("sx127x: buffer too small for received frame")
	errPreambleShort = errors.New("sx127x: preamble length too short, must be at least 6")
)

// New initializes a Device given a Bus. It verifies that it can communicate with the chip but
// does not change its operating mode.
func New(bus Bus, opts Opts) (*Device, error) {
	d := &Device{bus: bus, log: lorarx.Prefixed(opts.Logger, "sx127x: ")}

	// Try to synchronize communication with the sx127x.
	sync := func(pattern byte) error {
		for n := 10; n > 0; n-- {
			if err := d.writeReg(REG_SYNC, pattern); err != nil {
				return fmt.Errorf("sx127x: %w", err)
			}
			// Read same thing back, we hope...
			v, err := d.readReg(REG_SYNC)
			if err != nil {
				return fmt.Errorf("sx127x: %w", err)
			}
			if v == pattern {
				return nil
			}
		}
		return errNotDetected
	}
	if err := sync(0xaa); err != nil {
		return nil, err
	}
	if err := sync(0x55); err != nil {
		return nil, err
	}

	v, err := d.Version()
	if err != nil {
		return nil, err
	}
	d.log("version %#x", v)
	if v != chipVersion {
		d.log("unexpected version %#x, expected %#x", v, chipVersion)
	}
	return d, nil
}

// Version returns the chip's silicon revision, 0x12 for production SX1276 parts.
func (d *Device) Version() (byte, error) {
	return d.readReg(REG_VERSION)
}

// SetMode changes the radio's operating mode, and when entering a receive mode it maps the
// RxDone interrupt onto DIO0.
func (d *Device) SetMode(mode lorarx.Mode) error {
	if mode > lorarx.ModeCAD {
		return fmt.Errorf("sx127x: invalid mode %d", mode)
	}
	if mode == lorarx.ModeRxContinuous || mode == lorarx.ModeRxSingle {
		if err := d.modifyReg(REG_DIOMAPPING1, DIO0_MASK, DIO0_RXDONE); err != nil {
			return err
		}
	}
	op := OPMODE_LORA | byte(mode)
	if d.freq < lowFreqLimit {
		op |= OPMODE_LF
	}
	if err := d.writeReg(REG_OPMODE, op); err != nil {
		return err
	}
	d.log("mode %s", mode)
	return nil
}

// SetFrequency programs the carrier frequency in Hz.
func (d *Device) SetFrequency(hz uint32) error {
	if hz < 137000000 || hz > 1020000000 {
		return fmt.Errorf("sx127x: frequency %dHz out of range", hz)
	}
	// Frequency steps are in units of 32Mhz >> 19 = 61.03515625 Hz.
	frf := (uint64(hz) << 19) / oscFreq
	if err := d.writeReg(REG_FRFMSB, byte(frf>>16), byte(frf>>8), byte(frf)); err != nil {
		return err
	}
	d.freq = hz
	d.log("frequency %dHz -> %#06x", hz, frf)
	return nil
}

// ResetFifo points the TX and RX base addresses at the start of the FIFO so a received frame can
// use all 256 bytes.
func (d *Device) ResetFifo() error {
	return d.writeReg(REG_FIFOTXBASE, 0, 0)
}

// SetLnaBoost turns the 150% LNA current boost of the HF port on or off.
func (d *Device) SetLnaBoost(on bool) error {
	var v byte
	if on {
		v = LNA_BOOST_HF_ON
	}
	return d.modifyReg(REG_LNA, LNA_BOOST_HF_MASK, v)
}

// SetLnaGain sets a fixed LNA gain, or enables the AGC for LnaGainAuto.
func (d *Device) SetLnaGain(gain lorarx.LnaGain) error {
	if gain == lorarx.LnaGainAuto {
		return d.modifyReg(REG_MODEMCONF3, CONF3_AGC_AUTO, CONF3_AGC_AUTO)
	}
	if gain > lorarx.LnaGainG6 {
		return fmt.Errorf("sx127x: invalid LNA gain %d", gain)
	}
	if err := d.modifyReg(REG_LNA, LNA_GAIN_MASK, byte(gain)<<5); err != nil {
		return err
	}
	return d.modifyReg(REG_MODEMCONF3, CONF3_AGC_AUTO, 0)
}

// SetBandwidth sets the signal bandwidth, which must be one of lorarx.Bandwidths.
func (d *Device) SetBandwidth(bw lorarx.Bandwidth) error {
	idx := bandwidthIndex(bw)
	if idx < 0 {
		return fmt.Errorf("sx127x: unsupported bandwidth %dHz", bw)
	}
	if err := d.modifyReg(REG_MODEMCONF1, CONF1_BW_MASK, byte(idx)<<4); err != nil {
		return err
	}
	d.bw = bw
	return d.updateLdro()
}

// SetHeaderMode selects explicit or implicit header mode. Implicit mode also programs the fixed
// payload length, coding rate, and CRC presence.
func (d *Device) SetHeaderMode(h lorarx.Header) error {
	if !h.Implicit {
		if err := d.modifyReg(REG_MODEMCONF1, CONF1_IMPLICIT, 0); err != nil {
			return err
		}
		d.hdr = h
		return nil
	}
	if h.Length == 0 {
		return errors.New("sx127x: implicit header mode requires a payload length")
	}
	if h.CodingRate < lorarx.CR4_5 || h.CodingRate > lorarx.CR4_8 {
		return fmt.Errorf("sx127x: invalid coding rate %d", h.CodingRate)
	}
	conf1 := byte(h.CodingRate)<<1 | CONF1_IMPLICIT
	if err := d.modifyReg(REG_MODEMCONF1, CONF1_CR_MASK|CONF1_IMPLICIT, conf1); err != nil {
		return err
	}
	if err := d.writeReg(REG_PAYLENGTH, h.Length); err != nil {
		return err
	}
	var crc byte
	if h.CRC {
		crc = CONF2_CRC_ON
	}
	if err := d.modifyReg(REG_MODEMCONF2, CONF2_CRC_ON, crc); err != nil {
		return err
	}
	d.hdr = h
	return nil
}

// SetSpreadingFactor sets the spreading factor along with the detection optimization that goes
// with it. SF6 is only valid in implicit header mode, so the header mode must be set first.
func (d *Device) SetSpreadingFactor(sf lorarx.SpreadingFactor) error {
	if sf < lorarx.SF6 || sf > lorarx.SF12 {
		return fmt.Errorf("sx127x: invalid spreading factor %d", sf)
	}
	opt, thr := byte(DETECTOPT_SF7_12), byte(DETECTTHR_SF7_12)
	if sf == lorarx.SF6 {
		if !d.hdr.Implicit {
			return errSF6Implicit
		}
		opt, thr = DETECTOPT_SF6, DETECTTHR_SF6
	}
	if err := d.modifyReg(REG_DETECTOPT, ^byte(DETECTOPT_KEEP_MASK), opt); err != nil {
		return err
	}
	if err := d.writeReg(REG_DETECTTHR, thr); err != nil {
		return err
	}
	if err := d.modifyReg(REG_MODEMCONF2, CONF2_SF_MASK, byte(sf)<<4); err != nil {
		return err
	}
	d.sf = sf
	return d.updateLdro()
}

// SetSyncWord sets the LoRa sync word, 0x12 for private networks and 0x34 for LoRaWAN.
func (d *Device) SetSyncWord(sync byte) error {
	return d.writeReg(REG_SYNC, sync)
}

// SetPreambleLength sets the number of preamble symbols, not counting the 4.25 symbols the
// chip adds.
func (d *Device) SetPreambleLength(symbols uint16) error {
	if symbols < 6 {
		return errPreambleShort
	}
	return d.writeReg(REG_PREAMBLEMSB, byte(symbols>>8), byte(symbols))
}

// updateLdro turns on the low data rate optimization when a symbol lasts longer than 16ms, as
// the datasheet mandates. It does nothing until both bandwidth and spreading factor are known.
func (d *Device) updateLdro() error {
	if d.bw == 0 || d.sf == 0 {
		return nil
	}
	var v byte
	symbolMicros := (uint64(1) << d.sf) * 1000000 / uint64(d.bw)
	if symbolMicros > 16000 {
		v = CONF3_LDRO
	}
	return d.modifyReg(REG_MODEMCONF3, CONF3_LDRO, v)
}

// IRQFlags reads the interrupt flags and clears the ones that are set.
func (d *Device) IRQFlags() (lorarx.IRQ, error) {
	v, err := d.readReg(REG_IRQFLAGS)
	if err != nil {
		return 0, err
	}
	if v != 0 {
		if err := d.writeReg(REG_IRQFLAGS, v); err != nil {
			return 0, err
		}
	}
	d.irq = lorarx.IRQ(v)
	return d.irq, nil
}

// ReadPayload copies the last received frame out of the FIFO into buf and returns its length.
// A frame that failed its CRC check, as reported by the last IRQFlags, reads as length 0.
func (d *Device) ReadPayload(buf []byte) (int, error) {
	if d.irq&lorarx.IRQCRCError != 0 {
		d.log("rx crc error")
		return 0, nil
	}
	lenReg := byte(REG_RXBYTES)
	if d.hdr.Implicit {
		lenReg = REG_PAYLENGTH
	}
	v, err := d.readReg(lenReg)
	if err != nil {
		return 0, err
	}
	n := int(v)
	if n == 0 {
		return 0, nil
	}
	if n > len(buf) {
		return 0, errShortBuffer
	}
	ptr, err := d.readReg(REG_FIFORXCURR)
	if err != nil {
		return 0, err
	}
	if err := d.writeReg(REG_FIFOPTR, ptr); err != nil {
		return 0, err
	}
	d.wBuf[0] = REG_FIFO
	if err := d.bus.Tx(d.wBuf[:n+1], d.rBuf[:n+1]); err != nil {
		return 0, err
	}
	return copy(buf, d.rBuf[1:n+1]), nil
}

// PacketSnr returns the signal-to-noise ratio of the last received packet in dB.
func (d *Device) PacketSnr() (float32, error) {
	v, err := d.readReg(REG_PKTSNR)
	if err != nil {
		return 0, err
	}
	return float32(int8(v)) / 4, nil
}

// PacketRssi returns the RSSI of the last received packet in dBm. Below the noise floor the
// packet SNR is folded in as the datasheet describes.
func (d *Device) PacketRssi() (int16, error) {
	var buf [3]byte
	if err := d.bus.Tx([]byte{REG_PKTSNR, 0, 0}, buf[:]); err != nil {
		return 0, err
	}
	snr := int16(int8(buf[1]))
	raw := int16(buf[2])
	base := int16(-157)
	if d.freq < lowFreqLimit {
		base = -164
	}
	if snr >= 0 {
		return base + raw*16/15, nil
	}
	return base + raw + snr/4, nil
}

// FrequencyError returns the carrier offset of the last received packet in Hz.
func (d *Device) FrequencyError() (int32, error) {
	conf1, err := d.readReg(REG_MODEMCONF1)
	if err != nil {
		return 0, err
	}
	var buf [4]byte
	if err := d.bus.Tx([]byte{REG_FEIMSB, 0, 0, 0}, buf[:]); err != nil {
		return 0, err
	}
	raw := int32(buf[1]&0x0f)<<16 | int32(buf[2])<<8 | int32(buf[3])
	if raw&0x80000 != 0 {
		raw -= 1 << 20 // sign-extend 20 bits
	}
	idx := int(conf1 >> 4)
	if idx >= len(lorarx.Bandwidths) {
		return 0, fmt.Errorf("sx127x: invalid bandwidth setting %#x", conf1)
	}
	bw := float64(lorarx.Bandwidths[idx])
	return int32(float64(raw) * float64(1<<24) / oscFreq * (bw / 500000)), nil
}

// LogRegs is a debug helper function to print almost all the sx127x's registers.
func (d *Device) LogRegs() {
	var buf, regs [0x50]byte
	buf[0] = 1
	if err := d.bus.Tx(buf[:], regs[:]); err != nil {
		d.log("cannot read registers: %s", err)
		return
	}
	regs[0] = 0 // no real data there
	d.log("     0  1  2  3  4  5  6  7  8  9  A  B  C  D  E  F")
	for i := 0; i < len(regs); i += 16 {
		line := fmt.Sprintf("%02x:", i)
		for j := 0; j < 16 && i+j < len(regs); j++ {
			line += fmt.Sprintf(" %02x", regs[i+j])
		}
		d.log(line)
	}
}

func bandwidthIndex(bw lorarx.Bandwidth) int {
	for i, b := range lorarx.Bandwidths {
		if b == bw {
			return i
		}
	}
	return -1
}

// writeReg writes one or multiple registers starting at addr, the sx127x auto-increments (except
// for the FIFO register where that wouldn't be desirable).
func (d *Device) writeReg(addr byte, data ...byte) error {
	var wBuf, rBuf [4]byte
	if len(data) > len(wBuf)-1 {
		return fmt.Errorf("sx127x: register write of %d bytes too long", len(data))
	}
	wBuf[0] = addr | 0x80
	copy(wBuf[1:], data)
	return d.bus.Tx(wBuf[:len(data)+1], rBuf[:len(data)+1])
}

// readReg reads one register and returns its value.
func (d *Device) readReg(addr byte) (byte, error) {
	var buf [2]byte
	if err := d.bus.Tx([]byte{addr & 0x7f, 0}, buf[:]); err != nil {
		return 0, err
	}
	return buf[1], nil
}

// modifyReg replaces the bits of a register selected by mask with value.
func (d *Device) modifyReg(addr, mask, value byte) error {
	v, err := d.readReg(addr)
	if err != nil {
		return err
	}
	return d.writeReg(addr, v&^mask|value&mask)
}
