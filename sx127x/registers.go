// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx127x

// LoRa mode register addresses.
const (
	REG_FIFO        = 0x00
	REG_OPMODE      = 0x01
	REG_FRFMSB      = 0x06
	REG_FRFMID      = 0x07
	REG_FRFLSB      = 0x08
	REG_LNA         = 0x0C
	REG_FIFOPTR     = 0x0D
	REG_FIFOTXBASE  = 0x0E
	REG_FIFORXBASE  = 0x0F
	REG_FIFORXCURR  = 0x10
	REG_IRQMASK     = 0x11
	REG_IRQFLAGS    = 0x12
	REG_RXBYTES     = 0x13
	REG_MODEMSTAT   = 0x18
	REG_PKTSNR      = 0x19
	REG_PKTRSSI     = 0x1A
	REG_MODEMCONF1  = 0x1D
	REG_MODEMCONF2  = 0x1E
	REG_PREAMBLEMSB = 0x20
	REG_PREAMBLELSB = 0x21
	REG_PAYLENGTH   = 0x22
	REG_PAYMAX      = 0x23
	REG_MODEMCONF3  = 0x26
	REG_FEIMSB      = 0x28
	REG_FEIMID      = 0x29
	REG_FEILSB      = 0x2A
	REG_DETECTOPT   = 0x31
	REG_DETECTTHR   = 0x37
	REG_SYNC        = 0x39
	REG_DIOMAPPING1 = 0x40
	REG_DIOMAPPING2 = 0x41
	REG_VERSION     = 0x42
)

const (
	OPMODE_LORA = 0x80 // LoRa long range mode
	OPMODE_LF   = 0x08 // access low frequency registers
)

// LNA register fields.
const (
	LNA_GAIN_MASK     = 0xE0
	LNA_BOOST_HF_MASK = 0x03
	LNA_BOOST_HF_ON   = 0x03
)

// Modem config fields.
const (
	CONF1_BW_MASK       = 0xF0
	CONF1_CR_MASK       = 0x0E
	CONF1_IMPLICIT      = 0x01
	CONF2_SF_MASK       = 0xF0
	CONF2_CRC_ON        = 0x04
	CONF3_LDRO          = 0x08 // low data rate optimize
	CONF3_AGC_AUTO      = 0x04
	DIO0_RXDONE         = 0x00 // DIO mapping 1, DIO0=00
	DIO0_MASK           = 0xC0
	DETECTOPT_SF6       = 0x05
	DETECTOPT_SF7_12    = 0x03
	DETECTTHR_SF6       = 0x0C
	DETECTTHR_SF7_12    = 0x0A
	DETECTOPT_KEEP_MASK = 0xF8
)

// The chip's crystal frequency and the frequency above which the HF port is used.
const (
	oscFreq      = 32000000
	lowFreqLimit = 525000000
)

// Version register value of an SX1276/77/78/79.
const chipVersion = 0x12

// Maximum payload that fits into the FIFO.
const maxPayload = 255
