// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

//go:build tinygo && rp2040

// Lorarx-pico is the receiver firmware for an RP2040 board with an SX127x radio module. DIO0
// raises a pin interrupt whose handler only queues work; the servicing pass runs in the main
// goroutine and prints each packet on the USB console.
package main

import (
	"context"
	"log"
	"machine"
	"time"

	"tinygo.org/x/drivers"

	"github.com/tve/lorarx/receiver"
	"github.com/tve/lorarx/sx127x"
)

// Wiring of the radio module.
const (
	pinSCK  = machine.GP18
	pinSDO  = machine.GP19
	pinSDI  = machine.GP16
	pinCS   = machine.GP17
	pinDIO0 = machine.GP20
)

// csBus frames each transaction with the chip select the radio needs.
type csBus struct {
	spi drivers.SPI
	cs  machine.Pin
}

func (b *csBus) Tx(w, r []byte) error {
	b.cs.Low()
	err := b.spi.Tx(w, r)
	b.cs.High()
	return err
}

// dio0 is the radio's interrupt line.
type dio0 struct {
	p machine.Pin
}

func (d dio0) SetInterrupt(handler func()) error {
	return d.p.SetInterrupt(machine.PinRising, func(machine.Pin) { handler() })
}

func (d dio0) Asserted() bool { return d.p.Get() }

func main() {
	time.Sleep(2 * time.Second) // give the USB console time to attach

	spi := machine.SPI0
	if err := spi.Configure(machine.SPIConfig{
		Frequency: 500000,
		SCK:       pinSCK,
		SDO:       pinSDO,
		SDI:       pinSDI,
		Mode:      0,
	}); err != nil {
		log.Fatalf("cannot configure SPI: %s", err)
	}
	pinCS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinCS.High()
	pinDIO0.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})

	radio, err := sx127x.New(&csBus{spi: spi, cs: pinCS}, sx127x.Opts{})
	if err != nil {
		log.Fatalf("cannot open radio: %s", err)
	}
	h := receiver.NewHandle(radio, receiver.Opts{Logger: log.Printf})
	s := receiver.NewServicer(h)
	intr, err := receiver.NewInterrupt(dio0{pinDIO0}, s)
	if err != nil {
		log.Fatalf("cannot attach DIO0: %s", err)
	}

	received := func(h *receiver.Handle) {
		hex, err := h.HexView()
		if err != nil {
			return
		}
		tel, err := h.Telemetry()
		if err != nil {
			return
		}
		if err := tel.Err(); err != nil {
			log.Printf("packet telemetry incomplete: %s", err)
		}
		log.Printf("received: %d %s rssi: %d snr: %f freq_error: %d",
			hex.Len()/2, hex, tel.Rssi, tel.Snr, tel.FrequencyError)
	}
	if err := receiver.Configure(h, receiver.DefaultConfig(), received); err != nil {
		log.Fatalf("%s", err)
	}
	log.Printf("receiver ready")

	// A rising edge that came in before the handler was attached is not seen again.
	if (dio0{pinDIO0}).Asserted() {
		s.HandleInterrupt()
	}
	intr.Run(context.Background())
}
