// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// Lorarx-check probes the SX127x radio, or both radios behind an SPI chip select mux, and
// reports whether each one answers with the expected silicon version. With --regs it also dumps
// the register file.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/tve/lorarx"
	"github.com/tve/lorarx/spimux"
	"github.com/tve/lorarx/sx127x"
)

func panicIf(err error) {
	if err != nil {
		panic(err)
	}
}

// check probes one radio and reports whether it was found.
func check(name string, bus sx127x.Bus, regs bool) bool {
	log.Printf("Checking %s...", name)
	var logger lorarx.LogPrintf
	if regs {
		logger = log.Printf
	}
	d, err := sx127x.New(bus, sx127x.Opts{Logger: logger})
	if err != nil {
		log.Printf("  oops: %s", err)
		return false
	}
	v, err := d.Version()
	panicIf(err)
	if v == 0x12 {
		log.Printf("  found sx1276: OK!")
	} else {
		log.Printf("  oops, got %#x instead of 0x12", v)
	}
	if regs {
		d.LogRegs()
	}
	return v == 0x12
}

func main() {
	spiDev := pflag.String("spi", "/dev/spidev0.0", "SPI device")
	speed := pflag.Int64("speed", 1000000, "SPI clock in Hz")
	selPinName := pflag.String("mux-pin", "", "chip select mux pin name, checks both radios")
	regs := pflag.Bool("regs", false, "dump the radio registers")
	pflag.Parse()

	_, err := host.Init()
	panicIf(err)

	port, err := spireg.Open(*spiDev)
	panicIf(err)
	defer port.Close()
	conn, err := port.Connect(physic.Frequency(*speed)*physic.Hertz, spi.Mode0, 8)
	panicIf(err)

	ok := true
	if *selPinName == "" {
		ok = check(conn.String(), conn, *regs)
	} else {
		selPin := gpioreg.ByName(*selPinName)
		if selPin == nil {
			panic("Cannot open pin " + *selPinName)
		}
		radio0, radio1 := spimux.New(conn, selPin)
		for _, r := range []*spimux.Conn{radio0, radio1} {
			ok = check(r.String(), r, *regs) && ok
		}
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "radio check failed")
		os.Exit(1)
	}
}
