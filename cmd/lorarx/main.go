// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// Lorarx receives LoRa packets with an SX127x radio attached to a Linux SBC, logs each one, and
// optionally publishes them to an MQTT broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/rpi"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/tve/lorarx"
	"github.com/tve/lorarx/edge"
	"github.com/tve/lorarx/receiver"
	"github.com/tve/lorarx/spimux"
	"github.com/tve/lorarx/sx127x"
)

// gateway is the receive callback's state.
type gateway struct {
	count atomic.Uint64
	pkts  chan *RxPacket // nil when not publishing
}

// received is the receiver.Callback. It runs inside a servicing pass, so it copies the packet
// out and hands it to the publisher without blocking.
func (g *gateway) received(h *receiver.Handle) {
	pkt, err := packetFrom(h, time.Now())
	if pkt == nil {
		log.Printf("cannot read packet: %s", err)
		return
	}
	if err != nil {
		log.Printf("packet telemetry incomplete: %s", err)
	}
	g.count.Add(1)
	log.Printf("received: %d %s rssi: %d snr: %f freq_error: %d",
		pkt.Len, pkt.Hex, pkt.Rssi, pkt.Snr, pkt.Fei)
	if g.pkts == nil {
		return
	}
	select {
	case g.pkts <- pkt:
	default:
		log.Printf("publish queue full, dropping packet")
	}
}

// setupLogging directs the log to a rotated file if one is configured.
func setupLogging(conf LogConfig) {
	if conf.File == "" {
		return
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   conf.File,
		MaxSize:    conf.MaxSizeMB,
		MaxBackups: conf.MaxBackups,
		MaxAge:     conf.MaxAgeDays,
		Compress:   true,
	})
}

// openBus opens the SPI port and, if a mux pin is configured, selects the radio behind it. The
// returned function closes the port.
func openBus(conf SpiConfig) (sx127x.Bus, func() error, error) {
	port, err := spireg.Open(conf.Dev)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open SPI %s: %w", conf.Dev, err)
	}
	conn, err := port.Connect(physic.Frequency(conf.SpeedHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("cannot configure SPI %s: %w", conf.Dev, err)
	}
	if conf.MuxPin == "" {
		return conn, port.Close, nil
	}
	selPin := gpioreg.ByName(conf.MuxPin)
	if selPin == nil {
		port.Close()
		return nil, nil, fmt.Errorf("cannot open pin %s", conf.MuxPin)
	}
	radio0, radio1 := spimux.New(conn, selPin)
	if conf.MuxValue == 1 {
		return radio1, port.Close, nil
	}
	return radio0, port.Close, nil
}

// openSource binds the servicer to the DIO0 line in the configured regime. The returned
// function releases the pin, which also unblocks a Poller waiting forever.
func openSource(conf *Config, s *receiver.Servicer) (receiver.Source, func() error, error) {
	if conf.Edge.Mode == modeInterrupt {
		if err := embd.InitGPIO(); err != nil {
			return nil, nil, fmt.Errorf("cannot init embd GPIO: %w", err)
		}
		pin, err := edge.OpenWatched(embdPinKey(conf.Edge.Pin))
		if err != nil {
			embd.CloseGPIO()
			return nil, nil, err
		}
		src, err := receiver.NewInterrupt(pin, s)
		closer := func() error { return multierr.Append(pin.Close(), embd.CloseGPIO()) }
		if err != nil {
			closer()
			return nil, nil, err
		}
		return src, closer, nil
	}

	pin, err := edge.Open(conf.Edge.Pin)
	if err != nil {
		return nil, nil, err
	}
	src, err := receiver.NewPoller(pin, s, conf.PollOpts())
	if err != nil {
		pin.Close()
		return nil, nil, err
	}
	return src, pin.Close, nil
}

// run brings up the radio and receives until the context is cancelled.
func run(ctx context.Context, conf *Config) error {
	var debug lorarx.LogPrintf
	if conf.Log.Debug {
		debug = log.Printf
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("cannot init periph host: %w", err)
	}
	bus, closeBus, err := openBus(conf.Spi)
	if err != nil {
		return err
	}
	defer closeBus()

	log.Printf("Opening radio")
	radio, err := sx127x.New(bus, sx127x.Opts{Logger: debug})
	if err != nil {
		return err
	}
	if debug != nil {
		radio.LogRegs()
	}

	h := receiver.NewHandle(radio, receiver.Opts{Logger: log.Printf})
	s := receiver.NewServicer(h)
	src, closeSrc, err := openSource(conf, s)
	if err != nil {
		return err
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := closeSrc(); err != nil {
				log.Printf("cannot release %s: %s", conf.Edge.Pin, err)
			}
		})
	}
	defer release()

	gw := &gateway{}
	var pub *mq
	if conf.Mqtt.Host != "" {
		if pub, err = newMQ(conf.Mqtt, debug); err != nil {
			return fmt.Errorf("cannot connect to MQTT broker: %w", err)
		}
		gw.pkts = make(chan *RxPacket, 16)
	}

	// Nothing is serviced until the source runs, so packets can't reach gw before then.
	if err := receiver.Configure(h, conf.RadioConfig(), gw.received); err != nil {
		if pub != nil {
			pub.conn.Disconnect(250)
		}
		return err
	}
	log.Printf("Gateway is ready, %s on %s", conf.Edge.Mode, conf.Edge.Pin)

	g, ctx := errgroup.WithContext(ctx)
	if pub != nil {
		g.Go(func() error { return pub.run(ctx, gw.pkts) })
	}
	g.Go(func() error { return src.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		release()
		return nil
	})
	err = g.Wait()

	st := s.Stats()
	log.Printf("Stopped after %d packets: %d edges, %d spurious, %d empty, %d read failures, %d dropped",
		gw.count.Load(), st.Edges, st.Spurious, st.Empty, st.ReadFailures, st.ISRDrops)
	return err
}

// exitCode maps a run failure to the process exit status: 1 when the radio rejected its
// configuration, 2 for everything else.
func exitCode(err error) int {
	var ce *receiver.ConfigError
	if errors.As(err, &ce) {
		return 1
	}
	return 2
}

func main() {
	conf, err := Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	if conf.PrintConfig {
		out, err := conf.YAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}
	setupLogging(conf.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, conf); err != nil {
		log.Printf("Exiting due to error: %s", err)
		stop()
		os.Exit(exitCode(err))
	}
}
