// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// The receiver package turns the receive-complete interrupts of a LoRa radio into packets
// delivered to a callback along with their RSSI, SNR, and frequency error.
//
// A Handle owns one lorarx.Radio. Configure programs it step by step and arms continuous
// receive, stopping at the first step that fails. Interrupts reach the handle's Servicer
// through one of two sources:
//
//   - Interrupt, for platforms where the GPIO driver calls a handler in interrupt context.
//     The handler only queues the event and Run services the queue.
//   - Poller, for hosts where a goroutine blocks waiting for the edge. Each edge is serviced
//     on the polling goroutine.
//
// Either way each servicing pass reads and clears the radio's interrupt flags and copies the
// frame out of the FIFO. It then reads the link statistics and calls the callback with the
// Handle, which reads the packet through its accessors. Read failures are logged and counted
// but never stop future passes. A failed statistic doesn't hold back the others.
//
// Sample usage:
//
//	h := receiver.NewHandle(radio, receiver.Opts{Logger: log.Printf})
//	poller, err := receiver.NewPoller(pin, receiver.NewServicer(h), receiver.PollOpts{})
//	...
//	err = receiver.Configure(h, receiver.DefaultConfig(), func(h *receiver.Handle) {
//	    hex, _ := h.HexView()
//	    rssi, _ := h.PacketRssi()
//	    log.Printf("received: %s rssi: %d", hex, rssi)
//	})
//	...
//	poller.Run(ctx)
package receiver
