// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package lorarx receives LoRa packets from a Semtech SX127x radio attached to an SPI bus with
// its DIO0 pin wired to an edge-capable GPIO pin.
//
// The root package only holds the vocabulary shared by the driver and the receive pipeline: the
// radio's operating modes and modem parameters and the Radio interface the pipeline drives. The
// sx127x directory has the register-level driver, the receiver directory has the receive
// pipeline (configuration sequence, edge delivery, interrupt servicing, payload and telemetry
// decoding), and the edge directory adapts periph and embd GPIO pins into edge sources.
// Commands to run a gateway or probe a radio can be found in the cmd directory tree.
package lorarx
