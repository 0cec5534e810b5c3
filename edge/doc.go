// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// The edge package connects the radio's DIO0 interrupt line to the receiver package on Linux
// hosts. Pin uses periph and blocks in WaitForEdge, suited to a receiver.Poller. WatchedPin uses
// embd's pin watcher, which calls a handler on each edge, suited to a receiver.Interrupt.
package edge
