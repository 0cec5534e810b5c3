// Package thread gives a polling goroutine its own kernel thread running at realtime priority
// so that edges on the radio's interrupt line are picked up with low latency.
package thread
