//go:build linux && !baremetal

package thread

import (
	"runtime"
	"syscall"
	"unsafe"
)

// Realtime locks the calling goroutine to its own kernel thread and elevates that
// thread's priority to realtime. It sets the round-robin schduling policy and uses
// priority level 10 (somewhere in the lower middle of the range).
func Realtime() error {
	// First pin goroutine to its own kernel thread.
	runtime.LockOSThread()
	tid := syscall.Gettid()
	res, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETSCHEDULER, uintptr(tid),
		uintptr(RR), uintptr(unsafe.Pointer(&schedParam{Priority})))
	if res == 0 {
		return nil
	}
	runtime.UnlockOSThread()
	return err
}

const FIFO = 1 // fifo scheduling policy
const RR = 2   // round-robin scheduling policy

// Priority is the realtime priority given to the calling thread.
const Priority = 10

type schedParam struct {
	Priority int32
}
