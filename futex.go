package sandtrap

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"unsafe"

	"github.com/kmrgirish/sandtrap/internal/strace"
	"github.com/kmrgirish/sandtrap/sandboxrt"
)

// Futex operations, Linux numbering. The shim serves a single address
// space, so the private flag changes nothing but the traced name.
const (
	FUTEX_WAIT = 0
	FUTEX_WAKE = 1

	FUTEX_PRIVATE_FLAG = 128
)

// Futex implements futex(2) over the runtime's absolute-deadline wait.
// On success it returns 0 (wait) or the number of threads woken (wake);
// on failure, a negated errno, following the kernel convention. val is
// the expected word value for wait and the wake count for wake; timeout
// is relative, with nil meaning forever.
//
// Operations beyond wait and wake abort: an op like requeue quietly not
// moving its waiters would corrupt the caller beyond recovery.
func (s *Shim) Futex(t *Thread, addr *uint32, op uint32, val uint32, timeout *sandboxrt.Timespec) int {
	if strace.Futex.Enabled() {
		s.tracer.Enter(&strace.Futex, tidOf(t), "futex", formatFutexArgs(addr, op, val, timeout))
	}

	var ret int
	switch op &^ FUTEX_PRIVATE_FLAG {
	case FUTEX_WAIT:
		ret = s.futexWait(t, addr, val, timeout)
	case FUTEX_WAKE:
		ret = s.futexWake(addr, int(int32(val)))
	default:
		s.fatalf("futex: unhandled operation %d on %s", op, formatAddr(addr))
	}

	s.tracer.Exit(&strace.Futex, tidOf(t), "futex", ret, negErrno(ret))
	return ret
}

func (s *Shim) futexWait(t *Thread, addr *uint32, val uint32, timeout *sandboxrt.Timespec) int {
	if addr == nil {
		return -int(sandboxrt.EFAULT)
	}
	// Decide EWOULDBLOCK before touching the clock. The runtime repeats
	// this compare atomically with the sleep; this load only keeps a
	// doomed wait from paying for a time query.
	if atomic.LoadUint32(addr) != val {
		return -int(sandboxrt.EWOULDBLOCK)
	}

	var deadline *sandboxrt.Timespec
	if timeout != nil {
		abs, errno := s.absDeadline(*timeout)
		if errno != 0 {
			return -int(errno)
		}
		deadline = &abs
	}

	t.saveContext(s.capture)
	errno := s.rt.FutexWaitAbs(addr, val, deadline)
	t.clearContext()
	return -int(errno)
}

func (s *Shim) futexWake(addr *uint32, count int) int {
	if addr == nil {
		return -int(sandboxrt.EFAULT)
	}
	if count < 0 {
		return -int(sandboxrt.EINVAL)
	}
	woken, errno := s.rt.FutexWake(addr, count)
	if errno != 0 {
		return -int(errno)
	}
	return woken
}

// absDeadline converts a relative timeout to the absolute deadline the
// runtime wants. This is the only place relative time becomes absolute;
// the nanosecond field of the result is normalized to [0, 1e9).
func (s *Shim) absDeadline(rel sandboxrt.Timespec) (sandboxrt.Timespec, sandboxrt.Errno) {
	if !rel.Valid() {
		return sandboxrt.Timespec{}, sandboxrt.EINVAL
	}
	now := s.rt.Gettimeofday()
	abs := sandboxrt.Timespec{
		Sec:  now.Sec + rel.Sec,
		Nsec: now.Usec*1e3 + rel.Nsec,
	}
	if abs.Nsec >= 1e9 {
		abs.Sec++
		abs.Nsec -= 1e9
	}
	if abs.Sec < now.Sec {
		// The addition wrapped.
		return sandboxrt.Timespec{}, sandboxrt.EINVAL
	}
	return abs, 0
}

func negErrno(ret int) sandboxrt.Errno {
	if ret < 0 {
		return sandboxrt.Errno(-ret)
	}
	return 0
}

func futexOpName(op uint32) string {
	var name string
	switch op &^ FUTEX_PRIVATE_FLAG {
	case FUTEX_WAIT:
		name = "FUTEX_WAIT"
	case FUTEX_WAKE:
		name = "FUTEX_WAKE"
	default:
		return "FUTEX_OP_" + strconv.Itoa(int(op))
	}
	if op&FUTEX_PRIVATE_FLAG != 0 {
		name += "_PRIVATE"
	}
	return name
}

func formatAddr(addr *uint32) string {
	if addr == nil {
		return "NULL"
	}
	return fmt.Sprintf("%#x", uintptr(unsafe.Pointer(addr)))
}

func formatTimespec(ts *sandboxrt.Timespec) string {
	if ts == nil {
		return "NULL"
	}
	return fmt.Sprintf("{%d %d}", ts.Sec, ts.Nsec)
}

func formatFutexArgs(addr *uint32, op, val uint32, timeout *sandboxrt.Timespec) string {
	if op&^FUTEX_PRIVATE_FLAG == FUTEX_WAKE {
		return fmt.Sprintf("%s, %s, %d", formatAddr(addr), futexOpName(op), int(int32(val)))
	}
	return fmt.Sprintf("%s, %s, %d, %s", formatAddr(addr), futexOpName(op), val, formatTimespec(timeout))
}
