package sandtrap

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/kmrgirish/sandtrap/internal/strace"
	"github.com/kmrgirish/sandtrap/sandboxrt"
)

// A Request is one syscall, decoded from the caller's ABI before it
// reaches the multiplexer. Integer arguments travel in Int0..Int5 at
// their argument positions; pointer arguments travel in Ptr0 and Ptr1 so
// the collector keeps their referents alive while the call runs.
type Request struct {
	// Num is the syscall number in the configured Arch's native
	// numbering.
	Num uint32

	Int0, Int1, Int2, Int3, Int4, Int5 uintptr
	Ptr0, Ptr1                         any

	// PC identifies the call site for once-per-site diagnostics. The
	// request constructors fill it in; zero folds unknown sites
	// together.
	PC uintptr
}

// FutexRequest builds a futex(2) request in the canonical numbering.
func FutexRequest(addr *uint32, op uint32, val uint32, timeout *sandboxrt.Timespec) Request {
	return Request{
		Num:  SYS_FUTEX,
		Int1: uintptr(op),
		Int2: uintptr(val),
		Ptr0: addr,
		Ptr1: timeout,
		PC:   callerPC(),
	}
}

// GettidRequest builds a gettid(2) request.
func GettidRequest() Request {
	return Request{Num: SYS_GETTID, PC: callerPC()}
}

// SchedSetaffinityRequest builds a sched_setaffinity(2) request. The
// shim accepts and ignores the mask, so only pid and the mask size are
// carried.
func SchedSetaffinityRequest(pid int, setsize uintptr) Request {
	return Request{
		Num:  SYS_SCHED_SETAFFINITY,
		Int0: uintptr(pid),
		Int1: setsize,
		PC:   callerPC(),
	}
}

// CacheflushRequest builds a cacheflush request for [begin, end).
func CacheflushRequest(begin, end uintptr) Request {
	return Request{Num: SYS_CACHEFLUSH, Int0: begin, Int1: end, PC: callerPC()}
}

// RawRequest builds a request by number alone, for callers relaying an
// undecoded syscall. args fill Int0 onward.
func RawRequest(num uint32, args ...uintptr) Request {
	req := Request{Num: num, PC: callerPC()}
	ints := []*uintptr{&req.Int0, &req.Int1, &req.Int2, &req.Int3, &req.Int4, &req.Int5}
	for i, arg := range args {
		if i == len(ints) {
			break
		}
		*ints[i] = arg
	}
	return req
}

func callerPC() uintptr {
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	return pcs[0]
}

// A sysent describes one supported syscall: its trace name, its argument
// rendering, and its handler. Handlers return results in the kernel
// convention, negative errno on failure.
type sysent struct {
	name string
	args func(req *Request) string
	call func(s *Shim, t *Thread, req *Request) int
}

var sysTable = map[uint32]*sysent{
	SYS_GETTID: {
		name: "gettid",
		args: func(*Request) string { return "" },
		call: sysGettid,
	},
	SYS_FUTEX: {
		name: "futex",
		args: func(req *Request) string {
			addr, _ := req.Ptr0.(*uint32)
			timeout, _ := req.Ptr1.(*sandboxrt.Timespec)
			return formatFutexArgs(addr, uint32(req.Int1), uint32(req.Int2), timeout)
		},
		call: sysFutex,
	},
	SYS_SCHED_SETAFFINITY: {
		name: "sched_setaffinity",
		args: func(req *Request) string {
			return fmt.Sprintf("%d, %d", int(req.Int0), req.Int1)
		},
		call: sysSchedSetaffinity,
	},
	SYS_CACHEFLUSH: {
		name: "cacheflush",
		args: func(req *Request) string {
			return fmt.Sprintf("%#x, %#x", req.Int0, req.Int1)
		},
		call: sysCacheflush,
	},
}

// Syscall dispatches one request. It returns the handler's result, or -1
// with the calling thread's errno set, following the C library calling
// convention rather than the kernel's.
func (s *Shim) Syscall(t *Thread, req *Request) int {
	num, ok := s.arch.canonical(req.Num)
	var ent *sysent
	if ok {
		ent = sysTable[num]
	}
	if ent == nil {
		name := sysName(num)
		if !ok {
			name = "syscall_" + strconv.Itoa(int(req.Num))
		}
		if strace.Syscall.Enabled() {
			s.tracer.Enter(&strace.Syscall, tidOf(t), name, formatRawArgs(req))
		}
		s.warnOnce(req.PC, req.Num, name)
		t.setErrno(sandboxrt.ENOSYS)
		s.tracer.Exit(&strace.Syscall, tidOf(t), name, -1, sandboxrt.ENOSYS)
		return -1
	}

	if strace.Syscall.Enabled() {
		s.tracer.Enter(&strace.Syscall, tidOf(t), ent.name, ent.args(req))
	}
	ret := ent.call(s, t, req)
	var errno sandboxrt.Errno
	if ret < 0 {
		errno = sandboxrt.Errno(-ret)
		t.setErrno(errno)
		ret = -1
	}
	s.tracer.Exit(&strace.Syscall, tidOf(t), ent.name, ret, errno)
	return ret
}

// warnOnce logs one warning per call site for syscalls the shim rejects.
// Every rejected call still gets ENOSYS; the log just avoids drowning in
// repeats from a hot loop.
func (s *Shim) warnOnce(pc uintptr, num uint32, name string) {
	s.warnMu.Lock()
	_, seen := s.warned[pc]
	if !seen {
		s.warned[pc] = struct{}{}
	}
	s.warnMu.Unlock()
	if seen {
		return
	}
	s.log.Warn("unimplemented syscall",
		"num", int(num),
		"sys", name,
		"pc", fmt.Sprintf("%#x", pc))
}

func formatRawArgs(req *Request) string {
	return fmt.Sprintf("%#x, %#x, %#x, %#x, %#x, %#x",
		req.Int0, req.Int1, req.Int2, req.Int3, req.Int4, req.Int5)
}

func sysGettid(s *Shim, t *Thread, req *Request) int {
	return tidOf(t)
}

func sysFutex(s *Shim, t *Thread, req *Request) int {
	addr, _ := req.Ptr0.(*uint32)
	timeout, _ := req.Ptr1.(*sandboxrt.Timespec)
	return s.Futex(t, addr, uint32(req.Int1), uint32(req.Int2), timeout)
}

// sysSchedSetaffinity succeeds without doing anything. The sandbox
// schedules threads itself and exposes no placement control, and callers
// treat affinity as advisory, so failing here would only break programs
// that otherwise run fine.
func sysSchedSetaffinity(s *Shim, t *Thread, req *Request) int {
	return 0
}

// sysCacheflush synchronizes the instruction cache after the guest wrote
// code. Reaching it without direct execution means the guest believes it
// runs natively when it does not; continuing would execute stale code,
// so abort.
func sysCacheflush(s *Shim, t *Thread, req *Request) int {
	begin, end := req.Int0, req.Int1
	if !s.direct {
		s.fatalf("cacheflush without direct execution (begin %#x, end %#x)", begin, end)
	}
	flusher, ok := s.rt.(sandboxrt.CacheFlusher)
	if !ok {
		s.fatalf("runtime %T cannot flush the instruction cache", s.rt)
	}
	if end < begin {
		return -int(sandboxrt.EINVAL)
	}
	return -int(flusher.FlushCache(begin, end))
}
