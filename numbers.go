package sandtrap

import "strconv"

// Canonical syscall numbers, the x86-64 Linux values. The multiplexer
// dispatches on these; other instruction sets translate first.
const (
	SYS_GETTID            = 186
	SYS_FUTEX             = 202
	SYS_SCHED_SETAFFINITY = 203

	// SYS_CACHEFLUSH is ARM's private cacheflush call. x86-64 keeps its
	// caches coherent in hardware and has no number for it, so the ARM
	// value doubles as the canonical one.
	SYS_CACHEFLUSH = 0x0f0002
)

// sysNames names syscalls for traces and warnings. Beyond the calls the
// shim implements it covers ones guest libcs commonly probe, so ENOSYS
// diagnostics read well.
var sysNames = map[uint32]string{
	0:                     "read",
	1:                     "write",
	9:                     "mmap",
	11:                    "munmap",
	13:                    "rt_sigaction",
	39:                    "getpid",
	56:                    "clone",
	60:                    "exit",
	SYS_GETTID:            "gettid",
	SYS_FUTEX:             "futex",
	SYS_SCHED_SETAFFINITY: "sched_setaffinity",
	204:                   "sched_getaffinity",
	228:                   "clock_gettime",
	231:                   "exit_group",
	SYS_CACHEFLUSH:        "cacheflush",
}

func sysName(num uint32) string {
	if name, ok := sysNames[num]; ok {
		return name
	}
	return "syscall_" + strconv.Itoa(int(num))
}
