// Package sandboxrt defines the narrow interface a sandbox runtime
// exposes to the syscall shim: absolute-deadline futex wait and wake,
// anonymous memory mappings, the wall clock, and a processor yield.
//
// The shim in the parent package rebuilds the POSIX surface (relative
// timeouts, thread join, the syscall multiplexer) on top of these
// primitives. Errors cross this interface as plain Errno values: zero is
// success, positive values are Linux error numbers.
package sandboxrt

// A Mapping is an anonymous read-write memory region returned by Mmap.
// Base is the address of the first byte of Data.
type Mapping struct {
	Base uintptr
	Data []byte
}

// Runtime is the primitive set a sandbox provides. Implementations must
// be safe for concurrent use; every blocking operation the shim performs
// ends up in FutexWaitAbs.
type Runtime interface {
	// FutexWaitAbs blocks the calling thread while *addr == val, until a
	// wake arrives or the absolute deadline passes. A nil deadline blocks
	// forever. It returns 0 when woken (spurious wakes are permitted),
	// EAGAIN if *addr != val at wait time, ETIMEDOUT once the deadline
	// passes, and EINVAL or EFAULT for malformed arguments. The compare
	// and the decision to sleep are atomic with respect to FutexWake.
	FutexWaitAbs(addr *uint32, val uint32, deadline *Timespec) Errno

	// FutexWake wakes up to count threads blocked in FutexWaitAbs on addr
	// and reports how many it woke. Zero is a legitimate result.
	FutexWake(addr *uint32, count int) (int, Errno)

	// Mmap creates an anonymous read-write mapping of at least length
	// bytes, rounded up to a whole number of pages.
	Mmap(length int) (Mapping, Errno)

	// Munmap releases a mapping. The base and length must exactly match a
	// mapping previously returned by Mmap, or the runtime reports EINVAL.
	Munmap(base uintptr, length int) Errno

	// Gettimeofday samples the wall clock at microsecond resolution.
	Gettimeofday() Timeval

	// Yield releases the processor so other runnable threads can make
	// progress. It is the only scheduling control the sandbox offers.
	Yield()
}

// A CacheFlusher synchronizes the instruction cache with code the program
// wrote. Runtimes that execute guest code directly implement it;
// interpreting runtimes have no incoherent cache to flush and do not.
type CacheFlusher interface {
	FlushCache(begin, end uintptr) Errno
}
