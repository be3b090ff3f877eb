// Package host provides an in-process sandboxrt.Runtime backed by the Go
// runtime. Futex waits park goroutines on hashed wait queues, mappings
// come from the operating system, and the clock is the host clock.
//
// It exists so the shim and programs built on it can run unmodified
// inside ordinary Go processes: tests, the sandtrap command, and example
// programs all use it. A production sandbox substitutes its own Runtime.
package host

import (
	"runtime"
	"sync"
	"time"

	"github.com/kmrgirish/sandtrap/sandboxrt"
)

// A Runtime implements sandboxrt.Runtime on the host. The zero value is
// not usable; call New.
type Runtime struct {
	// now is the clock behind Gettimeofday and deadline arithmetic.
	// Tests substitute counting or frozen clocks.
	now func() time.Time

	futexes [futexBuckets]futexBucket

	memMu    sync.Mutex
	mappings map[uintptr][]byte
}

// New returns a Runtime using the host clock.
func New() *Runtime {
	return &Runtime{
		now:      time.Now,
		mappings: make(map[uintptr][]byte),
	}
}

// Gettimeofday samples the wall clock at microsecond resolution.
func (r *Runtime) Gettimeofday() sandboxrt.Timeval {
	t := r.now()
	return sandboxrt.Timeval{Sec: t.Unix(), Usec: int64(t.Nanosecond()) / 1e3}
}

// Yield releases the processor.
func (r *Runtime) Yield() {
	runtime.Gosched()
}
