package sandtrap

import (
	"bytes"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"testing"

	"github.com/kmrgirish/sandtrap/internal/shimlog"
	"github.com/kmrgirish/sandtrap/internal/strace"
	"github.com/kmrgirish/sandtrap/sandboxrt"
)

// fakeRuntime is a scriptable sandboxrt.Runtime. The zero value answers
// every call successfully and immediately; tests override the fn fields
// to script failures and record the calls the shim makes.
type fakeRuntime struct {
	mu sync.Mutex

	now        sandboxrt.Timeval
	clockCalls int

	waitFn   func(addr *uint32, val uint32, deadline *sandboxrt.Timespec) sandboxrt.Errno
	wakeFn   func(addr *uint32, count int) (int, sandboxrt.Errno)
	munmapFn func(base uintptr, length int) sandboxrt.Errno

	waits  []fakeWait
	wakes  []fakeWake
	unmaps []fakeUnmap
	yields int

	nextBase uintptr
	mapped   map[uintptr]int
}

type fakeWait struct {
	addr        *uint32
	val         uint32
	hasDeadline bool
	deadline    sandboxrt.Timespec
}

type fakeWake struct {
	addr  *uint32
	count int
}

type fakeUnmap struct {
	base   uintptr
	length int
}

func (f *fakeRuntime) FutexWaitAbs(addr *uint32, val uint32, deadline *sandboxrt.Timespec) sandboxrt.Errno {
	f.mu.Lock()
	w := fakeWait{addr: addr, val: val}
	if deadline != nil {
		w.hasDeadline = true
		w.deadline = *deadline
	}
	f.waits = append(f.waits, w)
	fn := f.waitFn
	f.mu.Unlock()
	if fn != nil {
		return fn(addr, val, deadline)
	}
	return 0
}

func (f *fakeRuntime) FutexWake(addr *uint32, count int) (int, sandboxrt.Errno) {
	f.mu.Lock()
	f.wakes = append(f.wakes, fakeWake{addr: addr, count: count})
	fn := f.wakeFn
	f.mu.Unlock()
	if fn != nil {
		return fn(addr, count)
	}
	return 0, 0
}

func (f *fakeRuntime) Mmap(length int) (sandboxrt.Mapping, sandboxrt.Errno) {
	if length <= 0 {
		return sandboxrt.Mapping{}, sandboxrt.EINVAL
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mapped == nil {
		f.mapped = make(map[uintptr]int)
		f.nextBase = 0x10000000
	}
	length = (length + 4095) &^ 4095
	base := f.nextBase
	f.nextBase += uintptr(length) + 4096
	f.mapped[base] = length
	return sandboxrt.Mapping{Base: base, Data: make([]byte, length)}, 0
}

func (f *fakeRuntime) Munmap(base uintptr, length int) sandboxrt.Errno {
	f.mu.Lock()
	f.unmaps = append(f.unmaps, fakeUnmap{base: base, length: length})
	fn := f.munmapFn
	f.mu.Unlock()
	if fn != nil {
		return fn(base, length)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	want, ok := f.mapped[base]
	if !ok || want != (length+4095)&^4095 {
		return sandboxrt.EINVAL
	}
	delete(f.mapped, base)
	return 0
}

func (f *fakeRuntime) Gettimeofday() sandboxrt.Timeval {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clockCalls++
	return f.now
}

func (f *fakeRuntime) Yield() {
	f.mu.Lock()
	f.yields++
	f.mu.Unlock()
	runtime.Gosched()
}

func (f *fakeRuntime) waitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waits)
}

func (f *fakeRuntime) lastWait(t *testing.T) fakeWait {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.waits) == 0 {
		t.Fatal("no FutexWaitAbs calls recorded")
	}
	return f.waits[len(f.waits)-1]
}

func (f *fakeRuntime) clockCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clockCalls
}

// fakeFlushRuntime adds the CacheFlusher capability.
type fakeFlushRuntime struct {
	fakeRuntime
	flushes [][2]uintptr
	flushed sandboxrt.Errno
}

func (f *fakeFlushRuntime) FlushCache(begin, end uintptr) sandboxrt.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes = append(f.flushes, [2]uintptr{begin, end})
	return f.flushed
}

// newTestShim builds a Shim over rt and resets the process-wide trace
// flags when the test finishes.
func newTestShim(t *testing.T, rt sandboxrt.Runtime, cfg Config) *Shim {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s, err := New(rt, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { strace.Parse("") })
	return s
}

// newLoggedShim is newTestShim with the log captured for assertions.
func newLoggedShim(t *testing.T, rt sandboxrt.Runtime, cfg Config) (*Shim, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg.Logger = shimlog.Setup(&buf, slog.LevelDebug, shimlog.FormatRaw)
	return newTestShim(t, rt, cfg), &buf
}

// wantPanic runs fn expecting the shim's abort path.
func wantPanic(t *testing.T, fn func()) (msg string) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected an abort, got none")
		}
		msg, _ = r.(string)
	}()
	fn()
	return ""
}
