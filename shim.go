package sandtrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kmrgirish/sandtrap/internal/shimlog"
	"github.com/kmrgirish/sandtrap/internal/strace"
	"github.com/kmrgirish/sandtrap/sandboxrt"
)

// Config carries the settings for a Shim.
type Config struct {
	// Arch selects the syscall number translation. The zero value is
	// ArchAMD64.
	Arch Arch

	// DirectExecution marks runtimes that run guest code natively. It
	// gates the cacheflush syscall, which otherwise indicates a
	// misconfigured guest and aborts.
	DirectExecution bool

	// Logger receives warnings, fatal diagnostics, and trace records.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// Trace enables trace-record families by name, comma-separated:
	// "syscall", "futex", "thread", "mem".
	Trace string

	// Capture records a thread's execution context around blocking
	// calls. Defaults to recording the Go return-PC chain.
	Capture CaptureFunc
}

// A Shim presents POSIX syscall semantics on top of a sandbox runtime's
// primitives: the futex surface, the syscall multiplexer, anonymous
// mappings, and a thread registry with the join protocol. One Shim
// serves one address space.
type Shim struct {
	rt      sandboxrt.Runtime
	arch    Arch
	direct  bool
	log     *slog.Logger
	tracer  *strace.Tracer
	capture CaptureFunc

	mu      sync.Mutex
	threads *Thread
	lastTID int

	warnMu sync.Mutex
	warned map[uintptr]struct{}
}

// New builds a Shim over rt.
func New(rt sandboxrt.Runtime, cfg Config) (*Shim, error) {
	if rt == nil {
		return nil, errors.New("sandtrap: nil runtime")
	}
	if !cfg.Arch.valid() {
		return nil, fmt.Errorf("sandtrap: unsupported arch %v", cfg.Arch)
	}
	if err := strace.Parse(cfg.Trace); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	capture := cfg.Capture
	if capture == nil {
		capture = capturePCs
	}
	return &Shim{
		rt:      rt,
		arch:    cfg.Arch,
		direct:  cfg.DirectExecution,
		log:     log,
		tracer:  strace.New(log),
		capture: capture,
		warned:  make(map[uintptr]struct{}),
	}, nil
}

// AllocateTID returns a fresh thread id. Thread libraries that assign
// their own ids can skip it; ids only need to be positive and unused.
func (s *Shim) AllocateTID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTID++
	return s.lastTID
}

// fatalf reports an unrecoverable protocol violation and aborts. The log
// record carries a traceback so the failure is diagnosable from logs
// alone; the panic carries the same message.
func (s *Shim) fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.log.LogAttrs(context.Background(), slog.LevelError, msg, shimlog.Stack(1))
	panic("sandtrap: " + msg)
}

func tidOf(t *Thread) int {
	if t == nil {
		return 0
	}
	return t.tid
}
