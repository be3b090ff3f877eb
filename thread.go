package sandtrap

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/kmrgirish/sandtrap/internal/strace"
	"github.com/kmrgirish/sandtrap/sandboxrt"
)

// ThreadConfig describes a thread entering the registry.
type ThreadConfig struct {
	// StackBase is the lowest address of the stack mapping, including
	// the guard region; the usable stack is the StackSize bytes starting
	// at StackBase+GuardSize.
	StackBase uintptr
	StackSize int
	GuardSize int

	// UserStack marks a caller-owned stack that join must not unmap.
	UserStack bool

	// Detached threads cannot be joined and release their own resources
	// at exit.
	Detached bool
}

// A Thread is one registered thread's bookkeeping: identity, stack
// bounds, join state, captured execution context, and errno.
type Thread struct {
	tid  int
	next *Thread

	stackBase uintptr
	stackSize int
	guardSize int
	userStack bool

	detached bool
	joined   bool

	// running holds the tid while the thread runs and zero after Exit,
	// in the style of CLONE_CHILD_CLEARTID. Joiners poll it; guest code
	// can futex-wait on it through RunningWord.
	running uint32

	retval uintptr
	ctx    regContext

	// errno is the thread-local error slot behind the -1 return
	// convention. Only the owning thread touches it.
	errno sandboxrt.Errno
}

// TID returns the thread's id. A nil thread has id 0, which is never
// registered.
func (t *Thread) TID() int {
	if t == nil {
		return 0
	}
	return t.tid
}

// Errno reports the error stored by the last failed Syscall on t.
func (t *Thread) Errno() sandboxrt.Errno {
	if t == nil {
		return 0
	}
	return t.errno
}

func (t *Thread) setErrno(e sandboxrt.Errno) {
	if t == nil {
		return
	}
	t.errno = e
}

// RunningWord exposes the exit-indicator word so thread libraries can
// point guest-side waiters at it. It holds the tid until the thread
// exits, then zero, and Exit futex-wakes it.
func (t *Thread) RunningWord() *uint32 {
	return &t.running
}

func (t *Thread) saveContext(capture CaptureFunc) {
	if t == nil {
		return
	}
	t.ctx.save(capture)
}

func (t *Thread) clearContext() {
	if t == nil {
		return
	}
	t.ctx.clear()
}

// takeStackLocked claims the thread's library-allocated stack region for
// unmapping and nulls the fields so it cannot be claimed twice.
func (t *Thread) takeStackLocked() (uintptr, int) {
	if t.userStack || t.stackSize == 0 {
		return 0, 0
	}
	base := t.stackBase
	length := t.guardSize + t.stackSize
	t.stackBase, t.stackSize, t.guardSize = 0, 0, 0
	return base, length
}

// Register adds a thread to the registry and returns its handle. The tid
// must be positive and unused; AllocateTID hands out suitable ids.
func (s *Shim) Register(tid int, cfg ThreadConfig) *Thread {
	if tid <= 0 {
		s.fatalf("registering thread with invalid tid %d", tid)
	}
	t := &Thread{
		tid:       tid,
		stackBase: cfg.StackBase,
		stackSize: cfg.StackSize,
		guardSize: cfg.GuardSize,
		userStack: cfg.UserStack,
		detached:  cfg.Detached,
		running:   uint32(tid),
	}
	s.mu.Lock()
	if s.lookupLocked(tid) != nil {
		s.mu.Unlock()
		s.fatalf("registering duplicate tid %d", tid)
	}
	t.next = s.threads
	s.threads = t
	if tid > s.lastTID {
		s.lastTID = tid
	}
	s.mu.Unlock()

	if strace.Thread.Enabled() {
		s.log.Debug("thread registered", "tid", tid,
			"stack", formatStack(cfg.StackBase, cfg.GuardSize, cfg.StackSize),
			"detached", cfg.Detached)
	}
	return t
}

// SetStack records the stack of a thread registered before its stack
// existed. The fields follow ThreadConfig.
func (s *Shim) SetStack(t *Thread, base uintptr, size, guard int, user bool) {
	s.mu.Lock()
	t.stackBase, t.stackSize, t.guardSize, t.userStack = base, size, guard, user
	s.mu.Unlock()
}

// Exit marks t finished with the given return value. Joinable threads
// stay registered until a joiner collects them; detached threads leave
// the registry now and release their library-allocated stack. The
// running word is cleared after the return value is stored, and woken so
// guest-side joiners see the exit too.
func (s *Shim) Exit(t *Thread, retval uintptr) {
	s.mu.Lock()
	t.retval = retval
	atomic.StoreUint32(&t.running, 0)
	var unmapBase uintptr
	var unmapLen int
	if t.detached {
		s.unlinkLocked(t)
		unmapBase, unmapLen = t.takeStackLocked()
	}
	s.mu.Unlock()

	s.rt.FutexWake(&t.running, math.MaxInt32)

	if unmapLen != 0 {
		if errno := s.rt.Munmap(unmapBase, unmapLen); errno != 0 {
			s.fatalf("thread %d exit: releasing stack: %s", t.tid, errno)
		}
	}
	if strace.Thread.Enabled() {
		s.log.Debug("thread exited", "tid", t.tid, "retval", retval, "detached", t.detached)
	}
}

// Join waits for the thread with the given tid to exit, then returns its
// exit value and releases its registry entry and library-allocated
// stack. It fails with EDEADLK when cur joins itself, ESRCH when no such
// thread is registered, and EINVAL when the thread is detached or
// already claimed by another joiner.
func (s *Shim) Join(cur *Thread, tid int) (uintptr, sandboxrt.Errno) {
	if cur != nil && cur.tid == tid {
		return 0, sandboxrt.EDEADLK
	}

	s.mu.Lock()
	t := s.lookupLocked(tid)
	if t == nil {
		s.mu.Unlock()
		return 0, sandboxrt.ESRCH
	}
	if t.detached || t.joined {
		s.mu.Unlock()
		return 0, sandboxrt.EINVAL
	}
	// Claiming the join under the lock is what serializes concurrent
	// joiners: the loser sees joined set and fails.
	t.joined = true
	s.mu.Unlock()

	// The sandbox offers no exit notification, so poll. The exiting
	// thread clears its running word after storing the return value;
	// yielding keeps the spin polite on oversubscribed processors.
	for atomic.LoadUint32(&t.running) != 0 {
		s.rt.Yield()
	}

	s.mu.Lock()
	retval := t.retval
	s.unlinkLocked(t)
	unmapBase, unmapLen := t.takeStackLocked()
	s.mu.Unlock()

	if unmapLen != 0 {
		if errno := s.rt.Munmap(unmapBase, unmapLen); errno != 0 {
			// The region is lost or was never ours; either way the
			// address space is corrupt.
			s.fatalf("join %d: releasing stack: %s", tid, errno)
		}
	}
	if strace.Thread.Enabled() {
		s.log.Debug("thread joined", "tid", tid, "retval", retval, "joiner", tidOf(cur))
	}
	return retval, 0
}

// Detach marks the thread as detached. Detaching a thread that already
// exited reaps it immediately, discarding its return value.
func (s *Shim) Detach(tid int) sandboxrt.Errno {
	s.mu.Lock()
	t := s.lookupLocked(tid)
	if t == nil {
		s.mu.Unlock()
		return sandboxrt.ESRCH
	}
	if t.detached || t.joined {
		s.mu.Unlock()
		return sandboxrt.EINVAL
	}
	t.detached = true
	var unmapBase uintptr
	var unmapLen int
	if atomic.LoadUint32(&t.running) == 0 {
		s.unlinkLocked(t)
		unmapBase, unmapLen = t.takeStackLocked()
	}
	s.mu.Unlock()

	if unmapLen != 0 {
		if errno := s.rt.Munmap(unmapBase, unmapLen); errno != 0 {
			s.fatalf("detach %d: releasing stack: %s", tid, errno)
		}
	}
	return 0
}

// ThreadCount reports the number of registered threads. With tryLock it
// returns -1 instead of blocking when the registry is busy, so callers
// in awkward contexts can bail out rather than deadlock.
func (s *Shim) ThreadCount(tryLock bool) int {
	if tryLock {
		if !s.mu.TryLock() {
			return -1
		}
	} else {
		s.mu.Lock()
	}
	n := 0
	for t := s.threads; t != nil; t = t.next {
		n++
	}
	s.mu.Unlock()
	return n
}

// A ThreadInfo is one enumerated thread: identity, usable stack bounds,
// and the last published register context if there is one.
type ThreadInfo struct {
	TID       int
	StackBase uintptr // lowest usable address, above the guard
	StackSize int
	HasRegs   bool
	Regs      [ContextWords]uintptr
}

// ThreadInfos fills out with a snapshot of registered threads and
// returns how many entries it wrote, or -1 when tryLock fails. Threads
// without a recorded stack are skipped rather than reported half-empty;
// cur is skipped unless includeCurrent. A zero-length out reports 0
// without taking the lock.
func (s *Shim) ThreadInfos(cur *Thread, tryLock, includeCurrent bool, out []ThreadInfo) int {
	if len(out) == 0 {
		return 0
	}
	if tryLock {
		if !s.mu.TryLock() {
			return -1
		}
	} else {
		s.mu.Lock()
	}
	n := 0
	for t := s.threads; t != nil && n < len(out); t = t.next {
		if t == cur && !includeCurrent {
			continue
		}
		if t.stackSize == 0 {
			continue
		}
		info := &out[n]
		info.TID = t.tid
		info.StackBase = t.stackBase + uintptr(t.guardSize)
		info.StackSize = t.stackSize
		info.HasRegs = t.ctx.snapshot(&info.Regs)
		if !info.HasRegs {
			info.Regs = [ContextWords]uintptr{}
		}
		n++
	}
	s.mu.Unlock()
	return n
}

func formatStack(base uintptr, guard, size int) string {
	return fmt.Sprintf("%#x+%#x(guard %#x)", base, size, guard)
}

func (s *Shim) lookupLocked(tid int) *Thread {
	for t := s.threads; t != nil; t = t.next {
		if t.tid == tid {
			return t
		}
	}
	return nil
}

func (s *Shim) unlinkLocked(target *Thread) {
	p := &s.threads
	for *p != nil {
		if *p == target {
			*p = target.next
			target.next = nil
			return
		}
		p = &(*p).next
	}
}
