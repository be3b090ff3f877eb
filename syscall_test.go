package sandtrap

import (
	"strings"
	"testing"

	"github.com/kmrgirish/sandtrap/internal/shimlog"
	"github.com/kmrgirish/sandtrap/sandboxrt"
)

func TestSyscallGettid(t *testing.T) {
	s := newTestShim(t, &fakeRuntime{}, Config{})
	th := s.Register(7, ThreadConfig{})

	req := GettidRequest()
	if ret := s.Syscall(th, &req); ret != 7 {
		t.Errorf("gettid returned %d, want 7", ret)
	}
	if req.PC == 0 {
		t.Error("request constructor left PC zero")
	}
}

func TestSyscallFutexErrno(t *testing.T) {
	s := newTestShim(t, &fakeRuntime{}, Config{})
	th := s.Register(1, ThreadConfig{})

	// A mismatched wait fails; the multiplexer reports failure in the C
	// convention, -1 with errno on the thread.
	word := uint32(5)
	req := FutexRequest(&word, FUTEX_WAIT, 4, nil)
	if ret := s.Syscall(th, &req); ret != -1 {
		t.Errorf("mismatched wait returned %d, want -1", ret)
	}
	if errno := th.Errno(); errno != sandboxrt.EWOULDBLOCK {
		t.Errorf("thread errno is %s, want EAGAIN", errno)
	}
}

func TestSyscallFutexWakeCount(t *testing.T) {
	rt := &fakeRuntime{
		wakeFn: func(addr *uint32, count int) (int, sandboxrt.Errno) {
			return 3, 0
		},
	}
	s := newTestShim(t, rt, Config{})
	th := s.Register(1, ThreadConfig{})

	word := uint32(0)
	req := FutexRequest(&word, FUTEX_WAKE, 8, nil)
	if ret := s.Syscall(th, &req); ret != 3 {
		t.Errorf("wake returned %d, want 3", ret)
	}
	if errno := th.Errno(); errno != 0 {
		t.Errorf("successful wake set errno %s", errno)
	}
}

func TestSyscallSchedSetaffinity(t *testing.T) {
	s := newTestShim(t, &fakeRuntime{}, Config{})
	th := s.Register(1, ThreadConfig{})

	req := SchedSetaffinityRequest(0, 8)
	if ret := s.Syscall(th, &req); ret != 0 {
		t.Errorf("sched_setaffinity returned %d, want 0", ret)
	}
}

func TestSyscallUnimplemented(t *testing.T) {
	s, buf := newLoggedShim(t, &fakeRuntime{}, Config{})
	th := s.Register(1, ThreadConfig{})

	// Same call site three times: one warning. The loop body is the site.
	for i := 0; i < 3; i++ {
		req := RawRequest(9, 0, 4096)
		if ret := s.Syscall(th, &req); ret != -1 {
			t.Fatalf("unimplemented syscall returned %d, want -1", ret)
		}
		if errno := th.Errno(); errno != sandboxrt.ENOSYS {
			t.Fatalf("thread errno is %s, want ENOSYS", errno)
		}
	}
	// A different site warns again.
	req := RawRequest(9, 0, 4096)
	s.Syscall(th, &req)

	var warnings []*shimlog.Log
	for _, log := range shimlog.ParseLogs(buf.Bytes()) {
		if log.Msg == "unimplemented syscall" {
			warnings = append(warnings, log)
		}
	}
	if len(warnings) != 2 {
		t.Fatalf("got %d warnings, want 2 (one per call site)", len(warnings))
	}
	for _, w := range warnings {
		if w.Num != 9 || w.Sys != "mmap" {
			t.Errorf("warning names syscall %d %q, want 9 %q", w.Num, w.Sys, "mmap")
		}
	}
}

func TestSyscallARMTranslation(t *testing.T) {
	s := newTestShim(t, &fakeRuntime{}, Config{Arch: ArchARM})
	th := s.Register(12, ThreadConfig{})

	req := RawRequest(224) // ARM gettid
	if ret := s.Syscall(th, &req); ret != 12 {
		t.Errorf("ARM gettid returned %d, want 12", ret)
	}

	word := uint32(2)
	req = Request{Num: 240, Int1: FUTEX_WAIT, Int2: 1, Ptr0: &word} // ARM futex
	if ret := s.Syscall(th, &req); ret != -1 {
		t.Errorf("ARM futex with mismatched value returned %d, want -1", ret)
	}
	if errno := th.Errno(); errno != sandboxrt.EWOULDBLOCK {
		t.Errorf("thread errno is %s, want EAGAIN", errno)
	}
}

func TestSyscallARMUnmapped(t *testing.T) {
	s, buf := newLoggedShim(t, &fakeRuntime{}, Config{Arch: ArchARM})
	th := s.Register(1, ThreadConfig{})

	// 186 is gettid in the canonical numbering but nothing in the ARM
	// table; the warning must name the native number, not lie about a
	// translation that never happened.
	req := RawRequest(186)
	if ret := s.Syscall(th, &req); ret != -1 {
		t.Errorf("unmapped ARM syscall returned %d, want -1", ret)
	}
	if errno := th.Errno(); errno != sandboxrt.ENOSYS {
		t.Errorf("thread errno is %s, want ENOSYS", errno)
	}

	found := false
	for _, log := range shimlog.ParseLogs(buf.Bytes()) {
		if log.Msg == "unimplemented syscall" {
			found = true
			if log.Sys != "syscall_186" {
				t.Errorf("warning names %q, want %q", log.Sys, "syscall_186")
			}
		}
	}
	if !found {
		t.Fatal("no warning logged")
	}
}

func TestSyscallCacheflushWithoutDirectExecution(t *testing.T) {
	s := newTestShim(t, &fakeRuntime{}, Config{})
	th := s.Register(1, ThreadConfig{})

	msg := wantPanic(t, func() {
		req := CacheflushRequest(0x1000, 0x2000)
		s.Syscall(th, &req)
	})
	if !strings.Contains(msg, "cacheflush without direct execution") {
		t.Errorf("abort message %q does not explain the cacheflush", msg)
	}
}

func TestSyscallCacheflushNoFlusher(t *testing.T) {
	s := newTestShim(t, &fakeRuntime{}, Config{DirectExecution: true})
	th := s.Register(1, ThreadConfig{})

	msg := wantPanic(t, func() {
		req := CacheflushRequest(0x1000, 0x2000)
		s.Syscall(th, &req)
	})
	if !strings.Contains(msg, "cannot flush") {
		t.Errorf("abort message %q does not explain the missing capability", msg)
	}
}

func TestSyscallCacheflush(t *testing.T) {
	rt := &fakeFlushRuntime{}
	s := newTestShim(t, rt, Config{Arch: ArchARM, DirectExecution: true})
	th := s.Register(1, ThreadConfig{})

	req := RawRequest(0x0f0002, 0x1000, 0x1040)
	if ret := s.Syscall(th, &req); ret != 0 {
		t.Fatalf("cacheflush returned %d, want 0", ret)
	}
	rt.mu.Lock()
	flushes := rt.flushes
	rt.mu.Unlock()
	if len(flushes) != 1 || flushes[0] != [2]uintptr{0x1000, 0x1040} {
		t.Errorf("runtime saw flushes %v, want one of [0x1000 0x1040]", flushes)
	}

	// An inverted range is the caller's bug, not a reason to abort.
	req = RawRequest(0x0f0002, 0x2000, 0x1000)
	if ret := s.Syscall(th, &req); ret != -1 {
		t.Errorf("inverted cacheflush returned %d, want -1", ret)
	}
	if errno := th.Errno(); errno != sandboxrt.EINVAL {
		t.Errorf("thread errno is %s, want EINVAL", errno)
	}
}

func TestSyscallCacheflushErrno(t *testing.T) {
	rt := &fakeFlushRuntime{flushed: sandboxrt.EFAULT}
	s := newTestShim(t, rt, Config{DirectExecution: true})
	th := s.Register(1, ThreadConfig{})

	req := CacheflushRequest(0x1000, 0x2000)
	if ret := s.Syscall(th, &req); ret != -1 {
		t.Errorf("failed cacheflush returned %d, want -1", ret)
	}
	if errno := th.Errno(); errno != sandboxrt.EFAULT {
		t.Errorf("thread errno is %s, want EFAULT", errno)
	}
}

func TestSyscallTrace(t *testing.T) {
	s, buf := newLoggedShim(t, &fakeRuntime{}, Config{Trace: "syscall"})
	th := s.Register(4, ThreadConfig{})

	req := GettidRequest()
	s.Syscall(th, &req)

	logs := shimlog.ParseLogs(buf.Bytes())
	var enter, exit *shimlog.Log
	for _, log := range logs {
		if log.Sys != "gettid" {
			continue
		}
		switch log.Phase {
		case "enter":
			enter = log
		case "exit":
			exit = log
		}
	}
	if enter == nil || exit == nil {
		t.Fatalf("trace missing enter or exit record in %d records", len(logs))
	}
	if enter.Msg != "gettid()" {
		t.Errorf("enter message %q, want %q", enter.Msg, "gettid()")
	}
	if exit.Msg != "gettid = 4" {
		t.Errorf("exit message %q, want %q", exit.Msg, "gettid = 4")
	}
	if enter.TID != 4 || exit.TID != 4 {
		t.Errorf("trace records carry tids %d and %d, want 4", enter.TID, exit.TID)
	}
	if exit.Ret != 4 {
		t.Errorf("exit record carries ret %d, want 4", exit.Ret)
	}
}

func TestRawRequestArgs(t *testing.T) {
	req := RawRequest(60, 1, 2, 3, 4, 5, 6, 7)
	want := Request{Num: 60, Int0: 1, Int1: 2, Int2: 3, Int3: 4, Int4: 5, Int5: 6, PC: req.PC}
	if req != want {
		t.Errorf("RawRequest built %+v, want %+v", req, want)
	}
	if req.PC == 0 {
		t.Error("RawRequest left PC zero")
	}
}

// TestSysTableComplete checks the static invariants of the dispatch
// table: every entry is fully populated, its trace name agrees with the
// name table, its argument formatter handles an undecoded request, and
// every canonical number has an ARM alias, since an entry unreachable
// from one supported numbering is a latent hole.
func TestSysTableComplete(t *testing.T) {
	aliased := make(map[uint32]bool)
	for native, canonical := range sysnumARM {
		c, ok := ArchARM.canonical(native)
		if !ok || c != canonical {
			t.Errorf("ARM %d translates to (%d, %t), want (%d, true)", native, c, ok, canonical)
		}
		aliased[canonical] = true
	}

	for num, ent := range sysTable {
		if ent.name == "" || ent.args == nil || ent.call == nil {
			t.Errorf("syscall %d has an incomplete table entry", num)
			continue
		}
		if got := sysName(num); got != ent.name {
			t.Errorf("syscall %d is %q in the table but %q in the name table", num, ent.name, got)
		}
		req := Request{Num: num}
		if ent.args(&req) == "" && num != SYS_GETTID {
			t.Errorf("syscall %d renders empty arguments", num)
		}
		if !aliased[num] {
			t.Errorf("syscall %d (%s) has no ARM alias", num, ent.name)
		}
	}
}
