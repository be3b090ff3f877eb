package sandtrap

import (
	"fmt"

	"github.com/kmrgirish/sandtrap/internal/strace"
	"github.com/kmrgirish/sandtrap/sandboxrt"
)

// Mmap allocates an anonymous read-write mapping through the sandbox,
// typically a thread stack. A zero errno means the mapping is live.
func (s *Shim) Mmap(t *Thread, length int) (sandboxrt.Mapping, sandboxrt.Errno) {
	if strace.Mem.Enabled() {
		s.tracer.Enter(&strace.Mem, tidOf(t), "mmap", fmt.Sprintf("%d", length))
	}
	m, errno := s.rt.Mmap(length)
	s.tracer.Exit(&strace.Mem, tidOf(t), "mmap", int(m.Base), errno)
	return m, errno
}

// Munmap releases a mapping obtained from Mmap.
func (s *Shim) Munmap(t *Thread, base uintptr, length int) sandboxrt.Errno {
	if strace.Mem.Enabled() {
		s.tracer.Enter(&strace.Mem, tidOf(t), "munmap", fmt.Sprintf("%#x, %d", base, length))
	}
	errno := s.rt.Munmap(base, length)
	s.tracer.Exit(&strace.Mem, tidOf(t), "munmap", -int(errno), errno)
	return errno
}
