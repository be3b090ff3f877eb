package sandtrap

import "sync/atomic"

// ContextWords is the size of a register snapshot: the 16 x86-64 general
// registers plus rip and rflags, the widest file the shim supports.
// Captures from smaller register files zero-pad.
const ContextWords = 18

// A CaptureFunc records the calling thread's execution context into buf.
// The default records the Go return-PC chain; instruction-set ports
// install captures that read real register state.
type CaptureFunc func(buf *[ContextWords]uintptr)

// regContext publishes a thread's captured execution context to
// concurrent readers without a lock. Only the owning thread writes. The
// sequence word is odd while the context is unpublished or mid-write and
// a fresh even value once a save completes, so a reader that observes
// the same even value before and after its copy holds the words of
// exactly one save.
type regContext struct {
	seq   atomic.Uint32
	words [ContextWords]atomic.Uintptr
}

// save captures and publishes the owner's context.
func (c *regContext) save(capture CaptureFunc) {
	var buf [ContextWords]uintptr
	capture(&buf)
	seq := c.seq.Load() | 1
	c.seq.Store(seq)
	for i, w := range buf {
		c.words[i].Store(w)
	}
	c.seq.Store(seq + 1)
}

// clear unpublishes the context. The stale words stay behind and are
// unreachable through snapshot.
func (c *regContext) clear() {
	c.seq.Store(c.seq.Load() | 1)
}

// snapshot copies the last published context into dst. It reports false
// when nothing is published or when a save or clear overlapped the copy.
func (c *regContext) snapshot(dst *[ContextWords]uintptr) bool {
	seq := c.seq.Load()
	if seq == 0 || seq&1 != 0 {
		return false
	}
	for i := range c.words {
		dst[i] = c.words[i].Load()
	}
	return c.seq.Load() == seq
}
