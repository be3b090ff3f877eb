package host

import (
	"os"
	"unsafe"

	"github.com/kmrgirish/sandtrap/sandboxrt"
)

// pageSize is the host page size; mapping lengths round up to it.
var pageSize = os.Getpagesize()

func roundUpPage(length int) int {
	return (length + pageSize - 1) &^ (pageSize - 1)
}

// Mmap creates an anonymous read-write mapping of at least length bytes.
func (r *Runtime) Mmap(length int) (sandboxrt.Mapping, sandboxrt.Errno) {
	if length <= 0 {
		return sandboxrt.Mapping{}, sandboxrt.EINVAL
	}
	length = roundUpPage(length)
	b, err := osMmap(length)
	if err != nil {
		return sandboxrt.Mapping{}, sandboxrt.ENOMEM
	}
	base := uintptr(unsafe.Pointer(&b[0]))
	r.memMu.Lock()
	r.mappings[base] = b
	r.memMu.Unlock()
	return sandboxrt.Mapping{Base: base, Data: b}, 0
}

// Munmap releases a mapping. The base and length must exactly describe a
// live mapping returned by Mmap.
func (r *Runtime) Munmap(base uintptr, length int) sandboxrt.Errno {
	r.memMu.Lock()
	b, ok := r.mappings[base]
	if !ok || len(b) != roundUpPage(length) {
		r.memMu.Unlock()
		return sandboxrt.EINVAL
	}
	delete(r.mappings, base)
	r.memMu.Unlock()
	if err := osMunmap(b); err != nil {
		return sandboxrt.EINVAL
	}
	return 0
}
