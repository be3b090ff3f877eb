//go:build !linux

package host

// Heap-backed fallback for platforms where we do not call mmap directly.
// The base address stays stable because the slice is referenced by the
// mappings table until Munmap. Bases are not page-aligned here; nothing
// in the shim requires that, only page-multiple lengths.

func osMmap(length int) ([]byte, error) {
	return make([]byte, length), nil
}

func osMunmap(b []byte) error {
	return nil
}
