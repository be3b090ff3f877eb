package host

import (
	"testing"

	"github.com/kmrgirish/sandtrap/sandboxrt"
)

func TestMmapRoundsToPage(t *testing.T) {
	r := New()
	m, errno := r.Mmap(100)
	if errno != 0 {
		t.Fatalf("Mmap(100) failed: %v", errno)
	}
	if len(m.Data) != pageSize {
		t.Errorf("Mmap(100) returned %d bytes, expected one page (%d)", len(m.Data), pageSize)
	}
	// The region must be writable.
	m.Data[0] = 0xaa
	m.Data[len(m.Data)-1] = 0x55

	if errno := r.Munmap(m.Base, 100); errno != 0 {
		t.Errorf("Munmap failed: %v", errno)
	}
}

func TestMmapBadLength(t *testing.T) {
	r := New()
	if _, errno := r.Mmap(0); errno != sandboxrt.EINVAL {
		t.Errorf("Mmap(0) returned %v, expected EINVAL", errno)
	}
	if _, errno := r.Mmap(-4096); errno != sandboxrt.EINVAL {
		t.Errorf("Mmap(-4096) returned %v, expected EINVAL", errno)
	}
}

func TestMunmapValidatesRegion(t *testing.T) {
	r := New()
	m, errno := r.Mmap(2 * pageSize)
	if errno != 0 {
		t.Fatalf("Mmap failed: %v", errno)
	}

	if errno := r.Munmap(m.Base+uintptr(pageSize), pageSize); errno != sandboxrt.EINVAL {
		t.Errorf("Munmap of interior page returned %v, expected EINVAL", errno)
	}
	if errno := r.Munmap(m.Base, pageSize); errno != sandboxrt.EINVAL {
		t.Errorf("Munmap of partial length returned %v, expected EINVAL", errno)
	}
	if errno := r.Munmap(m.Base, 2*pageSize); errno != 0 {
		t.Fatalf("Munmap of exact region failed: %v", errno)
	}
	if errno := r.Munmap(m.Base, 2*pageSize); errno != sandboxrt.EINVAL {
		t.Errorf("second Munmap returned %v, expected EINVAL", errno)
	}
}
