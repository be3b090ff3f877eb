//go:build linux

package host

import "golang.org/x/sys/unix"

func osMmap(length int) ([]byte, error) {
	return unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func osMunmap(b []byte) error {
	return unix.Munmap(b)
}
