// Copyright 2009 The Go Authors. All rights reserved. Use of this source code
// is governed by a BSD-style license that can be found at
// https://go.googlesource.com/go/+/refs/heads/master/LICENSE.

// Bucket layout based on https://go.googlesource.com/go/+/refs/heads/master/src/runtime/sema.go.

package host

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/kmrgirish/sandtrap/sandboxrt"
)

const futexBuckets = 251 // prime just like in runtime

type futexBucket struct {
	mu      sync.Mutex
	waiters waiterq
}

// A waiter is one parked FutexWaitAbs call. It lives on the bucket queue
// for its word's hash until a wake claims it or its deadline removes it.
type waiter struct {
	addr *uint32
	wake chan struct{}

	// woken is set under the bucket lock by the waker that claimed this
	// waiter. It resolves the race where a wake lands after the waiter's
	// timer fired but before the waiter removed itself: the waiter still
	// counts as woken, exactly once.
	woken bool

	prev, next *waiter
}

// waiterq is a FIFO of waiters, mirroring the wait queues the Go runtime
// keeps per semaphore address.
type waiterq struct {
	first, last *waiter
}

func (q *waiterq) enqueue(w *waiter) {
	w.prev = q.last
	w.next = nil
	if q.last != nil {
		q.last.next = w
	} else {
		q.first = w
	}
	q.last = w
}

func (q *waiterq) remove(w *waiter) {
	if w.prev != nil {
		w.prev.next = w.next
	} else {
		q.first = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	} else {
		q.last = w.prev
	}
	w.prev = nil
	w.next = nil
}

func (r *Runtime) bucket(addr *uint32) *futexBucket {
	idx := (uintptr(unsafe.Pointer(addr)) >> 3) % futexBuckets
	return &r.futexes[idx]
}

// FutexWaitAbs blocks while *addr == val, until woken or deadline passes.
func (r *Runtime) FutexWaitAbs(addr *uint32, val uint32, deadline *sandboxrt.Timespec) sandboxrt.Errno {
	if addr == nil {
		return sandboxrt.EFAULT
	}
	if deadline != nil && !deadline.Valid() {
		return sandboxrt.EINVAL
	}

	b := r.bucket(addr)
	b.mu.Lock()
	// The compare must happen under the bucket lock: wakers take the same
	// lock, so a waker that stores to *addr and then calls FutexWake
	// cannot slip between this load and the enqueue below.
	if atomic.LoadUint32(addr) != val {
		b.mu.Unlock()
		return sandboxrt.EAGAIN
	}
	w := &waiter{addr: addr, wake: make(chan struct{})}
	b.waiters.enqueue(w)
	b.mu.Unlock()

	if deadline == nil {
		<-w.wake
		return 0
	}

	d := time.Unix(deadline.Sec, deadline.Nsec).Sub(r.now())
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-w.wake:
		return 0
	case <-timer.C:
		b.mu.Lock()
		if w.woken {
			b.mu.Unlock()
			return 0
		}
		b.waiters.remove(w)
		b.mu.Unlock()
		return sandboxrt.ETIMEDOUT
	}
}

// FutexWake wakes up to count waiters parked on addr, oldest first, and
// reports how many it woke.
func (r *Runtime) FutexWake(addr *uint32, count int) (int, sandboxrt.Errno) {
	if addr == nil {
		return 0, sandboxrt.EFAULT
	}
	if count < 0 {
		return 0, sandboxrt.EINVAL
	}

	b := r.bucket(addr)
	b.mu.Lock()
	woken := 0
	for w := b.waiters.first; w != nil && woken < count; {
		next := w.next
		if w.addr == addr {
			b.waiters.remove(w)
			w.woken = true
			close(w.wake)
			woken++
		}
		w = next
	}
	b.mu.Unlock()
	return woken, 0
}
