package main

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/kmrgirish/sandtrap"
	"github.com/kmrgirish/sandtrap/sandboxrt"
)

var scenarios = map[string]func(*sandtrap.Shim) error{
	"wake":    scenarioWake,
	"timeout": scenarioTimeout,
	"join":    scenarioJoin,
}

const (
	stackLen = 64 << 10
	guardLen = 4 << 10
)

// spawn allocates a stack, registers a thread, and runs fn on a new
// goroutine, exiting the thread with fn's result.
func spawn(s *sandtrap.Shim, fn func(*sandtrap.Thread) uintptr) (*sandtrap.Thread, error) {
	m, errno := s.Mmap(nil, stackLen)
	if errno != 0 {
		return nil, fmt.Errorf("allocating stack: %w", sandboxrt.ErrnoErr(errno))
	}
	th := s.Register(s.AllocateTID(), sandtrap.ThreadConfig{
		StackBase: m.Base,
		StackSize: stackLen - guardLen,
		GuardSize: guardLen,
	})
	go func() {
		s.Exit(th, fn(th))
	}()
	return th, nil
}

// waitParked spins until every listed thread has published a context,
// which happens just before it blocks.
func waitParked(s *sandtrap.Shim, tids ...int) {
	out := make([]sandtrap.ThreadInfo, 2*len(tids)+2)
	for {
		n := s.ThreadInfos(nil, false, true, out)
		parked := 0
		for _, info := range out[:n] {
			for _, tid := range tids {
				if info.TID == tid && info.HasRegs {
					parked++
				}
			}
		}
		if parked == len(tids) {
			return
		}
		runtime.Gosched()
	}
}

func scenarioWake(s *sandtrap.Shim) error {
	cur := s.Register(s.AllocateTID(), sandtrap.ThreadConfig{})

	var word uint32
	waiter, err := spawn(s, func(t *sandtrap.Thread) uintptr {
		for atomic.LoadUint32(&word) == 0 {
			s.Futex(t, &word, sandtrap.FUTEX_WAIT, 0, nil)
		}
		return uintptr(atomic.LoadUint32(&word))
	})
	if err != nil {
		return err
	}

	waitParked(s, waiter.TID())
	fmt.Println("waiter parked on the futex word")

	atomic.StoreUint32(&word, 7)
	for atomic.LoadUint32(waiter.RunningWord()) != 0 {
		s.Futex(cur, &word, sandtrap.FUTEX_WAKE, 1, nil)
		runtime.Gosched()
	}
	fmt.Println("stored 7 and woke the waiter")

	ret, errno := s.Join(cur, waiter.TID())
	if errno != 0 {
		return fmt.Errorf("join: %w", sandboxrt.ErrnoErr(errno))
	}
	fmt.Printf("waiter returned %d\n", ret)
	return nil
}

func scenarioTimeout(s *sandtrap.Shim) error {
	cur := s.Register(s.AllocateTID(), sandtrap.ThreadConfig{})

	var word uint32 // nobody ever wakes it
	waiter, err := spawn(s, func(t *sandtrap.Thread) uintptr {
		rel := sandboxrt.Timespec{Nsec: 30_000_000}
		ret := s.Futex(t, &word, sandtrap.FUTEX_WAIT, 0, &rel)
		return uintptr(-ret)
	})
	if err != nil {
		return err
	}

	ret, errno := s.Join(cur, waiter.TID())
	if errno != 0 {
		return fmt.Errorf("join: %w", sandboxrt.ErrnoErr(errno))
	}
	fmt.Printf("waiter finished with %s\n", sandboxrt.Errno(ret))
	return nil
}

func scenarioJoin(s *sandtrap.Shim) error {
	cur := s.Register(s.AllocateTID(), sandtrap.ThreadConfig{})
	req := sandtrap.GettidRequest()
	fmt.Printf("main thread has tid %d\n", s.Syscall(cur, &req))

	var threads []*sandtrap.Thread
	for i := 0; i < 3; i++ {
		th, err := spawn(s, func(t *sandtrap.Thread) uintptr {
			req := sandtrap.GettidRequest()
			tid := s.Syscall(t, &req)
			return uintptr(tid * tid)
		})
		if err != nil {
			return err
		}
		threads = append(threads, th)
	}

	for _, th := range threads {
		ret, errno := s.Join(cur, th.TID())
		if errno != 0 {
			return fmt.Errorf("join %d: %w", th.TID(), sandboxrt.ErrnoErr(errno))
		}
		fmt.Printf("thread %d returned %d\n", th.TID(), ret)
	}
	return nil
}
