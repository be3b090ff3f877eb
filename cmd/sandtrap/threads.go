package main

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/kmrgirish/sandtrap"
	"github.com/kmrgirish/sandtrap/sandboxrt"
)

func runThreads(s *sandtrap.Shim, count int) error {
	if count < 1 {
		return fmt.Errorf("-count must be positive, got %d", count)
	}
	cur := s.Register(s.AllocateTID(), sandtrap.ThreadConfig{})

	var word uint32
	var threads []*sandtrap.Thread
	var tids []int
	for i := 0; i < count; i++ {
		th, err := spawn(s, func(t *sandtrap.Thread) uintptr {
			for atomic.LoadUint32(&word) == 0 {
				s.Futex(t, &word, sandtrap.FUTEX_WAIT, 0, nil)
			}
			return uintptr(t.TID())
		})
		if err != nil {
			return err
		}
		threads = append(threads, th)
		tids = append(tids, th.TID())
	}
	waitParked(s, tids...)

	out := make([]sandtrap.ThreadInfo, count+1)
	n := s.ThreadInfos(cur, false, false, out)
	infos := out[:n]
	sort.Slice(infos, func(i, j int) bool { return infos[i].TID < infos[j].TID })

	fmt.Printf("%d threads parked\n", len(infos))
	for _, info := range infos {
		fmt.Printf("tid=%d stack=%dKiB regs=%t\n", info.TID, info.StackSize>>10, info.HasRegs)
	}

	atomic.StoreUint32(&word, 1)
	for _, th := range threads {
		for atomic.LoadUint32(th.RunningWord()) != 0 {
			s.Futex(cur, &word, sandtrap.FUTEX_WAKE, math.MaxInt32, nil)
			runtime.Gosched()
		}
		if _, errno := s.Join(cur, th.TID()); errno != 0 {
			return fmt.Errorf("join %d: %w", th.TID(), sandboxrt.ErrnoErr(errno))
		}
	}
	fmt.Printf("joined %d threads\n", len(threads))
	return nil
}
