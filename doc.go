/*
Package sandtrap presents POSIX syscall semantics to code running inside
a sandbox that only offers a handful of primitives: futex wait with an
absolute deadline, futex wake, anonymous memory mapping, the time of
day, and a processor yield. A libc or thread-library port calls the shim
where it would otherwise trap into a kernel; the shim rebuilds the
contract each call promises out of what the sandbox actually provides.

# Surfaces

A [Shim] exposes four surfaces:

  - The futex surface. [Shim.Futex] implements FUTEX_WAIT and FUTEX_WAKE
    (with or without FUTEX_PRIVATE_FLAG) over the runtime's
    absolute-deadline wait, converting the relative timeouts POSIX
    callers pass into the absolute deadlines the sandbox wants. Results
    follow the kernel convention: woken counts and zero on success,
    negated errnos on failure. Waits can wake spuriously; callers
    re-check their condition, as futex callers always must.

  - The syscall multiplexer. [Shim.Syscall] dispatches a decoded
    [Request] the way the generic syscall(2) entry point would: gettid,
    futex, sched_setaffinity (accepted and ignored), and on ARM the
    private cacheflush call. Anything else fails with ENOSYS and one
    warning per call site. Numbers arrive in the configured [Arch]'s
    native numbering and are translated before dispatch.

  - Memory. [Shim.Mmap] and [Shim.Munmap] pass anonymous mappings
    through to the sandbox, mostly so thread libraries can allocate
    stacks the join protocol later releases.

  - Threads. [Shim.Register] tracks a thread's identity, stack, and
    detach state; [Shim.Exit] publishes its exit; [Shim.Join] implements
    pthread_join's contract, including EDEADLK on self-join, EINVAL on
    double join, and releasing library-allocated stacks exactly once.
    [Shim.ThreadInfos] enumerates threads for debuggers without
    disturbing them.

# Runtimes

The sandbox side is the [sandboxrt.Runtime] interface. The
[github.com/kmrgirish/sandtrap/sandboxrt/host] package implements it
in-process so tests, examples, and the sandtrap command run unmodified;
a real sandbox substitutes its own implementation.

# A small example

	rt := host.New()
	shim, err := sandtrap.New(rt, sandtrap.Config{Trace: "futex"})
	if err != nil {
		...
	}
	main := shim.Register(shim.AllocateTID(), sandtrap.ThreadConfig{UserStack: true})

	word := uint32(0)
	// Returns -EWOULDBLOCK immediately: the word does not hold 1.
	shim.Futex(main, &word, sandtrap.FUTEX_WAIT, 1, nil)

Tracing (the Trace field of [Config]) logs each call and result through
slog in the style of strace(1).
*/
package sandtrap
