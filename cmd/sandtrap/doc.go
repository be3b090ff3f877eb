/*
Sandtrap exercises the sandbox syscall shim against the host runtime.

Usage: sandtrap <command> [arguments]

The commands are:

	scenario       run one shim scenario
	threads        spawn threads and enumerate them
	help           print this help

The 'scenario' command:

Usage: sandtrap scenario [-log-level=...] [-log-format=...] [-trace=...] <name>

The scenario command runs one scripted interaction against the shim and
prints what happened. The scenarios are:

	wake           a waiter parks on a futex word and a waker releases it
	timeout        a timed futex wait expires
	join           threads exit with values and are joined

Log records go to standard error. The -log-level flag sets the slog
level (default from SANDTRAP_LOG_LEVEL, or info). The -log-format flag
selects raw, indented, or pretty records (default from
SANDTRAP_LOG_FORMAT, or raw). The -trace flag enables call tracing by
family, comma-separated: syscall, futex, thread, mem; traces log at
debug level, so tracing implies -log-level=debug unless set explicitly.

The 'threads' command:

Usage: sandtrap threads [-count=N] [-log-level=...] [-log-format=...] [-trace=...]

The threads command spawns N futex-parked threads, enumerates them with
their stacks and captured contexts, then wakes and joins them all.
*/
package main
