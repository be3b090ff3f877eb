package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/kmrgirish/sandtrap"
	"github.com/kmrgirish/sandtrap/internal/shimlog"
	"github.com/kmrgirish/sandtrap/sandboxrt/host"
)

const doc = `Sandtrap exercises the sandbox syscall shim against the host runtime.

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
`

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() {
		fmt.Print(doc)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		return 2
	}
	cmd := flag.Arg(0)
	cmdArgs := flag.Args()[1:]

	switch cmd {
	case "scenario":
		flags := flag.NewFlagSet("sandtrap scenario", flag.ExitOnError)
		opts := shimFlags(flags)
		flags.Parse(cmdArgs)
		if flags.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: sandtrap scenario [flags] <wake|timeout|join>")
			return 2
		}

		s := opts.build()
		name := flags.Arg(0)
		scenario, ok := scenarios[name]
		if !ok {
			log.Fatalf("unknown scenario %q", name)
		}
		if err := scenario(s); err != nil {
			log.Fatal(err)
		}

	case "threads":
		flags := flag.NewFlagSet("sandtrap threads", flag.ExitOnError)
		opts := shimFlags(flags)
		count := flags.Int("count", 3, "number of threads to spawn")
		flags.Parse(cmdArgs)

		if err := runThreads(opts.build(), *count); err != nil {
			log.Fatal(err)
		}

	case "help":
		flag.Usage()

	default:
		flag.Usage()
		return 2
	}
	return 0
}

// shimOptions carries the flags shared by every command.
type shimOptions struct {
	flags     *flag.FlagSet
	logLevel  *string
	logFormat *string
	trace     *string
}

func shimFlags(flags *flag.FlagSet) *shimOptions {
	return &shimOptions{
		flags:     flags,
		logLevel:  flags.String("log-level", shimlog.DefaultLevel(), "slog level for diagnostics"),
		logFormat: flags.String("log-format", shimlog.DefaultFormat(), "log formatting: raw|indented|pretty"),
		trace:     flags.String("trace", "", "comma-separated trace families to enable"),
	}
}

func (o *shimOptions) explicit(name string) bool {
	set := false
	o.flags.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// build sets up logging and a shim over the host runtime, exiting on
// configuration errors.
func (o *shimOptions) build() *sandtrap.Shim {
	level, err := shimlog.ParseLevel(*o.logLevel)
	if err != nil {
		log.Fatalf("bad -log-level: %v", err)
	}
	format, ok := shimlog.ParseFormat(*o.logFormat)
	if !ok {
		log.Fatalf("bad -log-format %q (want raw, indented, or pretty)", *o.logFormat)
	}
	// Traces log at debug level; enabling them while filtering them out
	// would silently print nothing.
	if *o.trace != "" && !o.explicit("log-level") {
		level = slog.LevelDebug
	}

	logger := shimlog.Setup(os.Stderr, level, format)
	s, err := sandtrap.New(host.New(), sandtrap.Config{
		Logger: logger,
		Trace:  *o.trace,
	})
	if err != nil {
		log.Fatal(err)
	}
	return s
}
