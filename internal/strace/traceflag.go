package strace

import (
	"fmt"
	"slices"
	"strings"
)

// A TraceFlag gates one family of trace records. Flags are set once at
// startup by Parse and only read afterwards.
type TraceFlag struct {
	enabled bool
}

func (t *TraceFlag) set(enabled bool) {
	t.enabled = enabled
}

func (t *TraceFlag) Enabled() bool {
	return t.enabled
}

var traceflags map[string]*TraceFlag

var (
	// Syscall traces every multiplexer entry and exit.
	Syscall TraceFlag
	// Futex traces the futex surface with decoded arguments.
	Futex TraceFlag
	// Thread traces registry changes, join and exit.
	Thread TraceFlag
	// Mem traces mapping and unmapping.
	Mem TraceFlag
)

func init() {
	traceflags = map[string]*TraceFlag{
		"syscall": &Syscall,
		"futex":   &Futex,
		"thread":  &Thread,
		"mem":     &Mem,
	}
}

func knownTraceflags() string {
	names := make([]string, 0, len(traceflags))
	for name := range traceflags {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}

// Parse configures the trace flags from a comma-separated list of names.
// Flags not named are disabled, so Parse is idempotent.
func Parse(config string) error {
	for _, existing := range traceflags {
		existing.set(false)
	}

	for _, name := range strings.Split(config, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		flag, ok := traceflags[name]
		if !ok {
			return fmt.Errorf("unknown traceflag %q (known %s)", name, knownTraceflags())
		}
		flag.set(true)
	}

	return nil
}
