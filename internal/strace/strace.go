// Package strace logs syscall-shaped call traces: one record on entry
// with the formatted arguments and one on exit with the result, in the
// style of strace(1). Records go through slog at debug level and are
// gated by trace flags so an untraced call costs one branch.
package strace

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/kmrgirish/sandtrap/sandboxrt"
)

type Tracer struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Tracer {
	return &Tracer{log: log}
}

// Enter records a call with its rendered arguments, e.g.
// "futex(0xc00001c0a0, FUTEX_WAIT, 1, {0 1000000})".
func (t *Tracer) Enter(f *TraceFlag, tid int, name, args string) {
	if !f.Enabled() {
		return
	}
	t.log.LogAttrs(context.Background(), slog.LevelDebug, name+"("+args+")",
		slog.Int("tid", tid),
		slog.String("sys", name),
		slog.String("phase", "enter"))
}

// Exit records a call's result, e.g. "futex = -110 ETIMEDOUT". A zero
// errno reports plain success.
func (t *Tracer) Exit(f *TraceFlag, tid int, name string, ret int, errno sandboxrt.Errno) {
	if !f.Enabled() {
		return
	}
	msg := name + " = " + strconv.Itoa(ret)
	if errno != 0 {
		msg += " " + errno.String()
	}
	t.log.LogAttrs(context.Background(), slog.LevelDebug, msg,
		slog.Int("tid", tid),
		slog.String("sys", name),
		slog.String("phase", "exit"),
		slog.Int("ret", ret))
}
