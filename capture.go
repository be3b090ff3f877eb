package sandtrap

import "runtime"

// capturePCs is the default context capture: the caller's return-PC
// chain, the execution state a portable runtime can legitimately
// extract. The skip count drops runtime.Callers, this function,
// regContext.save, and Thread.saveContext, so the first word is the
// frame that blocked.
func capturePCs(buf *[ContextWords]uintptr) {
	runtime.Callers(4, buf[:])
}
