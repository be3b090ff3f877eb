package sandboxrt

import "strconv"

// An Errno is an error number using the Linux values. Zero reports
// success and is never a valid error. Errno implements error so runtime
// failures can flow through Go error paths without conversion.
type Errno uintptr

const (
	EPERM     Errno = 1
	ESRCH     Errno = 3
	EAGAIN    Errno = 11
	ENOMEM    Errno = 12
	EFAULT    Errno = 14
	EINVAL    Errno = 22
	EDEADLK   Errno = 35
	ENOSYS    Errno = 38
	ETIMEDOUT Errno = 110

	// EWOULDBLOCK is the traditional name futex callers expect for a
	// failed value check.
	EWOULDBLOCK = EAGAIN
)

var errnoText = map[Errno]struct{ name, text string }{
	EPERM:     {"EPERM", "operation not permitted"},
	ESRCH:     {"ESRCH", "no such process"},
	EAGAIN:    {"EAGAIN", "resource temporarily unavailable"},
	ENOMEM:    {"ENOMEM", "cannot allocate memory"},
	EFAULT:    {"EFAULT", "bad address"},
	EINVAL:    {"EINVAL", "invalid argument"},
	EDEADLK:   {"EDEADLK", "resource deadlock avoided"},
	ENOSYS:    {"ENOSYS", "function not implemented"},
	ETIMEDOUT: {"ETIMEDOUT", "connection timed out"},
}

// Error returns the strerror-style message.
func (e Errno) Error() string {
	if t, ok := errnoText[e]; ok {
		return t.text
	}
	return "errno " + strconv.Itoa(int(e))
}

// String returns the symbolic name, as it appears in call traces.
func (e Errno) String() string {
	if t, ok := errnoText[e]; ok {
		return t.name
	}
	return "errno " + strconv.Itoa(int(e))
}

// Do the interface allocations only once for common
// Errno values.
var (
	errEAGAIN    error = EAGAIN
	errEINVAL    error = EINVAL
	errETIMEDOUT error = ETIMEDOUT
)

// ErrnoErr returns common boxed Errno values, to prevent
// allocations at runtime.
func ErrnoErr(e Errno) error {
	switch e {
	case 0:
		return nil
	case EAGAIN:
		return errEAGAIN
	case EINVAL:
		return errEINVAL
	case ETIMEDOUT:
		return errETIMEDOUT
	}
	return e
}
