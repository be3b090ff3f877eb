package sandboxrt

// A Timespec is a second/nanosecond time. Whether it is absolute or
// relative depends on the operation it is passed to.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// Valid reports whether the nanosecond field is normalized to [0, 1e9)
// and the second field is non-negative.
func (ts Timespec) Valid() bool {
	return ts.Sec >= 0 && ts.Nsec >= 0 && ts.Nsec < 1e9
}

// Nano returns ts as nanoseconds since the epoch.
func (ts Timespec) Nano() int64 {
	return ts.Sec*1e9 + ts.Nsec
}

// A Timeval is a second/microsecond wall-clock sample.
type Timeval struct {
	Sec  int64
	Usec int64
}

// Timespec converts tv to nanosecond resolution.
func (tv Timeval) Timespec() Timespec {
	return Timespec{Sec: tv.Sec, Nsec: tv.Usec * 1e3}
}
