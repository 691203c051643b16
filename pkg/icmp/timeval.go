package icmp

import "time"

const usecPerSec = 1_000_000

// Timeval is a wall-clock instant split into whole seconds and microseconds,
// the resolution carried in an echo payload.
type Timeval struct {
	Sec  int64
	Usec int64
}

// TimevalOf truncates t to microsecond resolution.
func TimevalOf(t time.Time) Timeval {
	return Timeval{Sec: t.Unix(), Usec: int64(t.Nanosecond() / 1000)}
}

// Sub returns tv - in. When in's fractional part exceeds tv's, one second
// is borrowed. tv is assumed to be no earlier than in.
func (tv Timeval) Sub(in Timeval) Timeval {
	tv.Usec -= in.Usec
	if tv.Usec < 0 {
		tv.Sec--
		tv.Usec += usecPerSec
	}
	tv.Sec -= in.Sec
	return tv
}

// Duration converts tv to a time.Duration.
func (tv Timeval) Duration() time.Duration {
	return time.Duration(tv.Sec)*time.Second + time.Duration(tv.Usec)*time.Microsecond
}

// Elapsed returns the time between sent and now at microsecond resolution.
// It is used for latency logging only.
func Elapsed(now time.Time, sent Timeval) time.Duration {
	return TimevalOf(now).Sub(sent).Duration()
}
