package utils

import (
	"time"
)

// The clock used by the stores. clockwork.FakeClock satisfies this
// interface so tests can control the passage of time.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

type RealClock struct{}

func (self RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (self RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (self RealClock) Now() time.Time {
	return time.Now()
}

// Timestamps are stored as microseconds since the epoch.
func Microseconds(t time.Time) int64 {
	return t.UnixNano() / 1000
}

func FromMicroseconds(ts int64) time.Time {
	return time.Unix(0, ts*1000)
}
