package level

import "time"

// FrameInterval is the default tick period, roughly one display frame at
// 60 Hz.
const FrameInterval = 16 * time.Millisecond

// Scheduler requests a single future callback, like an animation frame
// request. The returned cancel func prevents fn from running if it has not
// started yet; calling it more than once is safe.
type Scheduler interface {
	Request(fn func()) (cancel func())
}

// TimerScheduler runs each requested callback once after Interval on its own
// goroutine.
type TimerScheduler struct {
	Interval time.Duration
}

var _ Scheduler = TimerScheduler{}

// Request implements [Scheduler].
func (s TimerScheduler) Request(fn func()) func() {
	d := s.Interval
	if d <= 0 {
		d = FrameInterval
	}
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
