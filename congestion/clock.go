package congestion

import "time"

// Clock abstracts monotonic_now() (spec §6, "consumed from the
// runtime"). Grounded on the teacher's own congestion.DefaultClock{}
// passed into NewCubicSender in ackhandler.NewSentPacketHandler.
type Clock interface {
	Now() time.Time
}

// DefaultClock is a Clock backed by the real wall clock.
type DefaultClock struct{}

// Now returns time.Now(). time.Now() is monotonic in Go (it carries a
// monotonic reading alongside the wall clock one), satisfying the
// monotonic_now() requirement of spec §6 without extra bookkeeping.
func (DefaultClock) Now() time.Time {
	return time.Now()
}
