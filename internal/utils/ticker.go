package utils

import "time"

// PeriodicTicker wraps time.Ticker in a small handle the caller can stop
// idempotently; a stopped ticker is not restarted, a new one is created
// instead. The loss
// detector subscribes one of these at package granularity (spec: ≤
// 25ms) and polls its channel on every tick.
type PeriodicTicker struct {
	t       *time.Ticker
	stopped bool
}

// NewPeriodicTicker starts a new ticker firing every interval.
func NewPeriodicTicker(interval time.Duration) *PeriodicTicker {
	return &PeriodicTicker{t: time.NewTicker(interval)}
}

// Chan returns the channel of the wrapped ticker.
func (t *PeriodicTicker) Chan() <-chan time.Time {
	return t.t.C
}

// Stop stops the ticker. Safe to call more than once.
func (t *PeriodicTicker) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	t.t.Stop()
}
