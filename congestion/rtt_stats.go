package congestion

import "time"

// RTTStats is the smoothed round-trip-time estimator of spec §3/§4.5.
// All arithmetic happens in nanoseconds (time.Duration); the ack-delay
// subtraction required before a sample reaches UpdateRTT is the
// caller's responsibility (spec §4.2 step 2; mirrors
// QUICLossDetector::_on_ack_received in original_source, which computes
// the adjusted sample before calling _update_rtt).
//
// The zero value is ready to use: smoothed_rtt == 0 means "no sample
// yet", matching the invariant in spec §3.
type RTTStats struct {
	latestRTT   time.Duration
	smoothedRTT time.Duration
	rttVar      time.Duration
}

// UpdateRTT feeds a new RTT sample into the estimator (spec §4.5).
//
// The EWMA weights (3/4, 7/8) are applied as (3*x)/4 and (7*x)/8 rather
// than x*(3/4) and x*(7/8): time.Duration is an int64 of nanoseconds,
// and 3/4 and 7/8 evaluate to 0 in integer arithmetic if multiplied in
// the wrong order (spec §9, "Integer-division pitfalls in EWMA").
func (r *RTTStats) UpdateRTT(sample time.Duration) {
	if sample < 0 {
		sample = 0
	}
	r.latestRTT = sample

	if r.smoothedRTT == 0 {
		r.smoothedRTT = sample
		r.rttVar = sample / 2
		return
	}

	delta := r.smoothedRTT - sample
	if delta < 0 {
		delta = -delta
	}
	r.rttVar = (3*r.rttVar)/4 + delta/4
	r.smoothedRTT = (7*r.smoothedRTT)/8 + sample/8
}

// LatestRTT returns the most recent sample fed to UpdateRTT.
func (r *RTTStats) LatestRTT() time.Duration { return r.latestRTT }

// SmoothedRTT returns the current EWMA estimate, or 0 if no sample has
// ever been taken.
func (r *RTTStats) SmoothedRTT() time.Duration { return r.smoothedRTT }

// RTTVar returns the current mean-deviation estimate.
func (r *RTTStats) RTTVar() time.Duration { return r.rttVar }

// MaxRTT returns max(latest_rtt, smoothed_rtt), the value the loss
// detection rule (spec §4.3) scales to compute delay_until_lost.
func (r *RTTStats) MaxRTT() time.Duration {
	if r.latestRTT > r.smoothedRTT {
		return r.latestRTT
	}
	return r.smoothedRTT
}
