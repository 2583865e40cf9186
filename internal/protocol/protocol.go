// Package protocol contains constants and types shared across the loss
// detector and its collaborators.
package protocol

import "time"

// PacketNumber is the packet number of a QUIC packet.
type PacketNumber uint64

// ByteCount is a number of bytes.
type ByteCount uint64

const (
	// InvalidPacketNumber is used to express "no packet number yet".
	InvalidPacketNumber PacketNumber = 0

	// MaxTrackedSentPackets is the maximum number of sent packets the
	// loss detector keeps in its in-flight map at once. Exceeding it
	// indicates a
	// malformed or runaway sender and is reported as an error rather
	// than growing unbounded.
	MaxTrackedSentPackets = 5000
)

// Loss-detection tuning constants, fixed by the protocol draft (spec §3, §6).
const (
	// MaxTLPs is the number of Tail Loss Probes sent before falling back
	// to RTO.
	MaxTLPs = 2

	// ReorderingThreshold is the packet-number gap tolerated before an
	// older in-flight packet is considered lost, in count-based mode.
	ReorderingThreshold = 3

	// TimeReorderingFraction is the fraction of max(latest_rtt,
	// smoothed_rtt) added as slack before a packet becomes losable by
	// the time-threshold rule, in time-based mode.
	TimeReorderingFraction = 1.0 / 8

	// MinTLPTimeout is the minimum time in the future a TLP alarm may be
	// set for.
	MinTLPTimeout = 10 * time.Millisecond

	// MinRTOTimeout is the minimum time in the future an RTO alarm may
	// be set for.
	MinRTOTimeout = 200 * time.Millisecond

	// DelayedAckTimeout approximates the peer's delayed-ack timer and
	// is folded into the TLP timeout computation.
	DelayedAckTimeout = 25 * time.Millisecond

	// DefaultInitialRTT is used to compute the handshake retransmission
	// alarm before any RTT sample has been taken.
	DefaultInitialRTT = 100 * time.Millisecond

	// TickInterval is the granularity at which the loss detector polls
	// its armed deadline. The protocol draft requires granularity ≤
	// 25ms; the original QUICLossDetector.cc schedules its periodic
	// event at exactly this interval.
	TickInterval = 25 * time.Millisecond
)
