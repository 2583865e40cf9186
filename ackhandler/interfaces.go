package ackhandler

import (
	"time"

	"github.com/GeorgeHahn/quicrecovery/internal/protocol"
	"github.com/GeorgeHahn/quicrecovery/internal/wire"
)

// Transmitter is the external collaborator spec.md §6 calls "the packet
// transmitter": it builds, numbers and writes packets to the wire, and
// offers a retransmit operation that re-encodes a prior packet's
// retransmittable frames under a new packet number. The loss detector
// calls it while holding its own mutex; it does not acquire any
// transmitter-side lock, and this interface exposes none.
type Transmitter interface {
	// TransmitOneNewPacket asks for one new packet to be sent (tried
	// first by the TLP probe action, and used by the RTO probe action
	// when nothing is left to retransmit).
	// Returns the count of packets actually transmitted (0 if none were
	// available to send).
	TransmitOneNewPacket() int

	// Retransmit rebuilds the retransmittable frames referenced by
	// payloadHandle as a new packet under a new packet number.
	Retransmit(payloadHandle interface{})
}

// CongestionController is the external collaborator spec.md §6 calls
// "the congestion controller": it receives lost-packet notifications to
// adjust its window. It is called at most once per loss-detection
// invocation, and only with a non-empty set (spec §6).
type CongestionController interface {
	OnPacketsLost(lost []PacketInfo)
}

// SentPacketHandler is the LossDetector of spec.md §2: the core state
// machine attached to one QUIC connection, driven by packet-sent,
// ACK-received and timer-tick events.
type SentPacketHandler interface {
	// SentPacket records the packet-sent path (spec §4.1).
	SentPacket(packetNumber protocol.PacketNumber, retransmittable, handshake bool, size protocol.ByteCount, payloadHandle interface{}) error

	// ReceivedAck processes the ACK-received path (spec §4.2).
	ReceivedAck(ack *wire.AckFrame, recvTime time.Time) error

	// OnAlarm runs the alarm action (spec §4.7) when the timer tick
	// observes the armed deadline has passed.
	OnAlarm()

	// MaybeOnAlarm is the timer-tick entry point (spec §2 event 3):
	// fires OnAlarm if now has reached the armed deadline, re-evaluating
	// the scheduling rule until the deadline is in the future again.
	MaybeOnAlarm(now time.Time)

	// GetAlarmTimeout exposes the current armed deadline, or the zero
	// time if unarmed.
	GetAlarmTimeout() time.Time

	// LargestAckedPacketNumber is the read-only accessor of spec §6.
	LargestAckedPacketNumber() protocol.PacketNumber

	// BytesInFlight and PacketsInFlight expose in-flight bookkeeping for
	// inspection (congestion controllers, tests).
	BytesInFlight() protocol.ByteCount
	PacketsInFlight() int

	// SpuriousRTO reports whether the most recent RTO was later found
	// spurious by a late ACK (spec §9 Open Questions).
	SpuriousRTO() bool

	// Shutdown cancels the alarm; subsequent events are no-ops (spec §6).
	Shutdown()
}
