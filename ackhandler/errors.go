package ackhandler

import "github.com/GeorgeHahn/quicrecovery/internal/qerr"

// Errors returned by SentPacket and ReceivedAck for the malformed-input
// categories of spec §7. The caller (the surrounding connection) decides
// whether the offending event is fatal; the loss detector itself never
// panics on these and leaves its invariants intact.
var (
	// ErrDuplicateOrOutOfOrderPacket is returned by SentPacket when the
	// supplied packet number is not strictly greater than
	// largest_sent_packet, violating spec §4.1's precondition.
	ErrDuplicateOrOutOfOrderPacket = qerr.NewError(qerr.InvalidPacketSent, "packet number not greater than largest sent packet")

	// ErrAckForUnsentPacket is returned by ReceivedAck when
	// largest_acknowledged exceeds largest_sent_packet: the peer
	// acknowledged a packet number this endpoint never sent.
	ErrAckForUnsentPacket = qerr.NewError(qerr.InvalidAckData, "largest acknowledged packet number greater than largest sent packet")

	// ErrTooManyTrackedPackets is returned by SentPacket when the
	// in-flight map would grow past protocol.MaxTrackedSentPackets,
	// signalling a runaway sender or a stuck ACK path upstream.
	ErrTooManyTrackedPackets = qerr.NewError(qerr.InvalidPacketSent, "too many outstanding packets")
)
