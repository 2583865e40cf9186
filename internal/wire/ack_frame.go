// Package wire holds the wire-level shapes the loss detector consumes.
// Parsing and serialization of the surrounding packet are out of scope
// (spec §1); this package models only the already-parsed ACK frame
// shape of spec §4.6/§6 and its range-expansion operation.
package wire

import (
	"time"

	"github.com/GeorgeHahn/quicrecovery/internal/protocol"
)

// AckBlock is one {gap, length} pair following the first ack block in
// an AckFrame, as laid out in spec §4.6: skip (gap+1) packet numbers,
// then the block covers (length+1) packet numbers.
type AckBlock struct {
	Gap    uint64
	Length uint64
}

// AckFrame is the already-parsed ACK frame shape consumed by
// on_ack_frame (spec §6). AckDelay is a time.Duration, so the unit is
// fixed at the boundary and the loss detector subtracts it from the
// RTT sample directly, with no further conversion.
type AckFrame struct {
	LargestAcknowledged  protocol.PacketNumber
	AckDelay             time.Duration // milliseconds-resolution value, stored as a Duration for convenience
	FirstAckBlockLength  uint64
	Blocks               []AckBlock
}

// Expand yields the set of packet numbers the frame acknowledges,
// descending from LargestAcknowledged through the first ack block and
// then through each subsequent {gap, length} pair (spec §4.6). Order is
// not significant to callers, so the packet numbers are emitted in
// descending order, matching the construction in
// QUICLossDetector::_determine_newly_acked_packets.
func (f *AckFrame) Expand() []protocol.PacketNumber {
	acked := make([]protocol.PacketNumber, 0, f.FirstAckBlockLength+1)
	pn := f.LargestAcknowledged
	for i := uint64(0); i <= f.FirstAckBlockLength; i++ {
		acked = append(acked, pn)
		pn--
	}
	for _, block := range f.Blocks {
		for i := uint64(0); i < block.Gap+1; i++ {
			pn--
		}
		for i := uint64(0); i <= block.Length; i++ {
			acked = append(acked, pn)
			pn--
		}
	}
	return acked
}
