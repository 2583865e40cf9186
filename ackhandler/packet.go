package ackhandler

import (
	"time"

	"github.com/GeorgeHahn/quicrecovery/internal/protocol"
)

// PacketInfo is one record per in-flight packet (spec §3: "PacketInfo").
// The loss detector owns payload_handle between SentPacket and its
// removal on ack, loss, or retransmission; it is never interpreted
// here, only handed back to the Transmitter.
type PacketInfo struct {
	PacketNumber    protocol.PacketNumber
	TimeSent        time.Time
	Retransmittable bool
	Handshake       bool
	Size            protocol.ByteCount

	// PayloadHandle is the opaque, owned reference the Transmitter uses
	// to rebuild this packet's retransmittable frames under a new
	// packet number. The loss detector never inspects it.
	PayloadHandle interface{}
}
