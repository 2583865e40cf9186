// Package qerr carries the loss detector's own error values, in the
// teacher's convention of pairing an error code with a message
// (ackhandler.ErrEntropy, ackhandler.ErrMapAccess and friends in the
// upstream sent_packet_handler.go).
package qerr

// ErrorCode classifies a loss-detector programming fault (spec §7).
type ErrorCode uint16

const (
	// NoError is never used to construct an Error; it exists so the
	// zero value of ErrorCode is recognizably "none".
	NoError ErrorCode = iota
	// InvalidAckData marks an ACK frame that could not have been sent
	// validly against what this endpoint has transmitted: an
	// acknowledgement for a packet number above the largest sent.
	InvalidAckData
	// InvalidPacketSent marks a packet-sent notification that violates
	// the caller's ordering contract (duplicate or non-increasing
	// packet number) or would exceed the tracked-packet limit.
	InvalidPacketSent
)

func (c ErrorCode) String() string {
	switch c {
	case InvalidAckData:
		return "INVALID_ACK_DATA"
	case InvalidPacketSent:
		return "INVALID_PACKET_SENT"
	default:
		return "NO_ERROR"
	}
}

// Error pairs an ErrorCode with a human-readable message.
type Error struct {
	ErrorCode    ErrorCode
	ErrorMessage string
}

func (e *Error) Error() string {
	if e.ErrorMessage == "" {
		return e.ErrorCode.String()
	}
	return e.ErrorCode.String() + ": " + e.ErrorMessage
}

// NewError constructs an *Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{ErrorCode: code, ErrorMessage: message}
}
