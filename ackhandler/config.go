package ackhandler

import (
	"time"

	"github.com/GeorgeHahn/quicrecovery/internal/protocol"
)

// LossDetectionMode selects the loss-classification mode fixed at
// construction (spec §4.3): exactly one of reordering-threshold or
// time-threshold loss is active for the connection's lifetime.
type LossDetectionMode int

const (
	// TimeBased sets reordering_threshold = infinity and
	// time_reordering_fraction = 1/8.
	TimeBased LossDetectionMode = iota
	// CountBased sets reordering_threshold = 3 and
	// time_reordering_fraction = infinity.
	CountBased
)

// Config holds the tuning constants enumerated in spec §3/§6.
// NewSentPacketHandler applies DefaultConfig's values for any zero
// field, mirroring the teacher's nil-fallback construction style.
type Config struct {
	Mode LossDetectionMode

	MaxTLPs                int
	ReorderingThreshold    protocol.PacketNumber
	TimeReorderingFraction float64 // 0 means "infinite" (disabled)

	MinTLPTimeout     time.Duration
	MinRTOTimeout     time.Duration
	DelayedAckTimeout time.Duration
	DefaultInitialRTT time.Duration
	TickInterval      time.Duration
}

// DefaultConfig returns the constants of spec §3, in TimeBased mode.
func DefaultConfig() *Config {
	return &Config{
		Mode:                   TimeBased,
		MaxTLPs:                protocol.MaxTLPs,
		ReorderingThreshold:    0,
		TimeReorderingFraction: protocol.TimeReorderingFraction,
		MinTLPTimeout:          protocol.MinTLPTimeout,
		MinRTOTimeout:          protocol.MinRTOTimeout,
		DelayedAckTimeout:      protocol.DelayedAckTimeout,
		DefaultInitialRTT:      protocol.DefaultInitialRTT,
		TickInterval:           protocol.TickInterval,
	}
}

// withDefaults fills zero-valued fields of cfg from DefaultConfig,
// returning a complete, ready-to-use Config. A nil cfg yields
// DefaultConfig() outright, and Mode is applied per §4.3 (count-based
// forces reordering_threshold=3 / fraction=infinite, time-based forces
// the inverse) regardless of what the caller set for those two fields.
func (cfg *Config) withDefaults() *Config {
	d := DefaultConfig()
	if cfg == nil {
		cfg = &Config{}
	}
	out := *cfg
	if out.MaxTLPs == 0 {
		out.MaxTLPs = d.MaxTLPs
	}
	if out.MinTLPTimeout == 0 {
		out.MinTLPTimeout = d.MinTLPTimeout
	}
	if out.MinRTOTimeout == 0 {
		out.MinRTOTimeout = d.MinRTOTimeout
	}
	if out.DelayedAckTimeout == 0 {
		out.DelayedAckTimeout = d.DelayedAckTimeout
	}
	if out.DefaultInitialRTT == 0 {
		out.DefaultInitialRTT = d.DefaultInitialRTT
	}
	if out.TickInterval == 0 {
		out.TickInterval = d.TickInterval
	}

	switch out.Mode {
	case CountBased:
		out.ReorderingThreshold = protocol.ReorderingThreshold
		out.TimeReorderingFraction = 0
	default:
		out.Mode = TimeBased
		out.ReorderingThreshold = 0
		out.TimeReorderingFraction = protocol.TimeReorderingFraction
	}
	return &out
}
