package ackhandler

import (
	"sync"
	"time"

	"github.com/GeorgeHahn/quicrecovery/congestion"
	"github.com/GeorgeHahn/quicrecovery/internal/protocol"
	"github.com/GeorgeHahn/quicrecovery/internal/utils"
	"github.com/GeorgeHahn/quicrecovery/internal/wire"
)

var _ SentPacketHandler = &sentPacketHandler{}

// sentPacketHandler is the LossDetector of spec §2: in-flight
// bookkeeping, the RTT estimator, the loss-classification rule and the
// single alarm slot, all guarded by one mutex (spec §5: "a single
// logical actor bound to a mutex").
type sentPacketHandler struct {
	mutex sync.Mutex

	config *Config
	clock  congestion.Clock

	packetHistory *PacketList
	bytesInFlight protocol.ByteCount

	largestSentPacket    protocol.PacketNumber
	largestAckedPacket   protocol.PacketNumber
	largestSentBeforeRTO protocol.PacketNumber

	handshakeOutstanding       int
	retransmittableOutstanding int

	handshakeCount uint32
	tlpCount       uint32
	rtoCount       uint32

	// spuriousRTO records that the most recent RTO was later found
	// spurious by a late ACK (spec §9 Open Questions: the
	// on_retransmission_timeout_verified hook is referenced but left
	// unwired; this is the inspection-only substitute).
	spuriousRTO bool

	lossTime     time.Time
	lastSentTime time.Time

	alarm  time.Time
	ticker *utils.PeriodicTicker
	stopCh chan struct{}

	rttStats *congestion.RTTStats

	transmitter          Transmitter
	congestionController CongestionController

	metrics *Metrics

	shutdown bool
}

// NewSentPacketHandler creates a LossDetector for one connection. A nil
// clock defaults to congestion.DefaultClock{}; a nil cfg defaults to
// DefaultConfig(); a nil metrics disables Prometheus reporting.
func NewSentPacketHandler(cfg *Config, clock congestion.Clock, transmitter Transmitter, cc CongestionController, metrics *Metrics) SentPacketHandler {
	if clock == nil {
		clock = congestion.DefaultClock{}
	}
	return &sentPacketHandler{
		config:               cfg.withDefaults(),
		clock:                clock,
		packetHistory:        NewPacketList(),
		rttStats:             &congestion.RTTStats{},
		transmitter:          transmitter,
		congestionController: cc,
		metrics:              metrics,
	}
}

func (h *sentPacketHandler) now() time.Time {
	return h.clock.Now()
}

// SentPacket implements the packet-sent path (spec §4.1).
func (h *sentPacketHandler) SentPacket(pn protocol.PacketNumber, retransmittable, handshake bool, size protocol.ByteCount, payloadHandle interface{}) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.shutdown {
		return nil
	}
	if pn <= h.largestSentPacket {
		return ErrDuplicateOrOutOfOrderPacket
	}
	if h.packetHistory.Len() >= protocol.MaxTrackedSentPackets {
		return ErrTooManyTrackedPackets
	}

	now := h.now()
	h.largestSentPacket = pn
	h.lastSentTime = now

	h.packetHistory.PushBack(PacketInfo{
		PacketNumber:    pn,
		TimeSent:        now,
		Retransmittable: retransmittable,
		Handshake:       handshake,
		Size:            size,
		PayloadHandle:   payloadHandle,
	})
	h.bytesInFlight += size

	if handshake {
		h.handshakeOutstanding++
	}
	if retransmittable {
		h.retransmittableOutstanding++
		h.updateLossDetectionAlarm(now)
	}

	h.metrics.setBytesInFlight(uint64(h.bytesInFlight))
	utils.Debugf("sent packet %d (handshake=%v, retransmittable=%v, size=%d); outstanding: retransmittable=%d handshake=%d",
		pn, handshake, retransmittable, size, h.retransmittableOutstanding, h.handshakeOutstanding)
	return nil
}

// ReceivedAck implements the ACK-received path (spec §4.2).
func (h *sentPacketHandler) ReceivedAck(ack *wire.AckFrame, recvTime time.Time) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.shutdown {
		return nil
	}
	if ack.LargestAcknowledged > h.largestSentPacket {
		return ErrAckForUnsentPacket
	}

	// 1. largest_acked_packet <- max(largest_acked_packet, L).
	if ack.LargestAcknowledged > h.largestAckedPacket {
		h.largestAckedPacket = ack.LargestAcknowledged
	}

	// 2. RTT sample, only for the largest acked, only if newly seen.
	if el, ok := h.packetHistory.Get(ack.LargestAcknowledged); ok {
		sample := recvTime.Sub(el.Value.TimeSent)
		if sample > ack.AckDelay {
			sample -= ack.AckDelay
		} else {
			sample = 0
		}
		h.rttStats.UpdateRTT(sample)
		h.metrics.setSmoothedRTT(h.rttStats.SmoothedRTT())
		utils.Debugf("updated rtt: latest=%s smoothed=%s rttvar=%s", h.rttStats.LatestRTT(), h.rttStats.SmoothedRTT(), h.rttStats.RTTVar())
	}

	// 3. Expand the ack ranges into the set of acknowledged numbers.
	acked := ack.Expand()

	// 4. Newly-acked processing.
	ackedCount := 0
	for _, pn := range acked {
		pi, ok := h.packetHistory.RemoveByNumber(pn)
		if !ok {
			continue
		}
		if h.rtoCount > 0 && pn > h.largestSentBeforeRTO {
			h.spuriousRTO = true
			h.metrics.onSpuriousRTO()
			utils.Infof("RTO declared spurious: ack for packet %d above largest sent before RTO (%d)", pn, h.largestSentBeforeRTO)
		}
		h.handshakeCount = 0
		h.tlpCount = 0
		h.rtoCount = 0

		h.releasePacket(pi)
		ackedCount++
	}
	h.metrics.onPacketsAcked(ackedCount)

	// 5. Loss-detection rule against L.
	h.detectLostPackets(ack.LargestAcknowledged, recvTime)

	// 6. Re-arm the alarm.
	h.updateLossDetectionAlarm(recvTime)

	h.metrics.setBytesInFlight(uint64(h.bytesInFlight))
	utils.Debugf("processed ack, largest_acked=%d newly_acked=%d outstanding: retransmittable=%d handshake=%d",
		h.largestAckedPacket, ackedCount, h.retransmittableOutstanding, h.handshakeOutstanding)
	return nil
}

// removePacket drops a tracked packet by its list element, releasing
// its payload_handle and decrementing the outstanding counters it
// contributed to (spec §3, "on removal the handle is released").
func (h *sentPacketHandler) removePacket(el *PacketElement) {
	p := el.Value
	h.packetHistory.Remove(el)
	h.releasePacket(p)
}

// releasePacket decrements the outstanding counters a now-removed
// packet contributed to. Callers that already removed the packet by
// packet number (PacketList.RemoveByNumber) use this directly instead
// of routing back through a *PacketElement.
func (h *sentPacketHandler) releasePacket(p PacketInfo) {
	if p.Handshake {
		h.handshakeOutstanding--
	}
	if p.Retransmittable {
		h.retransmittableOutstanding--
	}
	h.bytesInFlight -= p.Size
}

// detectLostPackets is the loss-detection rule (spec §4.3), invoked
// against the largest acked packet from the ACK path and, from the
// alarm, against the current largest_acked_packet.
func (h *sentPacketHandler) detectLostPackets(largestAcked protocol.PacketNumber, now time.Time) {
	maxRTT := h.rttStats.MaxRTT()

	var delayUntilLost time.Duration
	timeBased := true
	switch {
	case h.config.TimeReorderingFraction > 0:
		delayUntilLost = time.Duration((1 + h.config.TimeReorderingFraction) * float64(maxRTT))
	case largestAcked != 0 && largestAcked == h.largestSentPacket:
		delayUntilLost = maxRTT * 9 / 8
	default:
		timeBased = false
	}
	reorderingActive := h.config.ReorderingThreshold > 0

	h.lossTime = time.Time{}

	var lostEls []*PacketElement
	for el := h.packetHistory.Front(); el != nil; el = el.Next() {
		pi := el.Value
		if pi.PacketNumber >= largestAcked {
			break
		}
		packetDelta := largestAcked - pi.PacketNumber
		timeSinceSent := now.Sub(pi.TimeSent)

		lost := false
		if timeBased && timeSinceSent > delayUntilLost {
			lost = true
		}
		if reorderingActive && packetDelta > h.config.ReorderingThreshold {
			lost = true
		}

		if lost {
			lostEls = append(lostEls, el)
		} else if h.lossTime.IsZero() && timeBased {
			h.lossTime = now.Add(delayUntilLost - timeSinceSent)
		}
	}

	if len(lostEls) == 0 {
		return
	}

	lost := make([]PacketInfo, 0, len(lostEls))
	for _, el := range lostEls {
		lost = append(lost, el.Value)
		h.removePacket(el)
	}
	h.metrics.onPacketsLost(len(lost))
	if h.congestionController != nil {
		h.congestionController.OnPacketsLost(lost)
	}
	utils.Infof("declared %d packet(s) lost against largest_acked=%d", len(lost), largestAcked)
}

// updateLossDetectionAlarm is the alarm-scheduling rule (spec §4.4): a
// top-down priority decision, pulling the armed deadline earlier but
// never pushing it later within a single scheduling step.
func (h *sentPacketHandler) updateLossDetectionAlarm(now time.Time) {
	if h.retransmittableOutstanding == 0 {
		h.alarm = time.Time{}
		h.stopTicker()
		return
	}

	var duration time.Duration
	switch {
	case h.handshakeOutstanding > 0:
		base := 2 * h.rttStats.SmoothedRTT()
		if h.rttStats.SmoothedRTT() == 0 {
			base = 2 * h.config.DefaultInitialRTT
		}
		if base < h.config.MinTLPTimeout {
			base = h.config.MinTLPTimeout
		}
		duration = scaleByPow2(base, h.handshakeCount)
	case !h.lossTime.IsZero():
		duration = h.lossTime.Sub(now)
	case h.tlpCount < uint32(h.config.MaxTLPs):
		a := 3*h.rttStats.SmoothedRTT()/2 + h.config.DelayedAckTimeout
		b := 2 * h.rttStats.SmoothedRTT()
		duration = a
		if b > duration {
			duration = b
		}
		if duration < h.config.MinTLPTimeout {
			duration = h.config.MinTLPTimeout
		}
	default:
		d := h.rttStats.SmoothedRTT() + 4*h.rttStats.RTTVar()
		if d < h.config.MinRTOTimeout {
			d = h.config.MinRTOTimeout
		}
		duration = scaleByPow2(d, h.rtoCount)
	}

	target := now.Add(duration)
	if h.alarm.IsZero() || target.Before(h.alarm) {
		h.alarm = target
	}
	h.startTicker()
	utils.Debugf("alarm armed for %s (in %s)", h.alarm, duration)
}

// OnAlarm is the alarm action (spec §4.7), run when a tick observes the
// armed deadline has passed.
func (h *sentPacketHandler) OnAlarm() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.shutdown {
		return
	}
	now := h.now()

	switch {
	case h.handshakeOutstanding > 0:
		h.retransmitHandshakePackets()
	case !h.lossTime.IsZero():
		h.detectLostPackets(h.largestAckedPacket, now)
	case h.tlpCount < uint32(h.config.MaxTLPs):
		h.sendTLP()
	default:
		h.sendRTO()
	}

	// The deadline just consumed is stale; clear it so the re-arm below
	// computes a fresh target instead of "pulling earlier" against a
	// now-past value (which would never advance again).
	h.alarm = time.Time{}
	h.updateLossDetectionAlarm(now)
}

// MaybeOnAlarm is the timer-tick entry point (spec §2 event 3).
func (h *sentPacketHandler) MaybeOnAlarm(now time.Time) {
	h.mutex.Lock()
	due := !h.shutdown && !h.alarm.IsZero() && !now.Before(h.alarm)
	h.mutex.Unlock()

	if due {
		h.OnAlarm()
	}
}

func (h *sentPacketHandler) retransmitHandshakePackets() {
	var els []*PacketElement
	for el := h.packetHistory.Front(); el != nil && el.Value.Handshake; el = el.Next() {
		els = append(els, el)
	}
	for _, el := range els {
		if h.transmitter != nil {
			h.transmitter.Retransmit(el.Value.PayloadHandle)
		}
		h.removePacket(el)
	}
	h.handshakeCount++
	h.metrics.onHandshakeRetransmit(len(els))
	utils.Infof("retransmitted %d handshake packet(s), handshake_count=%d", len(els), h.handshakeCount)
}

func (h *sentPacketHandler) sendTLP() {
	n := 0
	if h.transmitter != nil {
		n = h.transmitter.TransmitOneNewPacket()
	}
	if n == 0 {
		if el := h.packetHistory.Back(); el != nil && h.transmitter != nil {
			h.transmitter.Retransmit(el.Value.PayloadHandle)
		}
	}
	h.tlpCount++
	h.metrics.onTLPSent()
	utils.Infof("sent tail loss probe, tlp_count=%d", h.tlpCount)
}

func (h *sentPacketHandler) sendRTO() {
	if h.rtoCount == 0 {
		h.largestSentBeforeRTO = h.largestSentPacket
	}
	sent := 0
	if h.transmitter != nil {
		for el := h.packetHistory.Back(); el != nil && sent < 2; el = el.Prev() {
			h.transmitter.Retransmit(el.Value.PayloadHandle)
			sent++
		}
		if sent == 0 {
			h.transmitter.TransmitOneNewPacket()
		}
	}
	h.rtoCount++
	h.metrics.onRTOFired()
	utils.Infof("RTO fired, rto_count=%d", h.rtoCount)
}

func (h *sentPacketHandler) startTicker() {
	if h.ticker != nil {
		return
	}
	h.ticker = utils.NewPeriodicTicker(h.config.TickInterval)
	h.stopCh = make(chan struct{})
	go h.tickerLoop(h.ticker, h.stopCh)
}

func (h *sentPacketHandler) stopTicker() {
	if h.ticker == nil {
		return
	}
	h.ticker.Stop()
	close(h.stopCh)
	h.ticker = nil
	h.stopCh = nil
}

// tickerLoop polls on the ticker's schedule but reads the due time from
// h.clock rather than the tick's own wall-clock payload, so a fake
// clock in tests (or a future non-wall-clock Clock) stays the single
// source of truth for "now" (spec §6).
func (h *sentPacketHandler) tickerLoop(ticker *utils.PeriodicTicker, stopCh chan struct{}) {
	for {
		select {
		case <-ticker.Chan():
			h.MaybeOnAlarm(h.now())
		case <-stopCh:
			return
		}
	}
}

// scaleByPow2 computes d * 2^n, capping the shift at 32 rounds to stay
// clear of time.Duration overflow on a runaway counter.
func scaleByPow2(d time.Duration, n uint32) time.Duration {
	if n > 32 {
		n = 32
	}
	return d << n
}

func (h *sentPacketHandler) GetAlarmTimeout() time.Time {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.alarm
}

func (h *sentPacketHandler) LargestAckedPacketNumber() protocol.PacketNumber {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.largestAckedPacket
}

func (h *sentPacketHandler) BytesInFlight() protocol.ByteCount {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.bytesInFlight
}

func (h *sentPacketHandler) PacketsInFlight() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.packetHistory.Len()
}

func (h *sentPacketHandler) SpuriousRTO() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.spuriousRTO
}

// Shutdown cancels the alarm; subsequent events are no-ops (spec §6).
func (h *sentPacketHandler) Shutdown() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.shutdown {
		return
	}
	h.shutdown = true
	h.alarm = time.Time{}
	h.stopTicker()
}
