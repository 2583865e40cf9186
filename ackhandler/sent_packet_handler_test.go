package ackhandler

import (
	"time"

	"github.com/GeorgeHahn/quicrecovery/internal/protocol"
	"github.com/GeorgeHahn/quicrecovery/internal/wire"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// fakeClock is a manually-advanced congestion.Clock for deterministic
// tests; the loss detector never reads the wall clock directly.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeTransmitter records every call the loss detector makes to it
// instead of writing packets anywhere.
type fakeTransmitter struct {
	newPacketsAvailable int
	transmitted         int
	retransmitted       []interface{}
}

func (t *fakeTransmitter) TransmitOneNewPacket() int {
	if t.newPacketsAvailable == 0 {
		return 0
	}
	t.newPacketsAvailable--
	t.transmitted++
	return 1
}

func (t *fakeTransmitter) Retransmit(payloadHandle interface{}) {
	t.retransmitted = append(t.retransmitted, payloadHandle)
}

// fakeCongestionController records the sets of lost packets it is
// notified of.
type fakeCongestionController struct {
	lostBatches [][]PacketInfo
}

func (c *fakeCongestionController) OnPacketsLost(lost []PacketInfo) {
	c.lostBatches = append(c.lostBatches, lost)
}

func newTestHandler(cfg *Config) (*sentPacketHandler, *fakeClock, *fakeTransmitter, *fakeCongestionController) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	transmitter := &fakeTransmitter{}
	cc := &fakeCongestionController{}
	h := NewSentPacketHandler(cfg, clock, transmitter, cc, nil).(*sentPacketHandler)
	return h, clock, transmitter, cc
}

var _ = Describe("SentPacketHandler", func() {
	Describe("end-to-end scenarios (spec §8)", func() {
		It("scenario 1: single send/ack RTT sample", func() {
			h, clock, _, _ := newTestHandler(DefaultConfig())

			Expect(h.SentPacket(1, true, false, 1200, nil)).To(Succeed())

			clock.Advance(50 * time.Millisecond)
			ack := &wire.AckFrame{LargestAcknowledged: 1, AckDelay: 5 * time.Millisecond, FirstAckBlockLength: 0}
			Expect(h.ReceivedAck(ack, clock.Now())).To(Succeed())

			Expect(h.rttStats.LatestRTT()).To(Equal(45 * time.Millisecond))
			Expect(h.rttStats.SmoothedRTT()).To(Equal(45 * time.Millisecond))
			Expect(h.rttStats.RTTVar()).To(Equal(22500 * time.Microsecond))
			Expect(h.packetHistory.Len()).To(BeZero())
			Expect(h.GetAlarmTimeout()).To(BeZero())
		})

		It("scenario 2: count-based reordering loss", func() {
			cfg := DefaultConfig()
			cfg.Mode = CountBased
			h, clock, _, cc := newTestHandler(cfg)

			for i := protocol.PacketNumber(1); i <= 5; i++ {
				Expect(h.SentPacket(i, true, false, 100, nil)).To(Succeed())
				clock.Advance(time.Millisecond)
			}
			// A sixth packet still in flight keeps L=5 from equaling
			// largest_sent_packet, so only the count-based reordering
			// threshold is exercised (spec §4.3's early-retransmit clause
			// is specifically for when no later packet is in flight).
			Expect(h.SentPacket(6, true, false, 100, nil)).To(Succeed())
			clock.Advance(10*time.Millisecond - 5*time.Millisecond)

			ack := &wire.AckFrame{LargestAcknowledged: 5, AckDelay: 0, FirstAckBlockLength: 0}
			Expect(h.ReceivedAck(ack, clock.Now())).To(Succeed())

			Expect(cc.lostBatches).To(HaveLen(1))
			Expect(cc.lostBatches[0]).To(HaveLen(1))
			Expect(cc.lostBatches[0][0].PacketNumber).To(Equal(protocol.PacketNumber(1)))

			_, ok2 := h.packetHistory.Get(2)
			_, ok3 := h.packetHistory.Get(3)
			_, ok4 := h.packetHistory.Get(4)
			_, ok6 := h.packetHistory.Get(6)
			Expect(ok2 && ok3 && ok4 && ok6).To(BeTrue())
			_, ok1 := h.packetHistory.Get(1)
			Expect(ok1).To(BeFalse())
		})

		It("scenario 3: early-retransmit time loss", func() {
			h, clock, _, cc := newTestHandler(DefaultConfig())

			Expect(h.SentPacket(1, true, false, 100, nil)).To(Succeed())
			clock.Advance(50 * time.Millisecond)
			Expect(h.SentPacket(2, true, false, 100, nil)).To(Succeed())

			// Acking P2 ten milliseconds later seeds smoothed_rtt=10ms;
			// delay_until_lost = 1.125*10ms = 11.25ms, far shorter than
			// the 60ms P1 has been outstanding, so P1 is declared lost by
			// the early-retransmit time-threshold rule even though no
			// later packet exists to trigger reordering-threshold loss.
			clock.Advance(10 * time.Millisecond)
			ack := &wire.AckFrame{LargestAcknowledged: 2, AckDelay: 0, FirstAckBlockLength: 0}
			Expect(h.ReceivedAck(ack, clock.Now())).To(Succeed())

			Expect(cc.lostBatches).To(HaveLen(1))
			Expect(cc.lostBatches[0]).To(HaveLen(1))
			Expect(cc.lostBatches[0][0].PacketNumber).To(Equal(protocol.PacketNumber(1)))
		})

		It("scenario 4: TLP escalation into RTO", func() {
			h, clock, transmitter, _ := newTestHandler(DefaultConfig())
			transmitter.newPacketsAvailable = 0 // force retransmit-based probes
			h.rttStats.UpdateRTT(50 * time.Millisecond)

			Expect(h.SentPacket(1, true, false, 100, "p1")).To(Succeed())
			firstAlarm := h.GetAlarmTimeout()
			Expect(firstAlarm.Sub(clock.Now())).To(Equal(100 * time.Millisecond))

			clock.Advance(100 * time.Millisecond)
			h.OnAlarm()
			Expect(h.tlpCount).To(Equal(uint32(1)))
			Expect(h.GetAlarmTimeout().Sub(clock.Now())).To(Equal(100 * time.Millisecond))

			clock.Advance(100 * time.Millisecond)
			h.OnAlarm()
			Expect(h.tlpCount).To(Equal(uint32(2)))

			clock.Advance(100 * time.Millisecond)
			h.OnAlarm() // tlp_count == MaxTLPs now: this firing is the first RTO
			Expect(h.rtoCount).To(Equal(uint32(1)))
			// scaleByPow2 reads rto_count after sendRTO's increment, so
			// the alarm just armed is already the rto_count==1 duration:
			// 200ms << 1 = 400ms, not the rto_count==0 base duration.
			Expect(h.GetAlarmTimeout().Sub(clock.Now())).To(Equal(400 * time.Millisecond))

			clock.Advance(400 * time.Millisecond)
			h.OnAlarm()
			Expect(h.rtoCount).To(Equal(uint32(2)))
			Expect(h.GetAlarmTimeout().Sub(clock.Now())).To(Equal(800 * time.Millisecond))
		})

		It("scenario 5: spurious-RTO detection", func() {
			h, clock, transmitter, _ := newTestHandler(DefaultConfig())
			transmitter.newPacketsAvailable = 0
			h.rttStats.UpdateRTT(50 * time.Millisecond)

			for i := protocol.PacketNumber(1); i <= 3; i++ {
				Expect(h.SentPacket(i, true, false, 100, nil)).To(Succeed())
			}
			fireUntilRTO := func() {
				for h.rtoCount == 0 {
					clock.Advance(250 * time.Millisecond)
					h.OnAlarm()
				}
			}
			fireUntilRTO()
			firstSnapshot := h.largestSentBeforeRTO
			Expect(firstSnapshot).To(Equal(protocol.PacketNumber(3)))

			// An ACK for exactly the snapshotted packet is not later than
			// largest_sent_before_rto, so the RTO stands.
			clock.Advance(10 * time.Millisecond)
			ack := &wire.AckFrame{LargestAcknowledged: firstSnapshot, AckDelay: 0, FirstAckBlockLength: 0}
			Expect(h.ReceivedAck(ack, clock.Now())).To(Succeed())
			Expect(h.SpuriousRTO()).To(BeFalse())

			Expect(h.SentPacket(4, true, false, 100, nil)).To(Succeed())
			fireUntilRTO()
			secondSnapshot := h.largestSentBeforeRTO
			Expect(secondSnapshot).To(Equal(protocol.PacketNumber(4)))

			// A later packet, sent after the snapshot was taken, being
			// acked now is the spurious-RTO signal: the network had the
			// original packet in flight all along.
			Expect(h.SentPacket(5, true, false, 100, nil)).To(Succeed())
			clock.Advance(10 * time.Millisecond)
			ack2 := &wire.AckFrame{LargestAcknowledged: 5, AckDelay: 0, FirstAckBlockLength: 0}
			Expect(h.ReceivedAck(ack2, clock.Now())).To(Succeed())
			Expect(h.SpuriousRTO()).To(BeTrue())
		})

		It("scenario 6: handshake retransmit", func() {
			h, clock, transmitter, _ := newTestHandler(DefaultConfig())

			Expect(h.SentPacket(1, true, true, 100, "h1-payload")).To(Succeed())
			Expect(h.GetAlarmTimeout().Sub(clock.Now())).To(Equal(200 * time.Millisecond))

			clock.Advance(200 * time.Millisecond)
			h.OnAlarm()

			Expect(transmitter.retransmitted).To(ContainElement("h1-payload"))
			_, ok := h.packetHistory.Get(1)
			Expect(ok).To(BeFalse())
			Expect(h.handshakeCount).To(Equal(uint32(1)))
			Expect(h.GetAlarmTimeout()).To(BeZero()) // no more outstanding packets
		})
	})

	Describe("invariants and boundary behaviors (spec §8)", func() {
		It("seeds smoothed_rtt and rttvar from the first sample", func() {
			h, _, _, _ := newTestHandler(DefaultConfig())
			h.rttStats.UpdateRTT(80 * time.Millisecond)
			Expect(h.rttStats.SmoothedRTT()).To(Equal(80 * time.Millisecond))
			Expect(h.rttStats.RTTVar()).To(Equal(40 * time.Millisecond))
		})

		It("clamps a negative RTT sample to zero when ack_delay exceeds latest_rtt", func() {
			h, clock, _, _ := newTestHandler(DefaultConfig())
			Expect(h.SentPacket(1, true, false, 100, nil)).To(Succeed())
			clock.Advance(5 * time.Millisecond)
			ack := &wire.AckFrame{LargestAcknowledged: 1, AckDelay: 50 * time.Millisecond, FirstAckBlockLength: 0}
			Expect(h.ReceivedAck(ack, clock.Now())).To(Succeed())
			Expect(h.rttStats.LatestRTT()).To(Equal(time.Duration(0)))
		})

		It("expands a first_ack_block_length of zero to exactly one packet number", func() {
			ack := &wire.AckFrame{LargestAcknowledged: 7, AckDelay: 0, FirstAckBlockLength: 0}
			Expect(ack.Expand()).To(Equal([]protocol.PacketNumber{7}))
		})

		It("expands a zero-length gap block to exactly one packet number", func() {
			ack := &wire.AckFrame{
				LargestAcknowledged: 10,
				FirstAckBlockLength: 0,
				Blocks:              []wire.AckBlock{{Gap: 0, Length: 0}},
			}
			Expect(ack.Expand()).To(Equal([]protocol.PacketNumber{10, 8}))
		})

		It("produces no further state change when an identical ACK is redelivered", func() {
			h, clock, _, cc := newTestHandler(DefaultConfig())
			Expect(h.SentPacket(1, true, false, 100, nil)).To(Succeed())
			clock.Advance(10 * time.Millisecond)
			ack := &wire.AckFrame{LargestAcknowledged: 1, AckDelay: 0, FirstAckBlockLength: 0}
			Expect(h.ReceivedAck(ack, clock.Now())).To(Succeed())

			clock.Advance(10 * time.Millisecond)
			latestBefore := h.rttStats.LatestRTT()
			Expect(h.ReceivedAck(ack, clock.Now())).To(Succeed())
			Expect(h.rttStats.LatestRTT()).To(Equal(latestBefore))
			Expect(cc.lostBatches).To(BeEmpty())
		})

		It("rejects a duplicate or non-increasing packet number", func() {
			h, _, _, _ := newTestHandler(DefaultConfig())
			Expect(h.SentPacket(5, true, false, 100, nil)).To(Succeed())
			Expect(h.SentPacket(5, true, false, 100, nil)).To(MatchError(ErrDuplicateOrOutOfOrderPacket))
			Expect(h.SentPacket(3, true, false, 100, nil)).To(MatchError(ErrDuplicateOrOutOfOrderPacket))
		})

		It("rejects an ACK for a packet number never sent", func() {
			h, _, _, _ := newTestHandler(DefaultConfig())
			Expect(h.SentPacket(1, true, false, 100, nil)).To(Succeed())
			ack := &wire.AckFrame{LargestAcknowledged: 99, AckDelay: 0, FirstAckBlockLength: 0}
			Expect(h.ReceivedAck(ack, time.Unix(0, 0))).To(MatchError(ErrAckForUnsentPacket))
		})

		It("clears the alarm once retransmittable_outstanding drops to zero", func() {
			h, clock, _, _ := newTestHandler(DefaultConfig())
			Expect(h.SentPacket(1, true, false, 100, nil)).To(Succeed())
			Expect(h.GetAlarmTimeout()).NotTo(BeZero())

			clock.Advance(time.Millisecond)
			ack := &wire.AckFrame{LargestAcknowledged: 1, AckDelay: 0, FirstAckBlockLength: 0}
			Expect(h.ReceivedAck(ack, clock.Now())).To(Succeed())
			Expect(h.GetAlarmTimeout()).To(BeZero())
		})

		It("does not arm or extend the alarm for non-retransmittable packets", func() {
			h, _, _, _ := newTestHandler(DefaultConfig())
			Expect(h.SentPacket(1, false, false, 100, nil)).To(Succeed())
			Expect(h.GetAlarmTimeout()).To(BeZero())
		})
	})
})
