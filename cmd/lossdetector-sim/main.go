// Command lossdetector-sim drives a synthetic Transmitter and
// CongestionController through the loss detector, printing its alarm
// and loss decisions, and serves the Prometheus metrics registered by
// ackhandler.NewMetrics over /metrics.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GeorgeHahn/quicrecovery/ackhandler"
	"github.com/GeorgeHahn/quicrecovery/internal/protocol"
	"github.com/GeorgeHahn/quicrecovery/internal/utils"
	"github.com/GeorgeHahn/quicrecovery/internal/wire"
)

// logTransmitter is a Transmitter that just logs what it would have
// sent; it always reports one packet transmitted so TLP probes never
// fall back to a bare retransmit in this demo.
type logTransmitter struct{}

func (logTransmitter) TransmitOneNewPacket() int {
	fmt.Println("transmitter: sent one new packet")
	return 1
}

func (logTransmitter) Retransmit(payloadHandle interface{}) {
	fmt.Printf("transmitter: retransmitted payload %v under a new packet number\n", payloadHandle)
}

// logCongestionController is a CongestionController that just logs the
// lost-packet notifications it receives.
type logCongestionController struct{}

func (logCongestionController) OnPacketsLost(lost []ackhandler.PacketInfo) {
	for _, p := range lost {
		fmt.Printf("congestion controller: packet %d declared lost\n", p.PacketNumber)
	}
}

func main() {
	mode := flag.String("mode", "time_based", "loss_detection_mode: time_based or count_based")
	metricsAddr := flag.String("metrics-addr", ":9464", "address to serve /metrics on")
	logLevel := flag.String("log-level", "debug", "nothing, error, info or debug")
	flag.Parse()

	switch *logLevel {
	case "error":
		utils.SetLogLevel(utils.LogLevelError)
	case "info":
		utils.SetLogLevel(utils.LogLevelInfo)
	case "debug":
		utils.SetLogLevel(utils.LogLevelDebug)
	default:
		utils.SetLogLevel(utils.LogLevelNothing)
	}
	utils.SetLogTimeFormat("15:04:05.000")

	cfg := ackhandler.DefaultConfig()
	if *mode == "count_based" {
		cfg.Mode = ackhandler.CountBased
	}

	metrics := ackhandler.NewMetrics(prometheus.DefaultRegisterer)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Printf("serving metrics on %s/metrics", *metricsAddr)
		log.Fatal(http.ListenAndServe(*metricsAddr, nil))
	}()

	runSingleSendAckScenario(cfg, metrics)
	runCountBasedReorderingScenario(metrics)
}

// runSingleSendAckScenario replays spec §8 scenario 1: a single
// send/ack pair yielding a clean 45ms RTT sample.
func runSingleSendAckScenario(cfg *ackhandler.Config, metrics *ackhandler.Metrics) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	h := ackhandler.NewSentPacketHandler(cfg, clock, logTransmitter{}, logCongestionController{}, metrics)

	if err := h.SentPacket(1, true, false, 1200, "packet-1-payload"); err != nil {
		log.Fatalf("SentPacket: %v", err)
	}

	clock.Advance(50 * time.Millisecond)
	ack := &wire.AckFrame{LargestAcknowledged: 1, AckDelay: 5 * time.Millisecond, FirstAckBlockLength: 0}
	if err := h.ReceivedAck(ack, clock.Now()); err != nil {
		log.Fatalf("ReceivedAck: %v", err)
	}

	fmt.Printf("scenario 1: packets in flight = %d, alarm = %v\n", h.PacketsInFlight(), h.GetAlarmTimeout())
}

// runCountBasedReorderingScenario replays spec §8 scenario 2:
// reordering-threshold loss declares packet 1 lost when packet 5 is
// acked out of a run of five, with a sixth packet still in flight so
// the early-retransmit time threshold does not apply.
func runCountBasedReorderingScenario(metrics *ackhandler.Metrics) {
	cfg := ackhandler.DefaultConfig()
	cfg.Mode = ackhandler.CountBased
	clock := &fakeClock{now: time.Unix(0, 0)}
	h := ackhandler.NewSentPacketHandler(cfg, clock, logTransmitter{}, logCongestionController{}, nil)
	_ = metrics

	for i := protocol.PacketNumber(1); i <= 5; i++ {
		if err := h.SentPacket(i, true, false, 1200, nil); err != nil {
			log.Fatalf("SentPacket(%d): %v", i, err)
		}
		clock.Advance(time.Millisecond)
	}
	if err := h.SentPacket(6, true, false, 1200, nil); err != nil {
		log.Fatalf("SentPacket(6): %v", err)
	}

	clock.Advance(10*time.Millisecond - 5*time.Millisecond)
	ack := &wire.AckFrame{LargestAcknowledged: 5, AckDelay: 0, FirstAckBlockLength: 0}
	if err := h.ReceivedAck(ack, clock.Now()); err != nil {
		log.Fatalf("ReceivedAck: %v", err)
	}

	fmt.Printf("scenario 2: packets in flight = %d\n", h.PacketsInFlight())
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time  { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
