package ackhandler

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "quicrecovery"

// Metrics wraps the Prometheus counters and gauges exposed by a
// SentPacketHandler, grounded on upstream quic-go's
// metrics.NewTracerWithRegisterer pattern (quic-go/metrics/tracer.go):
// each Metrics creates its own collectors and registers them against a
// caller-supplied prometheus.Registerer. An AlreadyRegisteredError is
// ignored rather than treated as fatal; the collector that hit it stays
// unregistered.
type Metrics struct {
	packetsLost          prometheus.Counter
	packetsAcked         prometheus.Counter
	tlpsSent             prometheus.Counter
	rtosFired            prometheus.Counter
	spuriousRTOs         prometheus.Counter
	handshakeRetransmits prometheus.Counter
	smoothedRTT          prometheus.Gauge
	bytesInFlight        prometheus.Gauge
}

// NewMetrics creates a Metrics registered against registerer. A nil
// *Metrics (passed as NewSentPacketHandler's metrics argument) disables
// metrics entirely; every method on a nil *Metrics is a no-op.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		packetsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "packets_lost_total",
			Help:      "Packets declared lost by the loss detector",
		}),
		packetsAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "packets_acked_total",
			Help:      "Packets newly acknowledged",
		}),
		tlpsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "tail_loss_probes_total",
			Help:      "Tail Loss Probes sent",
		}),
		rtosFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "rtos_total",
			Help:      "Retransmission timeouts fired",
		}),
		spuriousRTOs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "spurious_rtos_total",
			Help:      "RTOs later found spurious by a late ACK",
		}),
		handshakeRetransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "handshake_retransmits_total",
			Help:      "Handshake packets retransmitted by the alarm action",
		}),
		smoothedRTT: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "smoothed_rtt_seconds",
			Help:      "Current smoothed RTT estimate",
		}),
		bytesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "bytes_in_flight",
			Help:      "Wire bytes of currently in-flight packets",
		}),
	}
	for _, c := range [...]prometheus.Collector{
		m.packetsLost, m.packetsAcked, m.tlpsSent, m.rtosFired,
		m.spuriousRTOs, m.handshakeRetransmits, m.smoothedRTT, m.bytesInFlight,
	} {
		if err := registerer.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
	return m
}

func (m *Metrics) onPacketsLost(n int) {
	if m == nil || n == 0 {
		return
	}
	m.packetsLost.Add(float64(n))
}

func (m *Metrics) onPacketsAcked(n int) {
	if m == nil || n == 0 {
		return
	}
	m.packetsAcked.Add(float64(n))
}

func (m *Metrics) onTLPSent() {
	if m == nil {
		return
	}
	m.tlpsSent.Inc()
}

func (m *Metrics) onRTOFired() {
	if m == nil {
		return
	}
	m.rtosFired.Inc()
}

func (m *Metrics) onSpuriousRTO() {
	if m == nil {
		return
	}
	m.spuriousRTOs.Inc()
}

func (m *Metrics) onHandshakeRetransmit(n int) {
	if m == nil || n == 0 {
		return
	}
	m.handshakeRetransmits.Add(float64(n))
}

func (m *Metrics) setSmoothedRTT(d time.Duration) {
	if m == nil {
		return
	}
	m.smoothedRTT.Set(d.Seconds())
}

func (m *Metrics) setBytesInFlight(b uint64) {
	if m == nil {
		return
	}
	m.bytesInFlight.Set(float64(b))
}
