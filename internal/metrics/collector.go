// Package metrics exposes gornd's Prometheus instrumentation: packet
// signing/verification counters, command counters, auth failures,
// session duration, and (daemon side) currently open sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "gornd"
	subsystem = "rndc"
)

// Label names for rndc metrics.
const (
	labelCommand = "command"
	labelHost    = "host"
)

// Collector holds all gornd Prometheus metrics and implements
// rndc.MetricsSink so it can be wired directly into an rndc.Client or the
// server-side connection loop in cmd/rndcd.
type Collector struct {
	// PacketsSigned counts envelopes this process signed (client requests
	// and server replies alike).
	PacketsSigned prometheus.Counter

	// PacketsVerified counts envelopes whose signature verified
	// successfully.
	PacketsVerified prometheus.Counter

	// CommandsSent counts outbound commands, labeled by command and
	// target host.
	CommandsSent *prometheus.CounterVec

	// AuthFailures counts signature-verification failures.
	AuthFailures prometheus.Counter

	// SessionDuration observes the wall-clock time of a full client
	// exchange (dial through want_finish/want_error).
	SessionDuration prometheus.Histogram

	// OpenSessions tracks the number of in-flight server-side sessions
	// (cmd/rndcd only; a pure client process leaves this at zero).
	OpenSessions prometheus.Gauge
}

// NewCollector creates a Collector with all metrics registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PacketsSigned,
		c.PacketsVerified,
		c.CommandsSent,
		c.AuthFailures,
		c.SessionDuration,
		c.OpenSessions,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		PacketsSigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_signed_total",
			Help:      "Total envelopes signed with HMAC-MD5.",
		}),

		PacketsVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_verified_total",
			Help:      "Total envelopes whose signature verified successfully.",
		}),

		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_sent_total",
			Help:      "Total commands sent, labeled by command and target host.",
		}, []string{labelCommand, labelHost}),

		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "auth_failures_total",
			Help:      "Total signature verification failures.",
		}),

		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_duration_seconds",
			Help:      "Duration of a complete client exchange, dial through terminal state.",
			Buckets:   prometheus.DefBuckets,
		}),

		OpenSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "open_sessions",
			Help:      "Number of currently open server-side sessions.",
		}),
	}
}

// ObservePacketSigned increments the signed-envelope counter.
func (c *Collector) ObservePacketSigned() {
	c.PacketsSigned.Inc()
}

// ObservePacketVerified increments the verified-envelope counter.
func (c *Collector) ObservePacketVerified() {
	c.PacketsVerified.Inc()
}

// ObserveCommandSent increments the per-command, per-host counter.
func (c *Collector) ObserveCommandSent(command, host string) {
	c.CommandsSent.WithLabelValues(command, host).Inc()
}

// ObserveAuthFailure increments the auth-failure counter.
func (c *Collector) ObserveAuthFailure() {
	c.AuthFailures.Inc()
}

// ObserveSessionDuration records the duration of one complete exchange.
func (c *Collector) ObserveSessionDuration(d time.Duration) {
	c.SessionDuration.Observe(d.Seconds())
}

// SessionOpened increments the open-sessions gauge. Call from cmd/rndcd
// when a connection is accepted and a ServerSession begins.
func (c *Collector) SessionOpened() {
	c.OpenSessions.Inc()
}

// SessionClosed decrements the open-sessions gauge.
func (c *Collector) SessionClosed() {
	c.OpenSessions.Dec()
}
