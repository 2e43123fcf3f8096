// Package metrics registers the process-wide Prometheus collectors for
// channel, handshake and medium-environment activity. Every exported
// Record* function is safe to call with zero setup: the collectors
// register themselves once at package init.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	framesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "endpointchannel",
		Name:      "frames_written_total",
		Help:      "Frames successfully written by a BaseEndpointChannel, labeled by medium.",
	}, []string{"medium"})

	framesRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "endpointchannel",
		Name:      "frames_read_total",
		Help:      "Frames successfully read by a BaseEndpointChannel, labeled by medium.",
	}, []string{"medium"})

	channelCloses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "endpointchannel",
		Name:      "channel_closes_total",
		Help:      "Channel Close calls that actually performed teardown, labeled by medium and reason.",
	}, []string{"medium", "reason"})

	encryptionEnabled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "endpointchannel",
		Name:      "encryption_enabled_total",
		Help:      "EnableEncryption calls, labeled by medium.",
	}, []string{"medium"})

	handshakeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "endpointchannel",
		Name:      "handshake_outcomes_total",
		Help:      "UKEY2-style handshake outcomes, labeled by role (client|server) and outcome (success|failure|timeout).",
	}, []string{"role", "outcome"})

	mediumEnvironmentEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "endpointchannel",
		Name:      "medium_environment_events_total",
		Help:      "Discovery events fanned out by the simulated medium environment, labeled by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		framesWritten,
		framesRead,
		channelCloses,
		encryptionEnabled,
		handshakeOutcomes,
		mediumEnvironmentEvents,
	)
}

// RecordWrite increments the write counter for medium.
func RecordWrite(medium string) { framesWritten.WithLabelValues(medium).Inc() }

// RecordRead increments the read counter for medium.
func RecordRead(medium string) { framesRead.WithLabelValues(medium).Inc() }

// RecordClose increments the close counter for medium/reason.
func RecordClose(medium, reason string) { channelCloses.WithLabelValues(medium, reason).Inc() }

// RecordEncryptionEnabled increments the encryption-enabled counter for medium.
func RecordEncryptionEnabled(medium string) { encryptionEnabled.WithLabelValues(medium).Inc() }

// RecordHandshakeOutcome increments the handshake outcome counter for role/outcome.
func RecordHandshakeOutcome(role, outcome string) {
	handshakeOutcomes.WithLabelValues(role, outcome).Inc()
}

// RecordMediumEvent increments the medium-environment event counter for kind.
func RecordMediumEvent(kind string) { mediumEnvironmentEvents.WithLabelValues(kind).Inc() }
