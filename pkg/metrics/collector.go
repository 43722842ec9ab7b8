// Package metrics exposes the appliance's runtime counters and gauges
// as Prometheus metrics: per-manager mailbox depth, capture/render
// frame rates, ASR state transitions, and config-store persist
// failures.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
)

// Collector owns every metric this appliance publishes. It is safe
// for concurrent use by any number of managers.
type Collector struct {
	registry *prometheus.Registry

	mailboxDepth  *prometheus.GaugeVec
	framesCaptured *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	displayBlits   *prometheus.CounterVec
	asrTransitions *prometheus.CounterVec
	configPersistFailures prometheus.Counter
	multicoreFramesSent   prometheus.Counter
	multicoreFramesRecv   prometheus.Counter
}

// NewCollector registers and returns a fresh Collector against its
// own registry, so multiple Collectors (e.g. in tests) never collide.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		mailboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "appliance_mailbox_depth",
			Help: "Current number of queued messages per manager mailbox.",
		}, []string{"manager"}),
		framesCaptured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appliance_frames_captured_total",
			Help: "Total frames dequeued from a capture device.",
		}, []string{"device"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appliance_frames_dropped_total",
			Help: "Total frames dropped because a mailbox was full.",
		}, []string{"manager"}),
		displayBlits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appliance_display_blits_total",
			Help: "Total blit calls issued to a display device, by outcome.",
		}, []string{"device", "status"}),
		asrTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appliance_asr_transitions_total",
			Help: "Total voice-algorithm state transitions, by state.",
		}, []string{"state"}),
		configPersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appliance_config_persist_failures_total",
			Help: "Total failures persisting the on-device config store.",
		}),
		multicoreFramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appliance_multicore_frames_sent_total",
			Help: "Total messages serialized to the peer core.",
		}),
		multicoreFramesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appliance_multicore_frames_received_total",
			Help: "Total messages deserialized from the peer core.",
		}),
	}

	reg.MustRegister(
		c.mailboxDepth,
		c.framesCaptured,
		c.framesDropped,
		c.displayBlits,
		c.asrTransitions,
		c.configPersistFailures,
		c.multicoreFramesSent,
		c.multicoreFramesRecv,
	)

	return c
}

// Registry exposes the underlying Prometheus registry for a handler.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// SetMailboxDepth records a manager's current mailbox occupancy.
func (c *Collector) SetMailboxDepth(id fwkmsg.ManagerID, depth int) {
	c.mailboxDepth.WithLabelValues(id.String()).Set(float64(depth))
}

// FrameCaptured records one frame dequeued from a named capture device.
func (c *Collector) FrameCaptured(device string) {
	c.framesCaptured.WithLabelValues(device).Inc()
}

// FrameDropped records one frame lost to a full mailbox.
func (c *Collector) FrameDropped(id fwkmsg.ManagerID) {
	c.framesDropped.WithLabelValues(id.String()).Inc()
}

// DisplayBlit records a blit outcome ("success", "non_blocking", "failed").
func (c *Collector) DisplayBlit(device, status string) {
	c.displayBlits.WithLabelValues(device, status).Inc()
}

// ASRTransition records a voice-algorithm state change.
func (c *Collector) ASRTransition(state string) {
	c.asrTransitions.WithLabelValues(state).Inc()
}

// ConfigPersistFailure records a failed write to the config store.
func (c *Collector) ConfigPersistFailure() {
	c.configPersistFailures.Inc()
}

// MulticoreFrameSent records a message handed to the peer link.
func (c *Collector) MulticoreFrameSent() {
	c.multicoreFramesSent.Inc()
}

// MulticoreFrameReceived records a message arriving from the peer link.
func (c *Collector) MulticoreFrameReceived() {
	c.multicoreFramesRecv.Inc()
}
