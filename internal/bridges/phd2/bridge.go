package phd2

import (
	"context"
	"errors"
	"time"
)

// Session event kinds recorded to the optional history store.
const (
	eventConnected    = "phd2_connected"
	eventDisconnected = "phd2_disconnected"
	eventStarFound    = "guide_star_found"
	eventStarLost     = "guide_star_lost"
)

// SampleSink receives processed guiding telemetry for long-term storage.
// *influxdb.Client satisfies it. Writes are fire-and-forget.
type SampleSink interface {
	WriteGuidingSample(deviceID string, fields map[string]interface{}, timestamp time.Time)
	WriteGuideStarEvent(deviceID string, available bool)
}

// SessionRecorder records connection and guide-star events for the
// optional session history. *history.Recorder satisfies it.
type SessionRecorder interface {
	RecordEvent(ctx context.Context, kind, detail string) error
}

// BridgeOptions configures a Bridge. MQTT, Topics and Device are
// required; Influx and History are optional sinks.
type BridgeOptions struct {
	MQTT    MQTTClient
	Topics  Topics
	Device  DeviceIdentity
	Client  ClientConfig
	QoS     byte // QoS for availability and discovery publishes
	Influx  SampleSink
	History SessionRecorder
	Logger  Logger
}

// Bridge ties the protocol client, the telemetry tracker and the MQTT
// publisher together. It implements EventHandler: the client's read loop
// drives it, so no additional synchronization is needed between tracker
// updates and publishes.
type Bridge struct {
	client    *Client
	tracker   *Tracker
	publisher *Publisher
	influx    SampleSink
	history   SessionRecorder
	device    DeviceIdentity
	logger    Logger
}

// NewBridge wires up a bridge from its dependencies.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, errors.New("phd2: mqtt client is required")
	}

	b := &Bridge{
		tracker:   NewTracker(),
		publisher: NewPublisher(opts.MQTT, opts.Topics, opts.Device, opts.QoS),
		influx:    opts.Influx,
		history:   opts.History,
		device:    opts.Device,
		logger:    opts.Logger,
	}
	b.client = NewClient(opts.Client, b)

	if opts.Logger != nil {
		b.client.SetLogger(opts.Logger)
		b.publisher.SetLogger(opts.Logger)
	}
	return b, nil
}

// Run drives the protocol client until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	return b.client.Run(ctx)
}

// OnTransportConnected handles an established broker connection. Wire it
// to the MQTT client's connect callback.
func (b *Bridge) OnTransportConnected() {
	b.publisher.OnTransportConnected()
}

// OnTransportDisconnected handles a lost broker connection. Wire it to
// the MQTT client's disconnect callback.
func (b *Bridge) OnTransportDisconnected(err error) {
	b.publisher.OnTransportDisconnected(err)
}

// MarkOffline publishes the retained offline flag. Call during shutdown,
// before closing the broker connection.
func (b *Bridge) MarkOffline() error {
	return b.publisher.PublishAvailability(false)
}

// OnConnected implements EventHandler. Per-connection state is cleared
// before the client issues its handshake requests.
func (b *Bridge) OnConnected() {
	b.tracker.OnConnectionEstablished()
	b.recordEvent(eventConnected, "")
}

// OnDisconnected implements EventHandler.
func (b *Bridge) OnDisconnected(err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	b.recordEvent(eventDisconnected, detail)
}

// OnAppState implements EventHandler.
func (b *Bridge) OnAppState(state string) {
	if b.logger != nil {
		b.logger.Info("server application state", "state", state)
	}
}

// OnPixelScale implements EventHandler.
func (b *Bridge) OnPixelScale(scale float64) {
	if err := b.tracker.OnPixelScaleLearned(scale); err != nil {
		if b.logger != nil {
			b.logger.Warn("rejected pixel scale", "value", scale, "error", err)
		}
		return
	}
	if b.logger != nil {
		b.logger.Info("learned pixel scale", "arcsec_per_px", scale)
	}
}

// OnGuideStep implements EventHandler. Each sample is published to MQTT
// and mirrored to the optional sample sink; a sample that re-acquires the
// guide star also publishes the binary state transition.
func (b *Bridge) OnGuideStep(sample GuideSample) {
	derived := b.tracker.Observe(sample)
	b.publisher.PublishDerived(derived)

	if derived.StarRecovered {
		b.publisher.PublishGuideStar(true)
		b.recordEvent(eventStarFound, "")
		if b.influx != nil {
			b.influx.WriteGuideStarEvent(b.device.ID, true)
		}
	}

	if b.influx != nil {
		if fields := sampleFields(derived); len(fields) > 0 {
			ts := time.Now()
			if derived.Time != nil {
				ts = *derived.Time
			}
			b.influx.WriteGuidingSample(b.device.ID, fields, ts)
		}
	}
}

// OnStarLost implements EventHandler. Only the first loss in a row is
// published.
func (b *Bridge) OnStarLost() {
	if !b.tracker.ObserveStarLost() {
		return
	}
	b.publisher.PublishGuideStar(false)
	b.recordEvent(eventStarLost, "")
	if b.influx != nil {
		b.influx.WriteGuideStarEvent(b.device.ID, false)
	}
}

// Status is a point-in-time snapshot of the bridge for the status API.
type Status struct {
	Connected          bool       `json:"connected"`
	State              string     `json:"state"`
	PixelScale         *float64   `json:"pixel_scale_arcsec_per_px,omitempty"`
	GuideStarAvailable *bool      `json:"guide_star_available,omitempty"`
	DiscoveryPublished bool       `json:"discovery_published"`
	ConnectsTotal      uint64     `json:"connects_total"`
	ReconnectsTotal    uint64     `json:"reconnects_total"`
	EventsReceived     uint64     `json:"events_received"`
	SamplesReceived    uint64     `json:"samples_received"`
	StarLostEvents     uint64     `json:"star_lost_events"`
	LinesSkipped       uint64     `json:"lines_skipped"`
	LastActivity       *time.Time `json:"last_activity,omitempty"`
}

// Status returns a snapshot of the bridge's state and counters.
func (b *Bridge) Status() Status {
	stats := b.client.Stats()

	status := Status{
		Connected:          stats.Connected,
		State:              stats.State,
		DiscoveryPublished: b.publisher.DiscoveryPublished(),
		ConnectsTotal:      stats.ConnectsTotal,
		ReconnectsTotal:    stats.ReconnectsTotal,
		EventsReceived:     stats.EventsReceived,
		SamplesReceived:    stats.SamplesReceived,
		StarLostEvents:     stats.StarLostEvents,
		LinesSkipped:       stats.LinesSkipped,
	}
	if !stats.LastActivity.IsZero() {
		t := stats.LastActivity
		status.LastActivity = &t
	}
	if scale, ok := b.tracker.PixelScale(); ok {
		status.PixelScale = &scale
	}
	if available, known := b.tracker.GuideStar(); known {
		a := available
		status.GuideStarAvailable = &a
	}
	return status
}

// HealthCheck reports whether the server connection is up.
func (b *Bridge) HealthCheck(ctx context.Context) error {
	return b.client.HealthCheck(ctx)
}

// sampleFields flattens a processed sample into sink field names,
// skipping absent values.
func sampleFields(d Derived) map[string]interface{} {
	fields := make(map[string]interface{}, 7)
	put := func(name string, v *float64) {
		if v != nil {
			fields[name] = *v
		}
	}
	put(MetricRAErrorArcsec, d.RAArcsec)
	put(MetricDecErrorArcsec, d.DecArcsec)
	put(MetricTotalErrorArcsec, d.TotalArcsec)
	put(MetricDXPixels, d.DX)
	put(MetricDYPixels, d.DY)
	put(MetricSNR, d.SNR)
	put(MetricAvgDist, d.AvgDist)
	return fields
}

// recordEvent writes to the optional session history, logging failures
// rather than propagating them.
func (b *Bridge) recordEvent(kind, detail string) {
	if b.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.history.RecordEvent(ctx, kind, detail); err != nil && b.logger != nil {
		b.logger.Warn("failed to record session event", "kind", kind, "error", err)
	}
}
