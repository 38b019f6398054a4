package phd2

import (
	"fmt"
	"strconv"
	"sync"
)

// metricQoS is the QoS for metric values: retained at QoS 0, best effort.
// Losing a single sample is harmless because the next guide step replaces
// it. Availability and discovery use the configured QoS (default 1) so
// Home Assistant recovers entity definitions and the online flag after a
// broker restart.
const metricQoS = 0

// MQTTClient is the transport surface the publisher needs. *mqtt.Client
// satisfies it; tests substitute a recording fake.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Publisher maps guiding telemetry onto the bridge's MQTT topic tree and
// announces the entities to Home Assistant via MQTT discovery.
//
// Discovery configs are published at most once per process, on the first
// successful broker connection. A failed discovery publish is retried on
// the next connection callback.
type Publisher struct {
	mqtt   MQTTClient
	topics Topics
	device DeviceIdentity
	qos    byte // QoS for availability and discovery publishes

	mu            sync.Mutex
	discoveryDone bool
	logger        Logger
	loggerMu      sync.RWMutex
}

// NewPublisher creates a publisher for the given transport and topic
// layout. qos applies to availability and discovery publishes; metric
// values are always best effort.
func NewPublisher(mqtt MQTTClient, topics Topics, device DeviceIdentity, qos byte) *Publisher {
	return &Publisher{
		mqtt:   mqtt,
		topics: topics,
		device: device,
		qos:    qos,
	}
}

// SetLogger sets the logger for this publisher.
func (p *Publisher) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// OnTransportConnected handles a (re)established broker connection: it
// marks the bridge online and publishes discovery configs if they have
// not been published yet this process.
//
// Wire this to the MQTT client's connect callback.
func (p *Publisher) OnTransportConnected() {
	if err := p.PublishAvailability(true); err != nil {
		p.logError("failed to publish availability", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.discoveryDone {
		return
	}
	if err := p.publishDiscovery(); err != nil {
		p.logError("failed to publish discovery configs", err)
		return
	}
	p.discoveryDone = true
}

// OnTransportDisconnected handles a lost broker connection. The paho
// client reconnects on its own; availability is covered by the Last Will.
func (p *Publisher) OnTransportDisconnected(err error) {
	p.logWarn("mqtt connection lost", "error", err)
}

// PublishAvailability publishes the retained online/offline flag.
//
// Called with online=false during shutdown, before the broker connection
// is torn down, so subscribers see an orderly offline rather than waiting
// for the Last Will.
func (p *Publisher) PublishAvailability(online bool) error {
	payload := PayloadOffline
	if online {
		payload = PayloadOnline
	}
	return p.mqtt.Publish(p.topics.Availability(), []byte(payload), p.qos, true)
}

// publishDiscovery publishes every entity's discovery config, retained.
// Caller holds p.mu.
func (p *Publisher) publishDiscovery() error {
	messages, err := buildDiscovery(p.topics, p.device)
	if err != nil {
		return fmt.Errorf("building discovery payloads: %w", err)
	}

	for _, msg := range messages {
		if err := p.mqtt.Publish(msg.Topic, msg.Payload, p.qos, true); err != nil {
			return fmt.Errorf("publishing %s: %w", msg.Topic, err)
		}
	}

	p.logInfo("published discovery configs",
		"count", len(messages),
		"prefix", p.topics.DiscoveryPrefix)
	return nil
}

// DiscoveryPublished reports whether discovery configs have been
// published this process.
func (p *Publisher) DiscoveryPublished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discoveryDone
}

// PublishDerived publishes every metric present in a processed guide step.
// Absent values are skipped, never published as zero.
func (p *Publisher) PublishDerived(d Derived) {
	p.publishMetric(MetricRAErrorArcsec, d.RAArcsec)
	p.publishMetric(MetricDecErrorArcsec, d.DecArcsec)
	p.publishMetric(MetricTotalErrorArcsec, d.TotalArcsec)
	p.publishMetric(MetricDXPixels, d.DX)
	p.publishMetric(MetricDYPixels, d.DY)
	p.publishMetric(MetricSNR, d.SNR)
	p.publishMetric(MetricAvgDist, d.AvgDist)
}

// publishMetric publishes one numeric metric as its shortest decimal text
// form, retained. A nil value means the metric is absent and is skipped.
func (p *Publisher) publishMetric(name string, value *float64) {
	if value == nil {
		return
	}

	payload := strconv.FormatFloat(*value, 'g', -1, 64)
	if err := p.mqtt.Publish(p.topics.Metric(name), []byte(payload), metricQoS, true); err != nil {
		p.logError("failed to publish metric "+name, err)
	}
}

// PublishGuideStar publishes the binary guide-star state. Callers invoke
// this only on transitions; the publisher does not deduplicate.
func (p *Publisher) PublishGuideStar(available bool) {
	payload := payloadStarOff
	if available {
		payload = payloadStarOn
	}
	if err := p.mqtt.Publish(p.topics.GuideStar(), []byte(payload), metricQoS, true); err != nil {
		p.logError("failed to publish guide star state", err)
	}
}

func (p *Publisher) logInfo(msg string, keysAndValues ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (p *Publisher) logWarn(msg string, keysAndValues ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (p *Publisher) logError(msg string, err error) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
