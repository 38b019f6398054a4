package phd2

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

// fakeMQTT records publishes and can be told to fail.
type fakeMQTT struct {
	mu        sync.Mutex
	published []publishedMessage
	failWith  error
	connected bool
}

type publishedMessage struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{connected: true}
}

func (f *fakeMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.published = append(f.published, publishedMessage{
		Topic:    topic,
		Payload:  string(payload),
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMQTT) messages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMessage, len(f.published))
	copy(out, f.published)
	return out
}

func (f *fakeMQTT) onTopic(topic string) []publishedMessage {
	var out []publishedMessage
	for _, msg := range f.messages() {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeMQTT) setFailure(err error) {
	f.mu.Lock()
	f.failWith = err
	f.mu.Unlock()
}

func newTestPublisher(mqtt MQTTClient) *Publisher {
	return NewPublisher(mqtt, testTopics(), testDevice(), 1)
}

func TestPublisherDiscoveryOncePerProcess(t *testing.T) {
	mqtt := newFakeMQTT()
	p := newTestPublisher(mqtt)

	p.OnTransportConnected()
	p.OnTransportConnected() // broker reconnect

	var configs int
	for _, msg := range mqtt.messages() {
		if strings.HasSuffix(msg.Topic, "/config") {
			configs++
		}
	}
	if configs != 8 {
		t.Errorf("got %d discovery publishes, want 8 (once per process)", configs)
	}
	if !p.DiscoveryPublished() {
		t.Error("DiscoveryPublished() = false after connect")
	}

	// Availability goes out on every connect.
	avail := mqtt.onTopic("phd2/guiding/availability")
	if len(avail) != 2 {
		t.Fatalf("got %d availability publishes, want 2", len(avail))
	}
	for _, msg := range avail {
		if msg.Payload != "online" || msg.QoS != 1 || !msg.Retained {
			t.Errorf("availability publish = %+v, want retained online at QoS 1", msg)
		}
	}
}

func TestPublisherDiscoveryRetriesAfterFailure(t *testing.T) {
	mqtt := newFakeMQTT()
	p := newTestPublisher(mqtt)

	mqtt.setFailure(errors.New("broker unavailable"))
	p.OnTransportConnected()
	if p.DiscoveryPublished() {
		t.Fatal("discovery must not be marked done after a failed publish")
	}

	mqtt.setFailure(nil)
	p.OnTransportConnected()
	if !p.DiscoveryPublished() {
		t.Fatal("discovery must succeed on the next connect")
	}
}

func TestPublisherAvailabilityOffline(t *testing.T) {
	mqtt := newFakeMQTT()
	p := newTestPublisher(mqtt)

	if err := p.PublishAvailability(false); err != nil {
		t.Fatalf("PublishAvailability() error: %v", err)
	}

	msgs := mqtt.onTopic("phd2/guiding/availability")
	if len(msgs) != 1 || msgs[0].Payload != "offline" {
		t.Fatalf("got %v, want one offline publish", msgs)
	}
	if msgs[0].QoS != 1 || !msgs[0].Retained {
		t.Errorf("offline publish = %+v, want retained QoS 1", msgs[0])
	}
}

func TestPublisherDerivedSkipsAbsentMetrics(t *testing.T) {
	mqtt := newFakeMQTT()
	p := newTestPublisher(mqtt)

	p.PublishDerived(Derived{
		DX:  f64(1.5),
		SNR: f64(22.0),
	})

	msgs := mqtt.messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d publishes, want 2: %v", len(msgs), msgs)
	}
	for _, msg := range msgs {
		if strings.Contains(msg.Topic, "arcsec") {
			t.Errorf("absent arcsec metric published: %+v", msg)
		}
		if msg.QoS != 0 || !msg.Retained {
			t.Errorf("metric publish = %+v, want retained QoS 0", msg)
		}
	}
}

func TestPublisherMetricFormatting(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  string
	}{
		{"fractional", 1.5, "1.5"},
		{"integral", 5, "5"},
		{"negative", -0.25, "-0.25"},
		{"zero", 0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mqtt := newFakeMQTT()
			p := newTestPublisher(mqtt)

			p.PublishDerived(Derived{SNR: f64(tt.value)})

			msgs := mqtt.onTopic("phd2/guiding/snr")
			if len(msgs) != 1 {
				t.Fatalf("got %d publishes, want 1", len(msgs))
			}
			if msgs[0].Payload != tt.want {
				t.Errorf("payload = %q, want %q", msgs[0].Payload, tt.want)
			}
		})
	}
}

func TestPublisherGuideStar(t *testing.T) {
	mqtt := newFakeMQTT()
	p := newTestPublisher(mqtt)

	p.PublishGuideStar(true)
	p.PublishGuideStar(false)

	msgs := mqtt.onTopic("phd2/guiding/guide_star_available")
	if len(msgs) != 2 {
		t.Fatalf("got %d publishes, want 2", len(msgs))
	}
	if msgs[0].Payload != "ON" || msgs[1].Payload != "OFF" {
		t.Errorf("payloads = %q, %q, want ON, OFF", msgs[0].Payload, msgs[1].Payload)
	}
	for _, msg := range msgs {
		if !msg.Retained {
			t.Errorf("guide star publish must be retained: %+v", msg)
		}
	}
}
