package phd2

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSink struct {
	mu      sync.Mutex
	samples []map[string]interface{}
	events  []bool
}

func (s *fakeSink) WriteGuidingSample(_ string, fields map[string]interface{}, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, fields)
}

func (s *fakeSink) WriteGuideStarEvent(_ string, available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, available)
}

type fakeRecorder struct {
	mu    sync.Mutex
	kinds []string
}

func (r *fakeRecorder) RecordEvent(_ context.Context, kind, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	return nil
}

func newTestBridge(t *testing.T, mqtt MQTTClient, influx SampleSink, history SessionRecorder) *Bridge {
	t.Helper()
	b, err := NewBridge(BridgeOptions{
		MQTT:    mqtt,
		Topics:  testTopics(),
		Device:  testDevice(),
		Client:  ClientConfig{Host: "127.0.0.1", Port: 4400},
		QoS:     1,
		Influx:  influx,
		History: history,
	})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	return b
}

func TestNewBridgeRequiresMQTT(t *testing.T) {
	if _, err := NewBridge(BridgeOptions{}); err == nil {
		t.Fatal("NewBridge() accepted nil mqtt client")
	}
}

func TestBridgeArcsecDerivation(t *testing.T) {
	mqtt := newFakeMQTT()
	b := newTestBridge(t, mqtt, nil, nil)

	b.OnConnected()
	b.OnPixelScale(0.5)
	b.OnGuideStep(GuideSample{RARaw: f64(3.0), DecRaw: f64(4.0)})

	want := map[string]string{
		"phd2/guiding/ra_error_arcsec":    "1.5",
		"phd2/guiding/dec_error_arcsec":   "2",
		"phd2/guiding/total_error_arcsec": "2.5",
	}
	for topic, payload := range want {
		msgs := mqtt.onTopic(topic)
		if len(msgs) != 1 {
			t.Errorf("%s: got %d publishes, want 1", topic, len(msgs))
			continue
		}
		if msgs[0].Payload != payload {
			t.Errorf("%s = %q, want %q", topic, msgs[0].Payload, payload)
		}
	}
}

func TestBridgeNoArcsecBeforeScale(t *testing.T) {
	mqtt := newFakeMQTT()
	b := newTestBridge(t, mqtt, nil, nil)

	b.OnConnected()
	b.OnGuideStep(GuideSample{
		RARaw:   f64(3.0),
		DecRaw:  f64(4.0),
		DX:      f64(1.0),
		DY:      f64(2.0),
		SNR:     f64(20.0),
		AvgDist: f64(0.3),
	})

	for _, msg := range mqtt.messages() {
		if strings.Contains(msg.Topic, "arcsec") {
			t.Errorf("arcsec published before scale was known: %+v", msg)
		}
	}
	for _, topic := range []string{
		"phd2/guiding/dx_px",
		"phd2/guiding/dy_px",
		"phd2/guiding/snr",
		"phd2/guiding/avg_dist",
	} {
		if len(mqtt.onTopic(topic)) != 1 {
			t.Errorf("%s: missing pixel-domain publish", topic)
		}
	}
}

func TestBridgeGuideStarTransitionsOnly(t *testing.T) {
	mqtt := newFakeMQTT()
	sink := &fakeSink{}
	b := newTestBridge(t, mqtt, sink, nil)

	b.OnConnected()
	b.OnStarLost()
	b.OnStarLost() // repeat, suppressed
	b.OnGuideStep(GuideSample{})
	b.OnStarLost()

	msgs := mqtt.onTopic("phd2/guiding/guide_star_available")
	if len(msgs) != 3 {
		t.Fatalf("got %d guide star publishes, want 3", len(msgs))
	}
	wantPayloads := []string{"OFF", "ON", "OFF"}
	for i, msg := range msgs {
		if msg.Payload != wantPayloads[i] {
			t.Errorf("publish %d = %q, want %q", i, msg.Payload, wantPayloads[i])
		}
	}

	sink.mu.Lock()
	events := append([]bool(nil), sink.events...)
	sink.mu.Unlock()
	if len(events) != 3 {
		t.Errorf("got %d sink events, want 3", len(events))
	}
}

func TestBridgeReconnectResetsScaleNotDiscovery(t *testing.T) {
	mqtt := newFakeMQTT()
	b := newTestBridge(t, mqtt, nil, nil)

	b.OnTransportConnected()
	b.OnConnected()
	b.OnPixelScale(0.5)
	b.OnGuideStep(GuideSample{RARaw: f64(3.0), DecRaw: f64(4.0)})

	// Server connection drops and comes back; no scale response yet.
	b.OnDisconnected(nil)
	b.OnConnected()
	b.OnGuideStep(GuideSample{RARaw: f64(3.0), DecRaw: f64(4.0)})

	// Exactly one arcsec publish per topic: the pre-reconnect sample.
	if got := len(mqtt.onTopic("phd2/guiding/ra_error_arcsec")); got != 1 {
		t.Errorf("ra_error_arcsec publishes = %d, want 1", got)
	}

	// Discovery stays once per process even across server reconnects.
	b.OnTransportConnected()
	var configs int
	for _, msg := range mqtt.messages() {
		if strings.HasSuffix(msg.Topic, "/config") {
			configs++
		}
	}
	if configs != 8 {
		t.Errorf("discovery configs = %d, want 8", configs)
	}
}

func TestBridgeInvalidPixelScaleIgnored(t *testing.T) {
	mqtt := newFakeMQTT()
	b := newTestBridge(t, mqtt, nil, nil)

	b.OnConnected()
	b.OnPixelScale(0.5)

	if scale, ok := b.tracker.PixelScale(); !ok || scale != 0.5 {
		t.Fatalf("PixelScale() = %v, %v, want 0.5, true", scale, ok)
	}
}

func TestBridgeRecordsSessionEvents(t *testing.T) {
	mqtt := newFakeMQTT()
	rec := &fakeRecorder{}
	b := newTestBridge(t, mqtt, nil, rec)

	b.OnConnected()
	b.OnStarLost()
	b.OnGuideStep(GuideSample{})
	b.OnDisconnected(nil)

	rec.mu.Lock()
	kinds := append([]string(nil), rec.kinds...)
	rec.mu.Unlock()

	want := []string{"phd2_connected", "guide_star_lost", "guide_star_found", "phd2_disconnected"}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %q, want %q", i, kinds[i], want[i])
		}
	}
}

func TestBridgeSinkReceivesFields(t *testing.T) {
	mqtt := newFakeMQTT()
	sink := &fakeSink{}
	b := newTestBridge(t, mqtt, sink, nil)

	b.OnConnected()
	b.OnPixelScale(1.0)
	b.OnGuideStep(GuideSample{RARaw: f64(3.0), DecRaw: f64(4.0), SNR: f64(15.0)})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.samples) != 1 {
		t.Fatalf("got %d sink samples, want 1", len(sink.samples))
	}
	fields := sink.samples[0]
	if fields["total_error_arcsec"] != 5.0 {
		t.Errorf("total_error_arcsec = %v, want 5.0", fields["total_error_arcsec"])
	}
	if fields["snr"] != 15.0 {
		t.Errorf("snr = %v, want 15.0", fields["snr"])
	}
	if _, ok := fields["dx_px"]; ok {
		t.Error("absent dx must not reach the sink")
	}
}

func TestBridgeStatus(t *testing.T) {
	mqtt := newFakeMQTT()
	b := newTestBridge(t, mqtt, nil, nil)

	status := b.Status()
	if status.Connected {
		t.Error("Connected = true before any connection")
	}
	if status.PixelScale != nil {
		t.Error("PixelScale must be absent before the response arrives")
	}
	if status.GuideStarAvailable != nil {
		t.Error("GuideStarAvailable must be absent before any event")
	}

	b.OnConnected()
	b.OnPixelScale(1.5)
	b.OnStarLost()

	status = b.Status()
	if status.PixelScale == nil || *status.PixelScale != 1.5 {
		t.Errorf("PixelScale = %v, want 1.5", status.PixelScale)
	}
	if status.GuideStarAvailable == nil || *status.GuideStarAvailable {
		t.Errorf("GuideStarAvailable = %v, want false", status.GuideStarAvailable)
	}
}

func TestBridgeMarkOffline(t *testing.T) {
	mqtt := newFakeMQTT()
	b := newTestBridge(t, mqtt, nil, nil)

	if err := b.MarkOffline(); err != nil {
		t.Fatalf("MarkOffline() error: %v", err)
	}
	msgs := mqtt.onTopic("phd2/guiding/availability")
	if len(msgs) != 1 || msgs[0].Payload != "offline" {
		t.Fatalf("got %v, want one offline publish", msgs)
	}
}
