package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nerrad567/phd2-mqtt-bridge/internal/bridges/phd2"
	"github.com/nerrad567/phd2-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/phd2-mqtt-bridge/internal/infrastructure/logging"
)

type stubBridge struct {
	status phd2.Status
}

func (s *stubBridge) Status() phd2.Status {
	return s.status
}

type stubBroker struct {
	connected bool
}

func (s *stubBroker) IsConnected() bool {
	return s.connected
}

func newTestServer(t *testing.T, bridge StatusProvider, mqtt BrokerStatus) *Server {
	t.Helper()

	srv, err := New(Deps{
		Config:    config.APIConfig{Host: "127.0.0.1", Port: 8093},
		Logger:    logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test"),
		Bridge:    bridge,
		MQTT:      mqtt,
		SessionID: "test-session",
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func TestNewRequiresDependencies(t *testing.T) {
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")

	if _, err := New(Deps{Bridge: &stubBridge{}}); err == nil {
		t.Error("New() accepted missing logger")
	}
	if _, err := New(Deps{Logger: logger}); err == nil {
		t.Error("New() accepted missing bridge")
	}
}

func TestHandleHealth(t *testing.T) {
	bridge := &stubBridge{status: phd2.Status{Connected: true, State: "connected"}}
	srv := newTestServer(t, bridge, &stubBroker{connected: true})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status     string            `json:"status"`
		Version    string            `json:"version"`
		Components map[string]string `json:"components"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Components["phd2"] != "up" || body.Components["mqtt"] != "up" {
		t.Errorf("components = %v, want both up", body.Components)
	}
}

func TestHandleHealthDegradedComponents(t *testing.T) {
	bridge := &stubBridge{status: phd2.Status{Connected: false, State: "connecting"}}
	srv := newTestServer(t, bridge, &stubBroker{connected: false})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	srv.buildRouter().ServeHTTP(rec, req)

	// A reconnecting bridge is still a healthy process.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Components map[string]string `json:"components"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body.Components["phd2"] != "down" || body.Components["mqtt"] != "down" {
		t.Errorf("components = %v, want both down", body.Components)
	}
}

func TestHandleStatus(t *testing.T) {
	scale := 1.5
	bridge := &stubBridge{status: phd2.Status{
		Connected:       true,
		State:           "connected",
		PixelScale:      &scale,
		SamplesReceived: 42,
	}}
	srv := newTestServer(t, bridge, &stubBroker{connected: true})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body.SessionID != "test-session" {
		t.Errorf("session_id = %q, want test-session", body.SessionID)
	}
	if !body.MQTTConnected {
		t.Error("mqtt_connected = false, want true")
	}
	if body.PHD2.PixelScale == nil || *body.PHD2.PixelScale != 1.5 {
		t.Errorf("pixel scale = %v, want 1.5", body.PHD2.PixelScale)
	}
	if body.PHD2.SamplesReceived != 42 {
		t.Errorf("samples_received = %d, want 42", body.PHD2.SamplesReceived)
	}
}
