package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RoboDomo/harmony-microservice/internal/bridges/harmony"
	"github.com/RoboDomo/harmony-microservice/internal/infrastructure/logging"
)

// fakeBridge is a canned HubBridge for handler tests.
type fakeBridge struct {
	id      string
	name    string
	metrics harmony.BridgeMetrics
	state   *harmony.LiveState
}

func (f *fakeBridge) HubID() string                  { return f.id }
func (f *fakeBridge) HubName() string                { return f.name }
func (f *fakeBridge) Metrics() harmony.BridgeMetrics { return f.metrics }
func (f *fakeBridge) State() *harmony.LiveState      { return f.state }

type fakeBroker struct{ connected bool }

func (f *fakeBroker) IsConnected() bool { return f.connected }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Deps{
		Logger: logging.Default(),
		Bridges: []HubBridge{
			&fakeBridge{
				id:   "hub1",
				name: "Living Room",
				metrics: harmony.BridgeMetrics{
					HubID:           "hub1",
					HubName:         "Living Room",
					Connected:       true,
					CurrentActivity: "12345",
					Devices:         3,
					Activities:      2,
				},
				state: &harmony.LiveState{CurrentActivity: "12345"},
			},
		},
		Broker:  &fakeBroker{connected: true},
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRequiresLogger(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatal("expected error without logger")
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["hubs_connected"] != float64(1) {
		t.Errorf("hubs_connected = %v, want 1", body["hubs_connected"])
	}
	if body["mqtt_connected"] != true {
		t.Errorf("mqtt_connected = %v, want true", body["mqtt_connected"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHandleMetrics(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["hubs_total"] != float64(1) {
		t.Errorf("hubs_total = %v, want 1", body["hubs_total"])
	}
	if body["hubs_connected"] != float64(1) {
		t.Errorf("hubs_connected = %v, want 1", body["hubs_connected"])
	}
	if body["mqtt_connected"] != true {
		t.Errorf("mqtt_connected = %v, want true", body["mqtt_connected"])
	}
}

func TestHandleListHubs(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/hubs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Hubs []harmony.BridgeMetrics `json:"hubs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Hubs) != 1 || body.Hubs[0].HubID != "hub1" {
		t.Errorf("hubs = %+v, want one entry for hub1", body.Hubs)
	}
}

func TestHandleGetHub(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/hubs/hub1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/hubs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown hub status = %d, want 404", rec.Code)
	}
	var apiErr Error
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if apiErr.Code != ErrCodeNotFound {
		t.Errorf("error code = %q, want %q", apiErr.Code, ErrCodeNotFound)
	}
}

func TestHandleGetHubState(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/hubs/hub1/state", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var state harmony.LiveState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.CurrentActivity != "12345" {
		t.Errorf("current activity = %q, want 12345", state.CurrentActivity)
	}
}
