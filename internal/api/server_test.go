package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/nerrad567/tapowatt/internal/aggregate"
	"github.com/nerrad567/tapowatt/internal/device"
	"github.com/nerrad567/tapowatt/internal/infrastructure/config"
	"github.com/nerrad567/tapowatt/internal/infrastructure/logging"
)

// countingFetcher returns canned payloads and counts backend calls so
// tests can assert that rejected requests never reach the backend.
type countingFetcher struct {
	calls atomic.Int32
}

func (f *countingFetcher) FetchPower(_ context.Context, d device.Descriptor) (map[string]any, error) {
	f.calls.Add(1)
	if d.Name == "dryer" {
		return nil, fmt.Errorf("device unreachable")
	}
	return map[string]any{"current_power": 42.5}, nil
}

func testRegistry(t *testing.T) *device.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.json")
	inventory := `{"devices":[
		{"name":"heater","device_type":"P110","ip_addr":"192.168.1.10"},
		{"name":"dryer","device_type":"P110","ip_addr":"192.168.1.11"},
		{"name":"fridge","device_type":"P115","ip_addr":"192.168.1.12"}
	]}`
	if err := os.WriteFile(path, []byte(inventory), 0o600); err != nil {
		t.Fatalf("writing inventory: %v", err)
	}
	registry, err := device.LoadRegistry(path)
	if err != nil {
		t.Fatalf("loading registry: %v", err)
	}
	return registry
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

// newTestServer builds a server around a counting fetcher without
// starting a listener.
func newTestServer(t *testing.T, auth config.AuthConfig) (*Server, *countingFetcher) {
	t.Helper()
	fetcher := &countingFetcher{}
	registry := testRegistry(t)

	s, err := New(Deps{
		Config:     config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Auth:       auth,
		WS:         config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:     testLogger(),
		Registry:   registry,
		Aggregator: aggregate.NewAggregator(registry, fetcher),
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, fetcher
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestRootRedirectsToAggregation(t *testing.T) {
	s, _ := newTestServer(t, config.AuthConfig{})
	router := s.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != "/get_all_device_power" {
		t.Errorf("Location = %q, want /get_all_device_power", loc)
	}
}

func TestGetAllDevicePower(t *testing.T) {
	s, fetcher := newTestServer(t, config.AuthConfig{})
	router := s.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/get_all_device_power", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var readings []aggregate.Reading
	if err := json.NewDecoder(rec.Body).Decode(&readings); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("got %d readings, want 3", len(readings))
	}

	wantOrder := []string{"heater", "dryer", "fridge"}
	for i, want := range wantOrder {
		if readings[i].Device != want {
			t.Errorf("readings[%d].Device = %q, want %q", i, readings[i].Device, want)
		}
	}
	if readings[1].Status != aggregate.StatusFailed {
		t.Errorf("dryer status = %q, want failed", readings[1].Status)
	}
	if readings[0].Status != aggregate.StatusSuccess {
		t.Errorf("heater status = %q, want success", readings[0].Status)
	}
	if got := fetcher.calls.Load(); got != 3 {
		t.Errorf("backend calls = %d, want 3", got)
	}
}

func TestGetAllDevicePower_AuthRejectsWithoutBackendCalls(t *testing.T) {
	auth := config.AuthConfig{Enabled: true, Password: "hunter2"}
	s, fetcher := newTestServer(t, auth)
	router := s.buildRouter()

	tests := []struct {
		name   string
		header string
		query  string
	}{
		{name: "missing password"},
		{name: "wrong header", header: "wrong"},
		{name: "wrong query", query: "wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/get_all_device_power"
			if tt.query != "" {
				target += "?password=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("X-Auth-Password", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}

	if got := fetcher.calls.Load(); got != 0 {
		t.Errorf("backend calls = %d, want 0 for rejected requests", got)
	}
}

func TestGetAllDevicePower_AuthAccepted(t *testing.T) {
	auth := config.AuthConfig{Enabled: true, Password: "hunter2"}
	s, _ := newTestServer(t, auth)
	router := s.buildRouter()

	t.Run("header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/get_all_device_power", nil)
		req.Header.Set("X-Auth-Password", "hunter2")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/get_all_device_power?password=hunter2", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})
}

func TestHealthIsOpen(t *testing.T) {
	auth := config.AuthConfig{Enabled: true, Password: "hunter2"}
	s, _ := newTestServer(t, auth)
	router := s.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["devices"] != float64(3) {
		t.Errorf("devices = %v, want 3", body["devices"])
	}
}

func TestListDevices(t *testing.T) {
	s, _ := newTestServer(t, config.AuthConfig{})
	router := s.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var devices []device.Descriptor
	if err := json.NewDecoder(rec.Body).Decode(&devices); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(devices) != 3 || devices[0].Name != "heater" {
		t.Errorf("unexpected device list: %+v", devices)
	}
}

func TestDevicePower(t *testing.T) {
	s, fetcher := newTestServer(t, config.AuthConfig{})
	router := s.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/heater/power", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var reading aggregate.Reading
	if err := json.NewDecoder(rec.Body).Decode(&reading); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if reading.Device != "heater" || reading.Status != aggregate.StatusSuccess {
		t.Errorf("unexpected reading: %+v", reading)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("backend calls = %d, want 1", got)
	}
}

func TestDevicePower_UnknownDevice(t *testing.T) {
	s, fetcher := newTestServer(t, config.AuthConfig{})
	router := s.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/toaster/power", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := fetcher.calls.Load(); got != 0 {
		t.Errorf("backend calls = %d, want 0", got)
	}
}

func TestDeviceHistory_Disabled(t *testing.T) {
	s, _ := newTestServer(t, config.AuthConfig{})
	router := s.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/heater/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestBackendStats_NotConfigured(t *testing.T) {
	s, _ := newTestServer(t, config.AuthConfig{})
	router := s.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/backend", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
