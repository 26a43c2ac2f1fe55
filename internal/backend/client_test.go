package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/tapowatt/internal/device"
)

var testDevice = device.Descriptor{Name: "heater", Type: "P110", IPAddr: "192.168.1.20"}

// newBackendStub simulates the tapo-rest API: /login issues tokens and
// the action route serves power readings for bearer-authenticated
// requests.
func newBackendStub(t *testing.T, password string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var logins atomic.Int32
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password != password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		logins.Add(1)
		w.Write([]byte(`"token-v1"`))
	})

	mux.HandleFunc("/actions/p110/get-current-power", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Authorization") != "Bearer token-v1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("device") != "heater" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"current_power": 42.5, "local_time": "2026-01-01 12:00:00"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &logins
}

func TestClient_Login(t *testing.T) {
	srv, logins := newBackendStub(t, "secret")

	c := NewClient(srv.URL, "secret", 5*time.Second)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	if got := c.currentToken(); got != "token-v1" {
		t.Errorf("cached token = %q, want %q", got, "token-v1")
	}
	if logins.Load() != 1 {
		t.Errorf("login count = %d, want 1", logins.Load())
	}
}

func TestClient_Login_WrongPassword(t *testing.T) {
	srv, _ := newBackendStub(t, "secret")

	c := NewClient(srv.URL, "wrong", 5*time.Second)
	err := c.Login(context.Background())
	if !errors.Is(err, ErrLoginFailed) {
		t.Errorf("Login() error = %v, want ErrLoginFailed", err)
	}
}

func TestClient_FetchPower(t *testing.T) {
	srv, _ := newBackendStub(t, "secret")

	c := NewClient(srv.URL, "secret", 5*time.Second)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	data, err := c.FetchPower(context.Background(), testDevice)
	if err != nil {
		t.Fatalf("FetchPower() error: %v", err)
	}
	if got := data["current_power"]; got != 42.5 {
		t.Errorf("current_power = %v, want 42.5", got)
	}
}

func TestClient_FetchPower_LazyLogin(t *testing.T) {
	srv, logins := newBackendStub(t, "secret")

	// No explicit Login call: the first fetch must authenticate itself.
	c := NewClient(srv.URL, "secret", 5*time.Second)
	if _, err := c.FetchPower(context.Background(), testDevice); err != nil {
		t.Fatalf("FetchPower() error: %v", err)
	}
	if logins.Load() != 1 {
		t.Errorf("login count = %d, want 1", logins.Load())
	}
}

func TestClient_FetchPower_ReloginOnExpiredToken(t *testing.T) {
	srv, logins := newBackendStub(t, "secret")

	c := NewClient(srv.URL, "secret", 5*time.Second)

	// Simulate a stale session from a backend restart.
	c.mu.Lock()
	c.token = "token-expired"
	c.mu.Unlock()

	data, err := c.FetchPower(context.Background(), testDevice)
	if err != nil {
		t.Fatalf("FetchPower() error: %v", err)
	}
	if got := data["current_power"]; got != 42.5 {
		t.Errorf("current_power = %v, want 42.5", got)
	}
	if logins.Load() != 1 {
		t.Errorf("login count = %d, want exactly 1 re-login", logins.Load())
	}
}

func TestClient_FetchPower_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			w.Write([]byte("token-v1"))
			return
		}
		http.Error(w, "device unreachable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second)
	if _, err := c.FetchPower(context.Background(), testDevice); err == nil {
		t.Error("FetchPower() expected error for backend 502, got nil")
	}
}

func TestClient_FetchPower_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			w.Write([]byte("token-v1"))
			return
		}
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second)
	if _, err := c.FetchPower(context.Background(), testDevice); err == nil {
		t.Error("FetchPower() expected error for malformed payload, got nil")
	}
}

func TestClient_Login_EmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("  "))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second)
	if err := c.Login(context.Background()); !errors.Is(err, ErrLoginFailed) {
		t.Errorf("Login() error = %v, want ErrLoginFailed", err)
	}
}
