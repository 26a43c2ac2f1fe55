package aggregate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/tapowatt/internal/device"
)

const testInventory = `{
	"devices": [
		{"name": "heater", "device_type": "P110", "ip_addr": "192.168.1.20"},
		{"name": "dryer", "device_type": "P115", "ip_addr": "192.168.1.21"},
		{"name": "fridge", "device_type": "P110", "ip_addr": "192.168.1.22"}
	]
}`

func testRegistry(t *testing.T) *device.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.json")
	if err := os.WriteFile(path, []byte(testInventory), 0o600); err != nil {
		t.Fatalf("writing inventory: %v", err)
	}
	reg, err := device.LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry() error: %v", err)
	}
	return reg
}

// fakeFetcher serves canned payloads per device name. A device listed
// in failures returns an error instead. Delays simulate uneven backend
// latency.
type fakeFetcher struct {
	payloads map[string]map[string]any
	failures map[string]error
	delays   map[string]time.Duration
	calls    atomic.Int32
}

func (f *fakeFetcher) FetchPower(ctx context.Context, d device.Descriptor) (map[string]any, error) {
	f.calls.Add(1)
	if delay := f.delays[d.Name]; delay > 0 {
		time.Sleep(delay)
	}
	if err := f.failures[d.Name]; err != nil {
		return nil, err
	}
	return f.payloads[d.Name], nil
}

func TestAggregator_CollectAll(t *testing.T) {
	fetcher := &fakeFetcher{
		payloads: map[string]map[string]any{
			"heater": {"current_power": 1500.0},
			"fridge": {"current_power": 85.5},
		},
		failures: map[string]error{
			"dryer": errors.New("device unreachable"),
		},
	}

	agg := NewAggregator(testRegistry(t), fetcher)
	readings := agg.CollectAll(context.Background())

	if len(readings) != 3 {
		t.Fatalf("CollectAll() returned %d readings, want 3", len(readings))
	}
	if fetcher.calls.Load() != 3 {
		t.Errorf("fetch calls = %d, want 3", fetcher.calls.Load())
	}

	// Inventory order regardless of completion order
	wantOrder := []string{"heater", "dryer", "fridge"}
	for i, r := range readings {
		if r.Device != wantOrder[i] {
			t.Errorf("readings[%d].Device = %q, want %q", i, r.Device, wantOrder[i])
		}
	}

	if readings[0].Status != StatusSuccess {
		t.Errorf("heater status = %q, want %q", readings[0].Status, StatusSuccess)
	}
	if readings[0].Data["current_power"] != 1500.0 {
		t.Errorf("heater current_power = %v, want 1500", readings[0].Data["current_power"])
	}

	if readings[1].Status != StatusFailed {
		t.Errorf("dryer status = %q, want %q", readings[1].Status, StatusFailed)
	}
	if readings[1].Error != "device unreachable" {
		t.Errorf("dryer error = %q, want %q", readings[1].Error, "device unreachable")
	}
	if readings[1].Data != nil {
		t.Errorf("dryer data = %v, want nil", readings[1].Data)
	}
}

func TestAggregator_CollectAll_OrderUnderUnevenLatency(t *testing.T) {
	fetcher := &fakeFetcher{
		payloads: map[string]map[string]any{
			"heater": {"current_power": 1.0},
			"dryer":  {"current_power": 2.0},
			"fridge": {"current_power": 3.0},
		},
		// First device slowest: completion order is the reverse of
		// inventory order.
		delays: map[string]time.Duration{
			"heater": 60 * time.Millisecond,
			"dryer":  30 * time.Millisecond,
		},
	}

	agg := NewAggregator(testRegistry(t), fetcher)
	readings := agg.CollectAll(context.Background())

	wantOrder := []string{"heater", "dryer", "fridge"}
	for i, r := range readings {
		if r.Device != wantOrder[i] {
			t.Errorf("readings[%d].Device = %q, want %q", i, r.Device, wantOrder[i])
		}
	}
}

func TestAggregator_CollectOne(t *testing.T) {
	fetcher := &fakeFetcher{
		payloads: map[string]map[string]any{
			"dryer": {"current_power": 300.0},
		},
	}
	agg := NewAggregator(testRegistry(t), fetcher)

	r, err := agg.CollectOne(context.Background(), "dryer")
	if err != nil {
		t.Fatalf("CollectOne() error: %v", err)
	}
	if r.Device != "dryer" || r.Status != StatusSuccess {
		t.Errorf("CollectOne() = %+v, want successful dryer reading", r)
	}

	if _, err := agg.CollectOne(context.Background(), "toaster"); err == nil {
		t.Error("CollectOne(toaster) expected error, got nil")
	}
}

func TestWatts(t *testing.T) {
	tests := []struct {
		name    string
		reading Reading
		want    float64
		wantOK  bool
	}{
		{
			name:    "successful reading",
			reading: Reading{Status: StatusSuccess, Data: map[string]any{"current_power": 42.5}},
			want:    42.5,
			wantOK:  true,
		},
		{
			name:    "failed reading",
			reading: Reading{Status: StatusFailed, Error: "unreachable"},
			wantOK:  false,
		},
		{
			name:    "missing field",
			reading: Reading{Status: StatusSuccess, Data: map[string]any{"voltage": 230.0}},
			wantOK:  false,
		},
		{
			name:    "non-numeric field",
			reading: Reading{Status: StatusSuccess, Data: map[string]any{"current_power": "high"}},
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Watts(tt.reading)
			if ok != tt.wantOK {
				t.Fatalf("Watts() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Watts() = %v, want %v", got, tt.want)
			}
		})
	}
}
