package aggregate

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/tapowatt/internal/device"
)

// Reading statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Reading is one device's entry in an aggregation response. A failed
// fetch still produces an entry so the response always has exactly one
// entry per configured device.
type Reading struct {
	Device string         `json:"device"`
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// PowerFetcher retrieves the current power payload for a single device.
// Implemented by backend.Client.
type PowerFetcher interface {
	FetchPower(ctx context.Context, d device.Descriptor) (map[string]any, error)
}

// Aggregator fans out one backend query per configured device and
// assembles the results in inventory order.
type Aggregator struct {
	registry *device.Registry
	fetcher  PowerFetcher
}

// NewAggregator creates an aggregator over the given inventory.
func NewAggregator(registry *device.Registry, fetcher PowerFetcher) *Aggregator {
	return &Aggregator{
		registry: registry,
		fetcher:  fetcher,
	}
}

// CollectAll queries every configured device concurrently and returns
// one reading per device, in inventory order. Individual failures are
// reported inline; CollectAll itself never fails.
func (a *Aggregator) CollectAll(ctx context.Context) []Reading {
	devices := a.registry.All()
	readings := make([]Reading, len(devices))

	var wg sync.WaitGroup
	for i, d := range devices {
		i, d := i, d
		wg.Add(1)
		go func() {
			defer wg.Done()
			readings[i] = a.collect(ctx, d)
		}()
	}
	wg.Wait()

	return readings
}

// CollectOne queries a single device by name.
func (a *Aggregator) CollectOne(ctx context.Context, name string) (Reading, error) {
	d, ok := a.registry.Get(name)
	if !ok {
		return Reading{}, fmt.Errorf("unknown device %q", name)
	}
	return a.collect(ctx, d), nil
}

func (a *Aggregator) collect(ctx context.Context, d device.Descriptor) Reading {
	data, err := a.fetcher.FetchPower(ctx, d)
	if err != nil {
		return Reading{
			Device: d.Name,
			Status: StatusFailed,
			Error:  err.Error(),
		}
	}
	return Reading{
		Device: d.Name,
		Status: StatusSuccess,
		Data:   data,
	}
}

// Watts extracts the instantaneous power value from a successful
// reading. Returns false when the reading failed or the payload does
// not carry a numeric current_power field.
func Watts(r Reading) (float64, bool) {
	if r.Status != StatusSuccess {
		return 0, false
	}
	v, ok := r.Data["current_power"].(float64)
	return v, ok
}
