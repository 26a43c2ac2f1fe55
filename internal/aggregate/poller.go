package aggregate

import (
	"context"
	"encoding/json"
	"time"
)

// Logger defines the logging interface for the poller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder persists readings. Implemented by history.Store.
type Recorder interface {
	Record(ctx context.Context, r Reading) error
}

// MetricWriter forwards power samples to a time-series database.
// Implemented by the InfluxDB client wrapper.
type MetricWriter interface {
	WritePowerReading(deviceName string, watts float64) error
}

// Publisher pushes readings to an MQTT broker.
type Publisher interface {
	PublishPowerReading(deviceName string, payload []byte) error
}

// Broadcaster fans readings out to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// Sinks holds the optional destinations a poll cycle feeds. Any nil
// sink is skipped.
type Sinks struct {
	Recorder    Recorder
	Metrics     MetricWriter
	Publisher   Publisher
	Broadcaster Broadcaster
}

// Poller periodically collects readings from every device and fans
// them out to the configured sinks. It exists for the streaming and
// storage paths; the HTTP aggregation endpoint always collects fresh.
type Poller struct {
	aggregator *Aggregator
	interval   time.Duration
	sinks      Sinks
	logger     Logger
}

// NewPoller creates a poller. interval must be positive.
func NewPoller(aggregator *Aggregator, interval time.Duration, sinks Sinks, logger Logger) *Poller {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Poller{
		aggregator: aggregator,
		interval:   interval,
		sinks:      sinks,
		logger:     logger,
	}
}

// Run polls until the context is cancelled. The first cycle runs
// immediately so sinks are primed without waiting a full interval.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll runs one collection cycle and dispatches the readings.
func (p *Poller) poll(ctx context.Context) {
	readings := p.aggregator.CollectAll(ctx)

	failed := 0
	for _, r := range readings {
		if r.Status != StatusSuccess {
			failed++
			continue
		}
		p.dispatch(ctx, r)
	}

	if p.sinks.Broadcaster != nil {
		p.sinks.Broadcaster.Broadcast("power_update", readings)
	}

	p.logger.Debug("poll cycle complete", "devices", len(readings), "failed", failed)
}

// dispatch feeds one successful reading to the storage sinks.
func (p *Poller) dispatch(ctx context.Context, r Reading) {
	if p.sinks.Recorder != nil {
		if err := p.sinks.Recorder.Record(ctx, r); err != nil {
			p.logger.Warn("recording reading failed", "device", r.Device, "error", err)
		}
	}

	if p.sinks.Metrics != nil {
		if watts, ok := Watts(r); ok {
			if err := p.sinks.Metrics.WritePowerReading(r.Device, watts); err != nil {
				p.logger.Warn("writing metric failed", "device", r.Device, "error", err)
			}
		}
	}

	if p.sinks.Publisher != nil {
		payload, err := json.Marshal(r)
		if err != nil {
			p.logger.Warn("encoding reading failed", "device", r.Device, "error", err)
			return
		}
		if err := p.sinks.Publisher.PublishPowerReading(r.Device, payload); err != nil {
			p.logger.Warn("publishing reading failed", "device", r.Device, "error", err)
		}
	}
}
