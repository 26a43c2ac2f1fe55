// Package aggregate collects power readings from every configured
// device and assembles them into a single ordered response.
//
// The aggregator is used two ways: on demand by the HTTP API, and
// periodically by the poller which feeds the history store, metrics,
// MQTT, and WebSocket sinks.
package aggregate
