// Package influxdb forwards power samples to an InfluxDB v2 bucket.
//
// The integration is optional: when disabled in config the poller
// simply runs without a metrics sink.
package influxdb
