// Package history persists power readings to SQLite so recent
// per-device consumption can be served without a round trip to the
// devices.
package history
