// Package device loads and exposes the static device inventory.
//
// Devices are declared once in a JSON file and never change at runtime.
// The registry preserves file order because the aggregation endpoint
// returns one entry per device in that order.
package device
