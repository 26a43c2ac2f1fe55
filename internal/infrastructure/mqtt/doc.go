// Package mqtt publishes power readings to an MQTT broker.
//
// Each device's latest reading is retained on tapowatt/power/{name},
// and service availability is announced on tapowatt/system/status with
// a Last Will for crash detection. The integration is optional.
package mqtt
