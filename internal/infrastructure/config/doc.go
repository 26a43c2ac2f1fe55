// Package config handles loading and validation of Tapowatt configuration.
//
// Configuration comes from three layers, each overriding the last:
//  1. Hardcoded defaults
//  2. YAML file (configs/config.yaml)
//  3. Environment variables (TAPOWATT_* pattern)
//
// Two JSON files sit alongside the YAML config because their formats are
// fixed by the backend integration: the device list (devices.json, parsed
// by the device package) and the backend credentials file (config.json,
// parsed here by LoadBackendCredentials).
//
// Any load or validation failure is fatal at startup. The service never
// runs with a partial configuration.
package config
