// Package backend manages the tapo-rest sidecar: process supervision,
// startup readiness, session authentication, and per-device power
// queries.
//
// The readiness probe replaces any fixed startup delay: Start blocks
// until the backend's health endpoint answers, bounded by the
// configured timeout, so the first aggregation request never races
// backend startup.
package backend
