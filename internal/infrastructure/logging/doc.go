// Package logging provides structured logging built on log/slog.
//
// Every component receives a child logger via With("component", name)
// so log lines can be filtered per subsystem.
package logging
