// Package database provides the SQLite connection layer and embedded
// schema migrations for the local reading history.
//
// SQLite is opened with WAL mode and a busy timeout, pinned to a
// single connection to match its one-writer model. Migrations are
// plain SQL files compiled into the binary; see the migrations
// package at the repository root.
package database
