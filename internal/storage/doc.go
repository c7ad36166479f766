// Package storage persists the session lifecycle audit trail.
//
// Drivers:
//   - "file": JSON Lines appended to <path>
//   - "sqlite": SQLite database (modernc.org/sqlite, no cgo)
//   - "none": disabled
package storage
