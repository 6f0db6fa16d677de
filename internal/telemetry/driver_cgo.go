//go:build cgo

package telemetry

import _ "github.com/mattn/go-sqlite3" // cgo sqlite3 driver

// driverName is the database/sql driver registered for this build. CGO
// builds prefer mattn/go-sqlite3 since it links the real SQLite amalgamation.
const driverName = "sqlite3"
