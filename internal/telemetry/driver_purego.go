//go:build !cgo

package telemetry

import _ "modernc.org/sqlite" // pure-Go sqlite driver

// driverName is the database/sql driver registered for this build. Non-CGO
// builds fall back to modernc.org/sqlite so the binary stays statically linked.
const driverName = "sqlite"
