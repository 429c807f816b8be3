// Package configerr holds the two sentinel-wrapped error kinds the CLI
// branches its exit code on: a malformed/unreadable pipeline description,
// and a stage whose remaining steps can never become ready.
package configerr

import "errors"

// ErrConfig wraps any error arising from reading or compiling the
// pipeline description (missing file, malformed TOML, invalid memory
// string, a needs reference to an undeclared step).
var ErrConfig = errors.New("pipeline configuration error")

// ErrDeadlock wraps a stage scheduler deadlock: steps remain that are
// neither started nor ready, and none is in flight.
var ErrDeadlock = errors.New("pipeline deadlock")
