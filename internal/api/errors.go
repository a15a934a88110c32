package api

import "errors"

// ErrNotAReplica is returned when a PUT for a timer arrives at a node
// that is not in the timer's replica list (spec.md §7, "NotAReplica").
var ErrNotAReplica = errors.New("not a replica")
