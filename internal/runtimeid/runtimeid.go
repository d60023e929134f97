// Package runtimeid mints diagnostic identifiers for fibers, event-loop
// descriptors and compiled code objects. No other package calls it:
// fibers, tracebacks and rtlog output do not carry these identifiers.
package runtimeid

import (
	"sync/atomic"

	"github.com/google/uuid"
)

var fiberSeq uint64
var loopSeq uint64

// NextFiber returns a monotonically increasing number for labelling a
// fiber (17 on the 17th call), stable across a process run.
func NextFiber() uint64 { return atomic.AddUint64(&fiberSeq, 1) }

// NextEventLoopID labels a per-loop descriptor set for diagnostics.
func NextEventLoopID() uint64 { return atomic.AddUint64(&loopSeq, 1) }

// CodeSalt returns a fresh random salt (a new uuid) on every call. Code's
// content hash (Code.Freeze) does not mix it in.
func CodeSalt() [16]byte { return uuid.New() }
