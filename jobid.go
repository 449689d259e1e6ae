package main

import (
	"fmt"
	"sync/atomic"
)

// JobId identifies a unit of work handed to miners via mining.notify. It
// is opaque to miners (round-tripped verbatim in mining.submit) and only
// needs to be unique within the process's JobStore retention window.
type JobId uint64

// jobIDCounter hands out monotonically increasing JobId values.
var jobIDCounter uint64

// NextJobId returns a fresh, process-unique JobId.
func NextJobId() JobId {
	return JobId(atomic.AddUint64(&jobIDCounter, 1))
}

// Hex renders the job id the way mining.notify puts it on the wire.
func (j JobId) Hex() string {
	return fmt.Sprintf("%x", uint64(j))
}

func (j JobId) String() string {
	return j.Hex()
}
