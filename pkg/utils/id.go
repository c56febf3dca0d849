package utils

import (
	"fmt"
	"sync/atomic"
	"time"
)

var seq uint64

// GenID returns a sortable unique identifier combining wall time with a
// process-local counter. Used where the caller did not supply an id.
func GenID() string {
	n := atomic.AddUint64(&seq, 1)
	return fmt.Sprintf("%020d-%06d", time.Now().UTC().UnixNano(), n%1000000)
}

// NowMillis returns the authoritative server time in unix milliseconds.
// All last-write-wins decisions compare values from this clock.
func NowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}
