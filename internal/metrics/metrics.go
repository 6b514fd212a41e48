package metrics

import (
	"sync/atomic"
)

// Global metrics - use atomic operations for thread-safe access from hot paths.
var (
	// BytesTX counts bytes relayed toward the destination, BytesRX bytes
	// relayed back to clients.
	BytesTX atomic.Int64
	BytesRX atomic.Int64

	ActiveConns atomic.Int64
	TotalConns  atomic.Int64

	DialFailures atomic.Int64
	RelayErrors  atomic.Int64
)

// Snapshot holds a point-in-time copy of all metrics for rendering.
type Snapshot struct {
	BytesTX int64
	BytesRX int64

	ActiveConns int64
	TotalConns  int64

	DialFailures int64
	RelayErrors  int64
}

// Take returns a snapshot of all current metrics.
func Take() Snapshot {
	return Snapshot{
		BytesTX:      BytesTX.Load(),
		BytesRX:      BytesRX.Load(),
		ActiveConns:  ActiveConns.Load(),
		TotalConns:   TotalConns.Load(),
		DialFailures: DialFailures.Load(),
		RelayErrors:  RelayErrors.Load(),
	}
}
