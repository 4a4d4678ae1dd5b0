package broker

import "sync/atomic"

// IDAllocator hands out globally unique connection_ids, shared by the
// acceptor (socket-backed connections) and the JetStream virtual-connection
// spawners (Admin spawning Streams, Stream spawning Consumers), so every
// Conn sharing a shard's connection map is guaranteed a distinct ID
// regardless of which component created it. Spec §4.6: "a monotonic counter
// assigns connection_id."
type IDAllocator struct {
	next atomic.Uint64
}

// NewIDAllocator returns an allocator whose first Next() call returns start.
func NewIDAllocator(start uint64) *IDAllocator {
	a := &IDAllocator{}
	a.next.Store(start)
	return a
}

// Next returns the next unused connection_id.
func (a *IDAllocator) Next() uint64 {
	return a.next.Add(1) - 1
}
