package router

// ringChan is a bounded channel-like buffer with overwrite-oldest semantics.
// Notification delivery originates on the BLE stack's callback path and must
// never block it: if the decode worker falls behind, the oldest pending
// frame is discarded instead of stalling the radio.
type ringChan[T any] struct {
	ch chan T
}

func newRingChan[T any](capacity int) *ringChan[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &ringChan[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *ringChan[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest when full. It never blocks
// indefinitely.
func (rc *ringChan[T]) Send(v T) (dropped bool) {
	for {
		select {
		case rc.ch <- v:
			return dropped
		default:
		}
		select {
		case <-rc.ch: // drop oldest
			dropped = true
		default:
		}
	}
}
