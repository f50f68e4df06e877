// Package clock implements the Lamport logical clock carried by every peer.
//
// The clock advances on every send (Tick) and on every receive (Observe). It
// never decreases. A Clock belongs to the control loop of a single peer and is
// not safe for concurrent use.
package clock

// Clock is a Lamport counter. The zero value is a clock at time 0.
type Clock struct {
	time uint64
}

// New returns a Clock starting at the given time.
func New(start uint64) *Clock {
	return &Clock{time: start}
}

// Time returns the current value without advancing the clock.
func (c *Clock) Time() uint64 {
	return c.time
}

// Tick increments the clock and returns the new value. It is called before
// every outgoing message that carries a fresh timestamp.
func (c *Clock) Tick() uint64 {
	c.time++
	return c.time
}

// Observe sets the clock to max(local, remote) + 1 and returns the new value.
// It is called on every incoming message.
func (c *Clock) Observe(remote uint64) uint64 {
	if remote > c.time {
		c.time = remote
	}
	c.time++
	return c.time
}
