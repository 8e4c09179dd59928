package wire

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOverrun is reported when a loopback endpoint writes faster than
// its peer drains.
var ErrOverrun = errors.New("wire: loopback overrun")

const loopbackDepth = 1 << 16

// LoopbackEnd is one endpoint of a software wire. Bits written on one
// end are clocked into the other; clock-enable assertions are visible
// to the edge counters of both ends, like the real shared clock line.
type LoopbackEnd struct {
	peer *LoopbackEnd
	bits chan bool

	mu         sync.Mutex
	clockOn    bool
	clockSince time.Time
	edges      int
	resetAt    time.Time
}

// NewLoopback creates a pair of drivers wired back to back.
func NewLoopback() (*LoopbackEnd, *LoopbackEnd) {
	now := time.Now()
	a := &LoopbackEnd{bits: make(chan bool, loopbackDepth), resetAt: now}
	b := &LoopbackEnd{bits: make(chan bool, loopbackDepth), resetAt: now}
	a.peer, b.peer = b, a
	return a, b
}

// ReadBit implements Driver.
func (e *LoopbackEnd) ReadBit(ctx context.Context) (bool, error) {
	select {
	case bit := <-e.bits:
		return bit, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// WriteBit implements Driver.
func (e *LoopbackEnd) WriteBit(bit bool) error {
	select {
	case e.peer.bits <- bit:
	default:
		return ErrOverrun
	}
	// each bit toggles the shared clock once in each direction
	e.addEdges(2)
	e.peer.addEdges(2)
	return nil
}

// SetClockEnable implements Driver. The clock line is shared, so both
// ends observe the assertion.
func (e *LoopbackEnd) SetClockEnable(on bool) {
	e.clockEvent(on)
	e.peer.clockEvent(on)
}

// ResetEdgeCount implements Driver.
func (e *LoopbackEnd) ResetEdgeCount() {
	e.mu.Lock()
	e.edges = 0
	e.resetAt = time.Now()
	e.mu.Unlock()
}

// EdgeCount implements Driver.
func (e *LoopbackEnd) EdgeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.edges
	if e.clockOn {
		n += elapsedEdges(e.clockSince, e.resetAt, time.Now())
	}
	return n
}

func (e *LoopbackEnd) addEdges(n int) {
	e.mu.Lock()
	e.edges += n
	e.mu.Unlock()
}

func (e *LoopbackEnd) clockEvent(on bool) {
	now := time.Now()
	e.mu.Lock()
	switch {
	case on && !e.clockOn:
		e.clockOn = true
		e.clockSince = now
	case !on && e.clockOn:
		e.clockOn = false
		// latch the edges of the pulse, like a hardware counter
		e.edges += elapsedEdges(e.clockSince, e.resetAt, now)
	}
	e.mu.Unlock()
}

// elapsedEdges counts clock edges between max(since, resetAt) and now.
func elapsedEdges(since, resetAt, now time.Time) int {
	if resetAt.After(since) {
		since = resetAt
	}
	d := now.Sub(since)
	if d <= 0 {
		return 0
	}
	return int(d.Nanoseconds() / BitPeriod)
}
