package wire

import (
	"context"
	"errors"
	"time"
)

// ErrNoEcho is reported when the peer never echoed our call with its
// clock within the allotted window.
var ErrNoEcho = errors.New("wire: no echo clock detected")

// detectCycles is the sampling window of a regular detection, in clock
// cycles. A short probe uses minProbeCycles, still wide enough to ride
// out a single glitch.
const (
	detectCycles   = 10
	minProbeCycles = 2
)

// Clock senses whether the shared line clock is currently being driven.
// It is polled synchronously from the link layer and is not an
// interrupt source.
type Clock struct {
	drv Driver
}

// NewClock creates a detector on drv.
func NewClock(drv Driver) *Clock {
	return &Clock{drv: drv}
}

// Detected enables the edge counter, waits the worst-case time required
// for cycles edges at the nominal bus rate, and reports whether at
// least one edge was counted. cycles is clamped to minProbeCycles.
func (c *Clock) Detected(cycles int) bool {
	if cycles < minProbeCycles {
		cycles = minProbeCycles
	}
	c.drv.ResetEdgeCount()
	time.Sleep(time.Duration(cycles*BitPeriod) * time.Nanosecond)
	return c.drv.EdgeCount() > 0
}

// WaitForSilence polls Detected until the line goes quiet.
func (c *Clock) WaitForSilence(ctx context.Context) error {
	for c.Detected(detectCycles) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// WaitForEcho polls for clock activity within timeout. It is used after
// a call frame to observe the peer pulsing its clock back.
func (c *Clock) WaitForEcho(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for !c.Detected(minProbeCycles) {
		if time.Now().After(deadline) {
			return ErrNoEcho
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}
