package wire

import (
	"sync"

	"github.com/golang/glog"
)

// Transmitter serializes byte buffers into HDLC frames. It holds
// exclusive use of the clock enable and the data-out line: the link
// layer receives the clock capability through SetClock and no other
// component may touch it.
type Transmitter struct {
	drv Driver

	mu      sync.Mutex
	clockOn bool
}

// NewTransmitter creates a transmitter on drv.
func NewTransmitter(drv Driver) *Transmitter {
	return &Transmitter{drv: drv}
}

// SetClock asserts or releases the clock enable. While asserted between
// frames the line is clocked but no idle flags are shifted out. Release
// waits for an in-flight Send to finish, so a frame always completes
// with its closing flag.
func (t *Transmitter) SetClock(on bool) {
	t.mu.Lock()
	t.setClockLocked(on)
	t.mu.Unlock()
}

// ClockEnabled reports whether the clock enable is asserted.
func (t *Transmitter) ClockEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clockOn
}

func (t *Transmitter) setClockLocked(on bool) {
	if t.clockOn == on {
		return
	}
	t.clockOn = on
	t.drv.SetClockEnable(on)
}

// Send synchronously emits one frame: opening flag, bit-stuffed data,
// the two FCS bytes low byte first, and a closing flag. It returns
// after the closing flag has been shifted out. If the caller has not
// asserted the clock, Send gates it around the frame.
func (t *Transmitter) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	gated := !t.clockOn
	if gated {
		t.setClockLocked(true)
	}
	err := t.writeBits(FrameBits(EncodeFrame(data)))
	if gated {
		t.setClockLocked(false)
	}
	if err != nil {
		return err
	}
	glog.V(4).Infof("tx frame, %d bytes", len(data))
	return nil
}

func (t *Transmitter) writeBits(bits []bool) error {
	for _, bit := range bits {
		if err := t.drv.WriteBit(bit); err != nil {
			return err
		}
	}
	return nil
}
