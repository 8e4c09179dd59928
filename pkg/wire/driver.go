package wire

import "context"

// ClockHz is the nominal rate of the shared line clock.
const ClockHz = 500000

// BitPeriod is the nominal duration of one clocked bit.
const BitPeriod = 2000 // nanoseconds

// Pins names the six GPIO lines of a bus attachment. Drivers that do
// not own real pins ignore it.
type Pins struct {
	ClockIn  int
	DataIn   int
	RxEnable int
	ClockOut int
	DataOut  int
	TxEnable int
}

// Driver is the hardware attachment of the bit layer.
//
// The receive side delivers data bits latched on the external clock.
// The transmit side shifts data bits out on the line clock, which runs
// only while the clock enable is asserted. The edge counter observes
// the shared clock line and is the only way to sense bus activity: the
// line idles at an undefined DC level, so levels cannot be sampled.
type Driver interface {
	// ReadBit blocks until the next clocked data bit or ctx is done.
	ReadBit(ctx context.Context) (bool, error)
	// WriteBit shifts one data bit out.
	WriteBit(bit bool) error
	// SetClockEnable drives or releases the shared clock line.
	SetClockEnable(on bool)
	// ResetEdgeCount zeroes the clock edge counter.
	ResetEdgeCount()
	// EdgeCount reports clock edges seen since the last reset.
	EdgeCount() int
}
