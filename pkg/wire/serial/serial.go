// Package serial attaches the wire layer to a serial port for bench
// setups where an external adapter drives the synchronous side of the
// bus and relays the raw bit stream packed into bytes, LSB first.
package serial

import (
	"context"
	"flag"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
	tarm "github.com/tarm/serial"
)

// Config selects the port to attach to.
type Config struct {
	Device string
	Baud   int
}

// SetupFlags registers command line flags.
func (c *Config) SetupFlags() {
	flag.StringVar(&c.Device, "serial", "", "Serial device relaying the bus bit stream.")
	flag.IntVar(&c.Baud, "baud", 115200, "Serial device baud rate.")
}

// Open opens the port and returns a wire.Driver over it.
func (c Config) Open() (*Driver, error) {
	port, err := tarm.OpenPort(&tarm.Config{
		Name:        c.Device,
		Baud:        c.Baud,
		ReadTimeout: 10 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	glog.Infof("attached to %s at %d baud", c.Device, c.Baud)
	return &Driver{port: port}, nil
}

// Driver implements wire.Driver at byte granularity: received bytes are
// unpacked into bits and written bits are packed into bytes. The final
// partial byte of a transmission is padded with ones when the clock is
// released; trailing ones read as bus idle after the closing flag.
type Driver struct {
	port *tarm.Port

	mu      sync.Mutex
	rxBits  []bool
	rxNext  int
	txAcc   byte
	txNBits int
	edges   int
}

// ReadBit implements wire.Driver.
func (d *Driver) ReadBit(ctx context.Context) (bool, error) {
	for {
		d.mu.Lock()
		if d.rxNext < len(d.rxBits) {
			bit := d.rxBits[d.rxNext]
			d.rxNext++
			d.mu.Unlock()
			return bit, nil
		}
		d.rxBits = d.rxBits[:0]
		d.rxNext = 0
		d.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return false, err
		}
		buf := make([]byte, 64)
		n, err := d.port.Read(buf)
		if err != nil && err != io.EOF {
			return false, err
		}
		if n == 0 {
			// read timeout, poll again
			continue
		}
		d.mu.Lock()
		for _, b := range buf[:n] {
			for i := 0; i < 8; i++ {
				d.rxBits = append(d.rxBits, b>>uint(i)&1 == 1)
			}
		}
		// line activity implies the peer drives the clock
		d.edges += n * 16
		d.mu.Unlock()
	}
}

// WriteBit implements wire.Driver.
func (d *Driver) WriteBit(bit bool) error {
	d.mu.Lock()
	if bit {
		d.txAcc |= 1 << uint(d.txNBits)
	}
	d.txNBits++
	if d.txNBits < 8 {
		d.mu.Unlock()
		return nil
	}
	b := d.txAcc
	d.txAcc, d.txNBits = 0, 0
	d.mu.Unlock()
	_, err := d.port.Write([]byte{b})
	return err
}

// SetClockEnable implements wire.Driver. Releasing the clock flushes
// the pending partial byte padded with idle ones.
func (d *Driver) SetClockEnable(on bool) {
	if on {
		return
	}
	d.mu.Lock()
	if d.txNBits == 0 {
		d.mu.Unlock()
		return
	}
	b := d.txAcc
	for i := d.txNBits; i < 8; i++ {
		b |= 1 << uint(i)
	}
	d.txAcc, d.txNBits = 0, 0
	d.mu.Unlock()
	if _, err := d.port.Write([]byte{b}); err != nil {
		glog.Errorf("serial flush: %v", err)
	}
}

// ResetEdgeCount implements wire.Driver.
func (d *Driver) ResetEdgeCount() {
	d.mu.Lock()
	d.edges = 0
	d.mu.Unlock()
}

// EdgeCount implements wire.Driver.
func (d *Driver) EdgeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.edges
}

// Close releases the port.
func (d *Driver) Close() error {
	return d.port.Close()
}
