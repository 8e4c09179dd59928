package link

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Consigne sizes. A consigne record holds 61 bytes: a 10-byte fixed
// header followed by 51 context bytes. The wire length is a multiple of
// 4 counted in 4-bit units, so at most 60 bytes (50 context bytes)
// travel on the wire. The length and destination bytes exist only in
// memory.
const (
	ConsigneHeaderLen = 10
	ConsigneCtxLen    = 51
	ConsigneWireLen   = ConsigneHeaderLen + ConsigneCtxLen
)

// Computer identifies the originating computer type.
type Computer byte

const (
	ComputerTO7 Computer = iota
	ComputerMO5
	ComputerTO770
)

func (c Computer) String() string {
	switch c {
	case ComputerTO7:
		return "TO7"
	case ComputerMO5:
		return "MO5"
	case ComputerTO770:
		return "TO7/70"
	}
	return fmt.Sprintf("computer(%d)", byte(c))
}

// Application identifies the application environment of the peer.
type Application byte

const (
	AppUnknown Application = iota
	AppBasic10
	AppLOGO
	AppLSE
)

func (a Application) String() string {
	switch a {
	case AppUnknown:
		return "unknown"
	case AppBasic10:
		return "Basic 1.0"
	case AppLOGO:
		return "LOGO"
	case AppLSE:
		return "LSE"
	}
	return fmt.Sprintf("application(%d)", byte(a))
}

// taskDeferred is the header bit requesting deferred execution of the
// network task.
const taskDeferred = 0x80

// Consigne is the application-layer command record exchanged on the
// bus. Body holds the wire bytes; only Body[:Length] travels on the
// wire, and the 16-bit header fields are big endian.
type Consigne struct {
	Length byte // wire length, a multiple of 4
	Dest   byte // destination station; the sending station once received
	Body   [ConsigneWireLen]byte
}

// ErrConsigneSize reports a record that cannot hold its declared
// length.
var ErrConsigneSize = errors.New("link: bad consigne size")

// ParseConsigne captures units*4 wire bytes received from peer into a
// consigne record.
func ParseConsigne(peer byte, units byte, data []byte) (*Consigne, error) {
	n := int(units) * 4
	if n > ConsigneWireLen || n > len(data) {
		return nil, ErrConsigneSize
	}
	c := &Consigne{Length: byte(n), Dest: peer}
	copy(c.Body[:], data[:n])
	return c, nil
}

// Wire returns the bytes of the consigne as sent on the bus.
func (c *Consigne) Wire() []byte {
	return c.Body[:c.Length]
}

// Units is the wire length in 4-byte units, as carried in the payload
// nibble of call control words.
func (c *Consigne) Units() byte {
	return (c.Length + 3) / 4
}

// TaskCode is the network task code, without the deferred bit.
func (c *Consigne) TaskCode() byte { return c.Body[0] &^ taskDeferred }

// Deferred reports whether the task requests deferred execution.
func (c *Consigne) Deferred() bool { return c.Body[0]&taskDeferred != 0 }

// AppTaskCode is the application task code.
func (c *Consigne) AppTaskCode() byte { return c.Body[1] }

// MsgLen is the number of message bytes.
func (c *Consigne) MsgLen() uint16 { return binary.BigEndian.Uint16(c.Body[2:4]) }

// Page is the memory page of the message.
func (c *Consigne) Page() byte { return c.Body[4] }

// MsgAddr is the memory address of the message.
func (c *Consigne) MsgAddr() uint16 { return binary.BigEndian.Uint16(c.Body[5:7]) }

// Computer is the originating computer type.
func (c *Consigne) Computer() Computer { return Computer(c.Body[7]) }

// Application is the application id.
func (c *Consigne) Application() Application { return Application(c.Body[8]) }

// Ctx returns the context bytes present on the wire.
func (c *Consigne) Ctx() []byte {
	if int(c.Length) <= ConsigneHeaderLen {
		return nil
	}
	return c.Body[ConsigneHeaderLen:c.Length]
}

// Header describes the fixed consigne header for composition.
type Header struct {
	TaskCode    byte
	Deferred    bool
	AppTaskCode byte
	MsgLen      uint16
	Page        byte
	MsgAddr     uint16
	Computer    Computer
	Application Application
}

// Compose builds a consigne for dest from a header and context bytes.
// The wire length is rounded up to a multiple of 4.
func Compose(dest byte, h Header, ctx []byte) (*Consigne, error) {
	if len(ctx) > ConsigneCtxLen {
		return nil, ErrConsigneSize
	}
	c := &Consigne{Dest: dest}
	c.Body[0] = h.TaskCode &^ taskDeferred
	if h.Deferred {
		c.Body[0] |= taskDeferred
	}
	c.Body[1] = h.AppTaskCode
	binary.BigEndian.PutUint16(c.Body[2:4], h.MsgLen)
	c.Body[4] = h.Page
	binary.BigEndian.PutUint16(c.Body[5:7], h.MsgAddr)
	c.Body[7] = byte(h.Computer)
	c.Body[8] = byte(h.Application)
	copy(c.Body[ConsigneHeaderLen:], ctx)
	n := (ConsigneHeaderLen + len(ctx) + 3) &^ 3
	if n > ConsigneWireLen {
		// the length nibble counts 4-byte units, 15 units at most
		return nil, ErrConsigneSize
	}
	c.Length = byte(n)
	return c, nil
}

func (c *Consigne) String() string {
	return fmt.Sprintf("consigne: task %d app %d msg %d bytes page %d addr %#04x (%s, %s)",
		c.TaskCode(), c.AppTaskCode(), c.MsgLen(), c.Page(), c.MsgAddr(), c.Computer(), c.Application())
}
