// Package host implements the host-facing boundary of the bridge: the
// vendor command/response codec of the USB endpoint contract and the
// dispatcher feeding the link-layer mailbox.
package host

import (
	"encoding/binary"
	"errors"

	"github.com/retronet/nanobridge/pkg/link"
)

// Command codes of the vendor protocol.
type Command byte

const (
	CmdGetStatus Command = iota
	CmdGetConsigne
	CmdPutConsigne
	CmdGetData
	CmdPutData
	CmdDisconnect
)

// ResetRequest is the vendor control request resetting the endpoint
// state machine. It is handled by the USB stack, outside this codec.
const ResetRequest = 0x01

// Response codes.
const (
	RespOK byte = iota
	RespBusy
	RespBadRequest
)

// StatusMsgLen is the fixed size of the error string in a status
// payload.
const StatusMsgLen = 60

// ConsigneRecordLen is the size of a consigne as exchanged with the
// host: length, destination and the 61 wire bytes.
const ConsigneRecordLen = 2 + link.ConsigneWireLen

var errTruncated = errors.New("host: truncated payload")

// StatusReport is the decoded form of a status payload.
type StatusReport struct {
	State   link.State
	Error   link.ErrKind
	Event   link.Event
	Message string
}

// EncodeStatus packs a status snapshot: state, error, event and the
// fixed-size error string.
func EncodeStatus(st link.Status) []byte {
	out := make([]byte, 3+StatusMsgLen)
	out[0] = byte(st.State)
	out[1] = byte(st.Error)
	out[2] = byte(st.Event)
	copy(out[3:], st.Message)
	return out
}

// DecodeStatus unpacks a status payload.
func DecodeStatus(p []byte) (StatusReport, error) {
	if len(p) < 3+StatusMsgLen {
		return StatusReport{}, errTruncated
	}
	msg := p[3 : 3+StatusMsgLen]
	n := 0
	for n < len(msg) && msg[n] != 0 {
		n++
	}
	return StatusReport{
		State:   link.State(p[0]),
		Error:   link.ErrKind(p[1]),
		Event:   link.Event(p[2]),
		Message: string(msg[:n]),
	}, nil
}

// EncodeConsigneRecord packs {peer, length, dest, body}.
func EncodeConsigneRecord(peer byte, c *link.Consigne) []byte {
	out := make([]byte, 1+ConsigneRecordLen)
	out[0] = peer
	if c != nil {
		out[1] = c.Length
		out[2] = c.Dest
		copy(out[3:], c.Body[:])
	}
	return out
}

// DecodeConsigneRecord unpacks {peer, length, dest, body}.
func DecodeConsigneRecord(p []byte) (byte, *link.Consigne, error) {
	if len(p) < 1+ConsigneRecordLen {
		return 0, nil, errTruncated
	}
	c := &link.Consigne{Length: p[1], Dest: p[2]}
	copy(c.Body[:], p[3:])
	if int(c.Length) > link.ConsigneWireLen {
		return 0, nil, link.ErrConsigneSize
	}
	return p[0], c, nil
}

// Command builders used by host-side clients.

// GetStatus builds a status poll.
func GetStatus() []byte { return []byte{byte(CmdGetStatus)} }

// GetConsigne builds a consigne fetch.
func GetConsigne() []byte { return []byte{byte(CmdGetConsigne)} }

// PutConsigne builds a consigne push.
func PutConsigne(c *link.Consigne) []byte {
	out := make([]byte, 1+ConsigneRecordLen)
	out[0] = byte(CmdPutConsigne)
	out[1] = c.Length
	out[2] = c.Dest
	copy(out[3:], c.Body[:])
	return out
}

// PutData builds a data push to target.
func PutData(target byte, data []byte) []byte {
	out := make([]byte, 4+len(data))
	out[0] = byte(CmdPutData)
	out[1] = target
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(data)))
	copy(out[4:], data)
	return out
}

// GetData builds a data fetch from target.
func GetData(target byte, n uint16) []byte {
	out := make([]byte, 4)
	out[0] = byte(CmdGetData)
	out[1] = target
	binary.LittleEndian.PutUint16(out[2:4], n)
	return out
}

// Disconnect builds a disconnect request for target.
func Disconnect(target byte) []byte {
	return []byte{byte(CmdDisconnect), target}
}
