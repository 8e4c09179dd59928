package host

import (
	"encoding/binary"

	"github.com/golang/glog"

	"github.com/retronet/nanobridge/pkg/link"
)

// Dispatcher executes vendor commands against the link controller: it
// writes the command mailbox and reads the status, consigne and data
// snapshots. One command in, one response out.
type Dispatcher struct {
	Ctrl *link.Controller
}

// NewDispatcher creates a dispatcher for ctrl.
func NewDispatcher(ctrl *link.Controller) *Dispatcher {
	return &Dispatcher{Ctrl: ctrl}
}

// Handle processes one encoded command and returns the encoded
// response.
func (d *Dispatcher) Handle(req []byte) []byte {
	if len(req) == 0 {
		return []byte{RespBadRequest}
	}
	cmd, body := Command(req[0]), req[1:]
	glog.V(3).Infof("host command %d, %d byte(s)", cmd, len(body))
	switch cmd {
	case CmdGetStatus:
		st := d.Ctrl.ConsumeStatus()
		return append([]byte{RespOK}, EncodeStatus(st)...)
	case CmdGetConsigne:
		st := d.Ctrl.Status()
		return append([]byte{RespOK}, EncodeConsigneRecord(st.Peer, st.Consigne)...)
	case CmdPutConsigne:
		if len(body) < ConsigneRecordLen {
			return []byte{RespBadRequest}
		}
		c := &link.Consigne{Length: body[0], Dest: body[1]}
		copy(c.Body[:], body[2:])
		if int(c.Length) > link.ConsigneWireLen {
			return []byte{RespBadRequest}
		}
		return d.post(link.SendConsigneReq{Consigne: c})
	case CmdPutData:
		if len(body) < 3 {
			return []byte{RespBadRequest}
		}
		n := int(binary.LittleEndian.Uint16(body[1:3]))
		if len(body) < 3+n {
			return []byte{RespBadRequest}
		}
		data := make([]byte, n)
		copy(data, body[3:3+n])
		return d.post(link.SendDataReq{Target: body[0], Data: data})
	case CmdGetData:
		if len(body) < 3 {
			return []byte{RespBadRequest}
		}
		if data := d.Ctrl.TakeData(); data != nil {
			// a completed block is pending, hand it over
			resp := make([]byte, 3+len(data))
			resp[0] = RespOK
			binary.LittleEndian.PutUint16(resp[1:3], uint16(len(data)))
			copy(resp[3:], data)
			return resp
		}
		return d.post(link.ReceiveDataReq{
			Target: body[0],
			Len:    int(binary.LittleEndian.Uint16(body[1:3])),
		})
	case CmdDisconnect:
		if len(body) < 1 {
			return []byte{RespBadRequest}
		}
		return d.post(link.DisconnectReq{Target: body[0]})
	}
	return []byte{RespBadRequest}
}

func (d *Dispatcher) post(req link.Request) []byte {
	if err := d.Ctrl.Mailbox().Post(req); err != nil {
		return []byte{RespBusy}
	}
	return []byte{RespOK}
}
