package link

import "fmt"

// Ctrl is a link control word. The high nibble encodes the command,
// the low nibble carries a 4-bit payload: a message number, or for
// calls the consigne length in 4-byte units.
type Ctrl byte

// Control words of the Nanoréseau dialogue.
const (
	// CtrlData marks a data frame, payload follows.
	CtrlData Ctrl = 0x00
	// MCVR "vas-y recois": the master tells the peer to receive data.
	MCVR Ctrl = 0x80
	// MCPCH "prise en charge": take-charge acknowledgement.
	MCPCH Ctrl = 0x90
	// MCAMA "avis de mise en attente": queueing notice.
	MCAMA Ctrl = 0xA0
	// MCVE "vas-y emets": the master asks the peer to transmit.
	MCVE Ctrl = 0xB0
	// MCDISC "deconnecte": disconnect request.
	MCDISC Ctrl = 0xC0
	// MCAPA "appel sous attente": call under an existing queue.
	MCAPA Ctrl = 0xD0
	// MCOK acknowledge.
	MCOK Ctrl = 0xE0
	// MCUA is the disconnect acknowledge. It shares the word with MCOK
	// and is disambiguated by context: after data it reads OK, after a
	// disconnect it reads UA.
	MCUA Ctrl = 0xE0
	// MCAPI "appel initial": initial call.
	MCAPI Ctrl = 0xF0
)

// Command strips the payload nibble.
func (c Ctrl) Command() Ctrl {
	return c & 0xF0
}

// Payload extracts the 4-bit payload.
func (c Ctrl) Payload() byte {
	return byte(c) & 0x0F
}

// WithPayload sets the payload nibble.
func (c Ctrl) WithPayload(p byte) Ctrl {
	return c.Command() | Ctrl(p&0x0F)
}

func (c Ctrl) String() string {
	var name string
	switch c.Command() {
	case CtrlData:
		name = "DATA"
	case MCVR:
		name = "MCVR"
	case MCPCH:
		name = "MCPCH"
	case MCAMA:
		name = "MCAMA"
	case MCVE:
		name = "MCVE"
	case MCDISC:
		name = "MCDISC"
	case MCAPA:
		name = "MCAPA"
	case MCOK:
		name = "MCOK"
	case MCAPI:
		name = "MCAPI"
	default:
		name = "MC?"
	}
	return fmt.Sprintf("%s/%x", name, c.Payload())
}

// ctrlFrame builds the 3-byte control frame {dest, ctrl, from}.
func ctrlFrame(dest byte, ctrl Ctrl, from byte) []byte {
	return []byte{dest, byte(ctrl), from}
}
