package link

import "sync"

// State is the controller's global state.
type State byte

const (
	// StateIdle waits for an initial call or a queued command.
	StateIdle State = iota
	// StateReceivingInitialCall runs the inbound call sub-machine.
	StateReceivingInitialCall
	// StateBusy executes a queued command.
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceivingInitialCall:
		return "receiving initial call"
	case StateBusy:
		return "busy"
	}
	return "unknown"
}

// ErrKind classifies link errors surfaced to the host.
type ErrKind byte

const (
	NoError ErrKind = iota
	// ErrTimeout means no expected event within its bounded window.
	ErrTimeout
	// ErrShortFrame means a frame arrived shorter than its declared
	// length.
	ErrShortFrame
	// ErrBadCRC means the frame check sequence did not match.
	ErrBadCRC
	// ErrProtocol means an unexpected control word from the addressed
	// peer.
	ErrProtocol
)

func (k ErrKind) String() string {
	switch k {
	case NoError:
		return "no error"
	case ErrTimeout:
		return "timeout"
	case ErrShortFrame:
		return "short frame"
	case ErrBadCRC:
		return "bad crc"
	case ErrProtocol:
		return "protocol"
	}
	return "unknown"
}

// Event bits observable by the host on its next status read.
type Event byte

const (
	// EvtSelected is raised when an initial call completed and a
	// consigne is available.
	EvtSelected Event = 1 << iota
	// EvtCmdDone is raised when a queued command completed.
	EvtCmdDone
	// EvtError is raised when an error was absorbed.
	EvtError
)

// Status is the snapshot surfaced to the host boundary.
type Status struct {
	State   State
	Error   ErrKind
	Event   Event
	Message string

	// Peer and Consigne describe the last received consigne.
	Peer     byte
	Consigne *Consigne

	// Data is the last block received from a peer.
	Data []byte
}

// board guards the host-visible snapshots. Every error absorption and
// completion lands here; the host polls it and never sees a hang.
type board struct {
	mu  sync.Mutex
	cur Status
}

func (b *board) setState(s State) {
	b.mu.Lock()
	b.cur.State = s
	b.mu.Unlock()
}

func (b *board) raise(evt Event) {
	b.mu.Lock()
	b.cur.Event |= evt
	b.mu.Unlock()
}

func (b *board) fail(kind ErrKind, msg string) {
	b.mu.Lock()
	b.cur.Error = kind
	b.cur.Message = msg
	b.cur.Event |= EvtError
	b.mu.Unlock()
}

func (b *board) clearError() {
	b.mu.Lock()
	b.cur.Error = NoError
	b.cur.Message = ""
	b.mu.Unlock()
}

func (b *board) setConsigne(peer byte, c *Consigne) {
	b.mu.Lock()
	b.cur.Peer = peer
	b.cur.Consigne = c
	b.mu.Unlock()
}

func (b *board) setData(data []byte) {
	b.mu.Lock()
	b.cur.Data = data
	b.mu.Unlock()
}

func (b *board) takeData() []byte {
	b.mu.Lock()
	data := b.cur.Data
	b.cur.Data = nil
	b.mu.Unlock()
	return data
}

// snapshot returns the current status. When consume is set the event
// bits are cleared, read-and-clear being the contract of a status poll.
func (b *board) snapshot(consume bool) Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.cur
	if consume {
		b.cur.Event = 0
	}
	return st
}
