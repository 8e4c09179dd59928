package link

import "sync"

// MaxStations is the number of addressable stations on the bus.
const MaxStations = 32

// Peer is the session state kept for one station. Waiting is set when a
// take-charge was acknowledged by a queueing notice, i.e. a logical
// session is open. MsgNum is the rolling 4-bit exchange number the peer
// last acknowledged or requested.
type Peer struct {
	Waiting bool
	MsgNum  uint8
}

// peerTable holds one record per possible station address. Records
// persist across frames and are zeroed only at reset. It is shared
// between the controller and the host boundary.
type peerTable struct {
	mu    sync.Mutex
	peers [MaxStations]Peer
}

func (t *peerTable) valid(addr byte) bool {
	return int(addr) < MaxStations
}

func (t *peerTable) get(addr byte) Peer {
	if !t.valid(addr) {
		return Peer{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peers[addr]
}

func (t *peerTable) setWaiting(addr byte, waiting bool) {
	if !t.valid(addr) {
		return
	}
	t.mu.Lock()
	t.peers[addr].Waiting = waiting
	t.mu.Unlock()
}

func (t *peerTable) setMsgNum(addr byte, n uint8) {
	if !t.valid(addr) {
		return
	}
	t.mu.Lock()
	t.peers[addr].MsgNum = n & 0x0F
	t.mu.Unlock()
}

func (t *peerTable) reset() {
	t.mu.Lock()
	t.peers = [MaxStations]Peer{}
	t.mu.Unlock()
}
