package link

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/retronet/nanobridge/pkg/wire"
)

const stationAddr = 0x11

// station is a scripted peer on the other end of the loopback wire.
type station struct {
	t    *testing.T
	addr byte
	drv  *wire.LoopbackEnd
	rx   *wire.Receiver
	tx   *wire.Transmitter
	clk  *wire.Clock
	buf  []byte
}

func newStation(t *testing.T, drv *wire.LoopbackEnd, addr byte) *station {
	return &station{
		t:    t,
		addr: addr,
		drv:  drv,
		rx:   wire.NewReceiver(drv),
		tx:   wire.NewTransmitter(drv),
		clk:  wire.NewClock(drv),
		buf:  make([]byte, 256),
	}
}

func (s *station) sendCtrl(ctrl Ctrl) {
	require.NoError(s.t, s.tx.Send([]byte{0x00, byte(ctrl), s.addr}))
}

func (s *station) sendData(payload ...byte) {
	frame := append([]byte{0x00, byte(CtrlData), s.addr}, payload...)
	require.NoError(s.t, s.tx.Send(frame))
}

// call places an initial call and waits for the master's echo pulse,
// retrying like a real station would.
func (s *station) call(units byte) {
	s.t.Helper()
	for attempt := 0; attempt < 10; attempt++ {
		s.sendCtrl(MCAPI.WithPayload(units))
		if s.clk.WaitForEcho(context.Background(), 10*time.Millisecond) == nil {
			return
		}
	}
	s.t.Fatal("master never echoed the initial call")
}

// expectFrame waits for the next frame from the master.
func (s *station) expectFrame() []byte {
	s.t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		n, st := s.rx.Receive(s.addr, s.buf, 100*time.Millisecond)
		switch st {
		case wire.StatusBusy:
			require.True(s.t, time.Now().Before(deadline), "no frame from master")
			time.Sleep(10 * time.Microsecond)
		case wire.StatusDone:
			out := make([]byte, n)
			copy(out, s.buf[:n])
			return out
		default:
			s.t.Fatalf("unexpected rx status: %v", st)
		}
	}
}

// pulseClock echoes the master's call the way a peer computer does.
func (s *station) pulseClock() {
	s.tx.SetClock(true)
	time.Sleep(300 * time.Microsecond)
	s.tx.SetClock(false)
}

func (s *station) writeRaw(bits []bool) {
	s.t.Helper()
	for _, bit := range bits {
		require.NoError(s.t, s.drv.WriteBit(bit))
	}
}

func startController(t *testing.T) (*Controller, *station) {
	a, b := wire.NewLoopback()
	ctrl := NewController(a, Config{Address: 0})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctrl, newStation(t, b, stationAddr)
}

func waitEvent(t *testing.T, ctrl *Controller, evt Event) Status {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		st := ctrl.Status()
		if st.Event&evt != 0 {
			return st
		}
		require.Truef(t, time.Now().Before(deadline), "event %03b never raised", evt)
		time.Sleep(50 * time.Microsecond)
	}
}

// selectPeer drives the initial-call handshake to completion: call,
// echo, consigne, take-charge, queueing notice.
func selectPeer(t *testing.T, ctrl *Controller, peer *station, msgNum byte, consigne ...byte) {
	t.Helper()
	peer.call(byte((len(consigne) + 3) / 4))
	peer.sendData(consigne...)
	f := peer.expectFrame()
	require.Equal(t, []byte{byte(MCPCH), 0x00}, f, "take-charge with a zero message number")
	peer.sendCtrl(MCAMA.WithPayload(msgNum))
	waitEvent(t, ctrl, EvtSelected)
	require.True(t, ctrl.Peer(peer.addr).Waiting)
}

func TestInitialCall(t *testing.T) {
	ctrl, peer := startController(t)

	selectPeer(t, ctrl, peer, 0, 0xDE, 0xAD, 0xBE, 0xEF)

	st := ctrl.ConsumeStatus()
	require.Equal(t, StateIdle, st.State)
	require.NotZero(t, st.Event&EvtSelected)
	require.Equal(t, byte(stationAddr), st.Peer)
	require.NotNil(t, st.Consigne)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, st.Consigne.Wire(),
		"the consigne buffer exposes exactly the received bytes")
	require.Equal(t, Peer{Waiting: true, MsgNum: 0}, ctrl.Peer(stationAddr))

	// a status poll consumes the event bits
	require.Zero(t, ctrl.Status().Event)
}

func TestInitialCallBadCRC(t *testing.T) {
	ctrl, peer := startController(t)

	peer.call(1)
	raw := wire.EncodeFrame([]byte{0x00, byte(CtrlData), stationAddr, 1, 2, 3, 4})
	raw[len(raw)-1] ^= 0x01
	peer.writeRaw(wire.FrameBits(raw))

	st := waitEvent(t, ctrl, EvtError)
	require.Equal(t, ErrBadCRC, st.Error)
	require.Zero(t, st.Event&EvtSelected)
	require.False(t, ctrl.Peer(stationAddr).Waiting)
}

func TestInitialCallShortFrame(t *testing.T) {
	ctrl, peer := startController(t)

	// four units announced, four bytes delivered
	peer.call(4)
	peer.sendData(1, 2, 3, 4)

	st := waitEvent(t, ctrl, EvtError)
	require.Equal(t, ErrShortFrame, st.Error)
	require.False(t, ctrl.Peer(stationAddr).Waiting)
}

func TestAddressMismatchInvisible(t *testing.T) {
	ctrl, peer := startController(t)

	// a frame for station 0x22 must not surface anything
	require.NoError(t, peer.tx.Send([]byte{0x22, 0xF1, 0x33}))
	time.Sleep(5 * time.Millisecond)
	st := ctrl.Status()
	require.Zero(t, st.Event)
	require.Equal(t, StateIdle, st.State)

	// and the receiver is rearmed for the next frame
	selectPeer(t, ctrl, peer, 0, 1, 2, 3, 4)
}

func TestAbortDuringFrameIsSilent(t *testing.T) {
	ctrl, peer := startController(t)

	// open a frame addressed to the master, then abort it
	bits := []bool{false, true, true, true, true, true, true, false} // flag
	bits = append(bits, make([]bool, 8)...)                          // address 0x00
	bits = append(bits, true, false, false, false, true, true, true, true) // 0xF1
	for i := 0; i < 8; i++ {
		bits = append(bits, true) // abort
	}
	peer.writeRaw(bits)
	time.Sleep(5 * time.Millisecond)
	require.Zero(t, ctrl.Status().Event, "aborts stay invisible to the host")

	selectPeer(t, ctrl, peer, 0, 1, 2, 3, 4)
}

func TestDisconnect(t *testing.T) {
	ctrl, peer := startController(t)
	selectPeer(t, ctrl, peer, 5, 1, 2, 3, 4)
	ctrl.ConsumeStatus()

	require.NoError(t, ctrl.Mailbox().Post(DisconnectReq{Target: stationAddr}))
	f := peer.expectFrame()
	require.Equal(t, []byte{byte(MCDISC.WithPayload(5)), 0x00}, f)
	peer.sendCtrl(MCUA.WithPayload(5))

	st := waitEvent(t, ctrl, EvtCmdDone)
	require.Equal(t, NoError, st.Error)
	require.False(t, ctrl.Peer(stationAddr).Waiting)
	require.Eventually(t, func() bool { return !ctrl.Mailbox().Pending() }, time.Second, time.Millisecond)
}

func TestDisconnectTimeoutClearsSession(t *testing.T) {
	ctrl, peer := startController(t)
	selectPeer(t, ctrl, peer, 0, 1, 2, 3, 4)
	ctrl.ConsumeStatus()

	require.NoError(t, ctrl.Mailbox().Post(DisconnectReq{Target: stationAddr}))
	peer.expectFrame() // swallow MCDISC, never answer

	st := waitEvent(t, ctrl, EvtError)
	require.Equal(t, ErrTimeout, st.Error)
	require.False(t, ctrl.Peer(stationAddr).Waiting,
		"the session clears even when the handshake times out")
}

func TestTakeChargeTimeout(t *testing.T) {
	ctrl, peer := startController(t)

	peer.call(1)
	peer.sendData(1, 2, 3, 4)
	peer.expectFrame() // swallow MCPCH, never send the queueing notice

	st := waitEvent(t, ctrl, EvtError)
	require.Equal(t, ErrTimeout, st.Error)
	require.Equal(t, "MCAMA rx timeout", st.Message)
	require.Equal(t, StateIdle, ctrl.Status().State)
	require.False(t, ctrl.Peer(stationAddr).Waiting)
}

func TestUnexpectedControlWord(t *testing.T) {
	ctrl, peer := startController(t)

	peer.sendCtrl(MCVR.WithPayload(0))
	st := waitEvent(t, ctrl, EvtError)
	require.Equal(t, ErrProtocol, st.Error)
}

func TestSendConsigne(t *testing.T) {
	ctrl, peer := startController(t)

	cons, err := Compose(stationAddr, Header{TaskCode: 1, AppTaskCode: 2}, []byte{9, 8, 7})
	require.NoError(t, err)
	require.NoError(t, ctrl.Mailbox().Post(SendConsigneReq{Consigne: cons}))

	f := peer.expectFrame()
	require.Equal(t, []byte{byte(MCAPI.WithPayload(cons.Units())), 0x00}, f,
		"no session open, the transfer opens with an initial call")
	peer.pulseClock()

	f = peer.expectFrame()
	require.Equal(t, byte(CtrlData), f[0])
	require.Equal(t, byte(0x00), f[1])
	require.Equal(t, cons.Wire(), f[2:])
	peer.sendCtrl(MCPCH.WithPayload(1))

	waitEvent(t, ctrl, EvtCmdDone)
	require.Equal(t, Peer{Waiting: true, MsgNum: 1}, ctrl.Peer(stationAddr))
	require.Eventually(t, func() bool { return !ctrl.Mailbox().Pending() }, time.Second, time.Millisecond)
}

func TestSendConsigneUnderWaiting(t *testing.T) {
	ctrl, peer := startController(t)
	selectPeer(t, ctrl, peer, 3, 1, 2, 3, 4)
	ctrl.ConsumeStatus()

	cons, err := Compose(stationAddr, Header{TaskCode: 7}, nil)
	require.NoError(t, err)
	require.NoError(t, ctrl.Mailbox().Post(SendConsigneReq{Consigne: cons}))

	f := peer.expectFrame()
	require.Equal(t, []byte{byte(MCAPA.WithPayload(3)), 0x00}, f,
		"an open session calls under the existing queue")
	peer.pulseClock()

	f = peer.expectFrame()
	require.Equal(t, cons.Wire(), f[2:])
	peer.sendCtrl(MCOK.WithPayload(4))

	waitEvent(t, ctrl, EvtCmdDone)
	require.Equal(t, uint8(4), ctrl.Peer(stationAddr).MsgNum)
}

func TestSendData(t *testing.T) {
	ctrl, peer := startController(t)
	selectPeer(t, ctrl, peer, 2, 1, 2, 3, 4)
	ctrl.ConsumeStatus()

	data := []byte{0x10, 0x20, 0x30, 0x40, 0x50}
	require.NoError(t, ctrl.Mailbox().Post(SendDataReq{Target: stationAddr, Data: data}))

	f := peer.expectFrame()
	require.Equal(t, []byte{byte(MCVR.WithPayload(2)), 0x00}, f)
	peer.pulseClock()

	f = peer.expectFrame()
	require.Equal(t, byte(CtrlData), f[0])
	require.Equal(t, data, f[2:])
	peer.sendCtrl(MCOK.WithPayload(3))

	waitEvent(t, ctrl, EvtCmdDone)
	require.Equal(t, uint8(3), ctrl.Peer(stationAddr).MsgNum)
}

func TestSendConsigneNoEchoTimesOut(t *testing.T) {
	ctrl, _ := startController(t)

	cons, err := Compose(stationAddr, Header{TaskCode: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, ctrl.Mailbox().Post(SendConsigneReq{Consigne: cons}))

	// never echo: the transfer must exhaust its retries and fail
	st := waitEvent(t, ctrl, EvtError)
	require.Equal(t, ErrTimeout, st.Error)
	require.Eventually(t, func() bool { return !ctrl.Mailbox().Pending() }, time.Second, time.Millisecond)
	require.False(t, ctrl.Peer(stationAddr).Waiting)
}
