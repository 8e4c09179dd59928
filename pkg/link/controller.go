package link

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/retronet/nanobridge/pkg/wire"
)

// Timeouts and retry policy of the dialogue.
const (
	// DefaultRxTimeout bounds every wait of the inbound sub-machine.
	DefaultRxTimeout = 2 * time.Millisecond
	// EchoTimeout bounds the wait for the peer's echo clock after a
	// call frame.
	EchoTimeout = 5 * time.Millisecond
	// SendRetries is how many times a full transfer is retried before
	// reporting a timeout.
	SendRetries = 5
)

// Echo pulse and inter-frame pacing. The echo values are tuned for the
// slowest peer computers on the bus.
const (
	echoLeadIn    = 50 * time.Microsecond
	echoPulse     = 300 * time.Microsecond
	preCallGap    = 110 * time.Microsecond
	clockSetup    = 50 * time.Microsecond
	clockHold     = 100 * time.Microsecond
	interFrameGap = 250 * time.Microsecond

	pollInterval = 20 * time.Microsecond
)

const maxFrame = 65535

// Config carries the constructor inputs of the controller.
type Config struct {
	// Address is the bus address. The master arbitrates at 0.
	Address byte
}

// Controller is the link-layer state machine. It is cooperative and
// single threaded: Run polls the command mailbox and, while idle,
// listens for initial calls from peers. All protocol errors are
// absorbed here and surfaced through the status snapshot, never
// returned up the stack.
type Controller struct {
	addr byte

	rx  *wire.Receiver
	tx  *wire.Transmitter
	clk *wire.Clock

	peers peerTable
	box   Mailbox
	board board

	frame []byte
}

// NewController creates a controller on drv.
func NewController(drv wire.Driver, cfg Config) *Controller {
	return &Controller{
		addr:  cfg.Address,
		rx:    wire.NewReceiver(drv),
		tx:    wire.NewTransmitter(drv),
		clk:   wire.NewClock(drv),
		frame: make([]byte, maxFrame),
	}
}

// Address is the configured bus address.
func (c *Controller) Address() byte {
	return c.addr
}

// Mailbox is where the host boundary queues requests.
func (c *Controller) Mailbox() *Mailbox {
	return &c.box
}

// Peer returns the session record of a station.
func (c *Controller) Peer(addr byte) Peer {
	return c.peers.get(addr)
}

// ResetPeers zeroes the session table, as on device reset.
func (c *Controller) ResetPeers() {
	c.peers.reset()
}

// Status returns the current snapshot without consuming event bits.
func (c *Controller) Status() Status {
	return c.board.snapshot(false)
}

// ConsumeStatus returns the current snapshot and clears the event
// bits, the contract of a host status poll.
func (c *Controller) ConsumeStatus() Status {
	return c.board.snapshot(true)
}

// TakeData hands over the last block received from a peer, clearing
// the snapshot.
func (c *Controller) TakeData() []byte {
	return c.board.takeData()
}

// Name implements bridge.Part.
func (c *Controller) Name() string {
	return "link"
}

// Run implements bridge.Part.
func (c *Controller) Run(ctx context.Context) error {
	defer c.rx.Reset()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if req, ok := c.box.Current(); ok {
			c.execute(ctx, req)
			c.box.complete()
			continue
		}
		c.pollInitialCall(ctx)
	}
}

// pollInitialCall is one WAIT_SELECT window: listen for a control
// frame addressed to us and run the inbound sub-machine when an
// initial call arrives.
func (c *Controller) pollInitialCall(ctx context.Context) {
	_, st := c.receive(ctx, DefaultRxTimeout)
	switch st {
	case wire.StatusTimeOut:
		// quiet bus
		return
	case wire.StatusBusy:
		// shutting down
		return
	case wire.StatusBadCRC:
		c.absorb(ErrBadCRC, "select rx bad crc")
		return
	case wire.StatusFrameShort:
		c.absorb(ErrShortFrame, "select rx short frame")
		return
	}
	ctrl, peer := Ctrl(c.frame[0]), c.frame[1]
	if ctrl.Command() != MCAPI {
		c.absorb(ErrProtocol, fmt.Sprintf("unexpected %s from station %02x", ctrl, peer))
		return
	}
	glog.V(2).Infof("initial call from station %02x, %d units", peer, ctrl.Payload())
	c.board.setState(StateReceivingInitialCall)
	if !c.receiveInitialCall(ctx, peer, ctrl.Payload()) {
		c.rx.Reset()
	}
	c.board.setState(StateIdle)
}

// receiveInitialCall runs GET_COMMAND and the take-charge handshake
// after an initial call from peer.
func (c *Controller) receiveInitialCall(ctx context.Context, peer, units byte) bool {
	echoCtx, cancel := context.WithTimeout(ctx, DefaultRxTimeout)
	err := c.sendEcho(echoCtx)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			c.absorb(ErrTimeout, "echo silence timeout")
		}
		return false
	}
	n, st := c.receive(ctx, DefaultRxTimeout)
	if st != wire.StatusDone {
		c.absorbStatus(st, "command rx")
		return false
	}
	ctrl, from := Ctrl(c.frame[0]), c.frame[1]
	if ctrl.Command() != CtrlData || from != peer {
		c.absorb(ErrProtocol, fmt.Sprintf("unexpected %s from station %02x", ctrl, from))
		return false
	}
	if n-2 < int(units)*4 {
		c.absorb(ErrShortFrame, "command rx short frame")
		return false
	}
	cons, err := ParseConsigne(peer, units, c.frame[2:n])
	if err != nil {
		c.absorb(ErrShortFrame, err.Error())
		return false
	}

	// take charge with a zero message number, expect the queueing notice
	if err := c.tx.Send(ctrlFrame(peer, MCPCH.WithPayload(0), c.addr)); err != nil {
		c.absorb(ErrProtocol, err.Error())
		return false
	}
	resp, from, st := c.waitCtrl(ctx, DefaultRxTimeout)
	if st != wire.StatusDone {
		c.absorbStatus(st, "MCAMA rx")
		return false
	}
	if from != peer || resp.Command() != MCAMA {
		c.absorb(ErrProtocol, fmt.Sprintf("unexpected %s from station %02x", resp, from))
		return false
	}
	c.peers.setWaiting(peer, true)
	c.peers.setMsgNum(peer, resp.Payload())
	c.board.setConsigne(peer, cons)
	c.board.raise(EvtSelected)
	glog.V(1).Infof("station %02x selected: %s", peer, cons)
	return true
}

// sendEcho pulses our clock to ring the caller's silence detector.
func (c *Controller) sendEcho(ctx context.Context) error {
	if err := c.clk.WaitForSilence(ctx); err != nil {
		return err
	}
	time.Sleep(echoLeadIn)
	c.tx.SetClock(true)
	time.Sleep(echoPulse)
	c.tx.SetClock(false)
	return nil
}

// execute runs one queued request to completion.
func (c *Controller) execute(ctx context.Context, req Request) {
	c.board.setState(StateBusy)
	c.board.clearError()
	var ok bool
	switch q := req.(type) {
	case SendConsigneReq:
		ok = c.sendConsigne(ctx, q.Consigne)
	case SendDataReq:
		ok = c.sendBlock(ctx, q.Target, q.Data)
	case ReceiveDataReq:
		ok = c.receiveBlock(ctx, q.Target)
	case DisconnectReq:
		ok = c.disconnect(ctx, q.Target)
	}
	if ok {
		c.board.raise(EvtCmdDone)
	}
	c.board.setState(StateIdle)
}

func (c *Controller) sendConsigne(ctx context.Context, cons *Consigne) bool {
	return c.transfer(ctx, cons.Dest, func(p Peer) Ctrl {
		if p.Waiting {
			return MCAPA.WithPayload(p.MsgNum)
		}
		return MCAPI.WithPayload(cons.Units())
	}, cons.Wire())
}

func (c *Controller) sendBlock(ctx context.Context, target byte, data []byte) bool {
	return c.transfer(ctx, target, func(p Peer) Ctrl {
		return MCVR.WithPayload(p.MsgNum)
	}, data)
}

// transfer runs one opening-call / echo / data / acknowledge exchange
// with the fixed retry policy: a missing echo, a missing acknowledge or
// an acknowledge from the wrong station all burn one retry.
func (c *Controller) transfer(ctx context.Context, target byte, opening func(Peer) Ctrl, body []byte) bool {
	for attempt := 0; attempt < SendRetries; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		p := c.peers.get(target)
		if err := c.clk.WaitForSilence(ctx); err != nil {
			return false
		}
		if err := c.tx.Send(ctrlFrame(target, opening(p), c.addr)); err != nil {
			glog.Errorf("call tx: %v", err)
			continue
		}
		if err := c.clk.WaitForEcho(ctx, EchoTimeout); err != nil {
			if ctx.Err() != nil {
				return false
			}
			glog.V(2).Infof("no echo from station %02x, attempt %d", target, attempt+1)
			continue
		}

		time.Sleep(preCallGap)
		c.tx.SetClock(true)
		time.Sleep(clockSetup)
		frame := make([]byte, 0, len(body)+3)
		frame = append(frame, target, byte(CtrlData), c.addr)
		frame = append(frame, body...)
		err := c.tx.Send(frame)
		time.Sleep(clockHold)
		c.tx.SetClock(false)
		if err != nil {
			glog.Errorf("data tx: %v", err)
			continue
		}
		time.Sleep(interFrameGap)

		want := MCPCH
		if p.Waiting {
			want = MCOK
		}
		resp, from, st := c.waitCtrl(ctx, DefaultRxTimeout)
		if st == wire.StatusBusy {
			return false
		}
		if st != wire.StatusDone || from != target {
			continue
		}
		if resp.Command() != want.Command() {
			c.absorb(ErrProtocol, fmt.Sprintf("unexpected %s from station %02x", resp, from))
			return false
		}
		c.peers.setWaiting(target, true)
		c.peers.setMsgNum(target, resp.Payload())
		return true
	}
	c.absorb(ErrTimeout, fmt.Sprintf("no acknowledge from station %02x", target))
	return false
}

// receiveBlock asks the peer to transmit. It is reached through the
// host GetData command; no dialogue test covers it.
func (c *Controller) receiveBlock(ctx context.Context, target byte) bool {
	p := c.peers.get(target)
	if err := c.clk.WaitForSilence(ctx); err != nil {
		return false
	}
	if err := c.tx.Send(ctrlFrame(target, MCVE.WithPayload(p.MsgNum), c.addr)); err != nil {
		c.absorb(ErrProtocol, err.Error())
		return false
	}
	n, st := c.receive(ctx, EchoTimeout)
	if st != wire.StatusDone {
		c.absorbStatus(st, "data rx")
		return false
	}
	ctrl, from := Ctrl(c.frame[0]), c.frame[1]
	if ctrl.Command() != CtrlData || from != target {
		c.absorb(ErrProtocol, fmt.Sprintf("unexpected %s from station %02x", ctrl, from))
		return false
	}
	data := make([]byte, n-2)
	copy(data, c.frame[2:n])
	c.board.setData(data)
	if err := c.tx.Send(ctrlFrame(target, MCOK.WithPayload(p.MsgNum), c.addr)); err != nil {
		c.absorb(ErrProtocol, err.Error())
		return false
	}
	return true
}

// disconnect closes the session. The session record is cleared even
// when the handshake times out.
func (c *Controller) disconnect(ctx context.Context, target byte) bool {
	p := c.peers.get(target)
	defer c.peers.setWaiting(target, false)
	if err := c.clk.WaitForSilence(ctx); err != nil {
		return false
	}
	if err := c.tx.Send(ctrlFrame(target, MCDISC.WithPayload(p.MsgNum), c.addr)); err != nil {
		c.absorb(ErrProtocol, err.Error())
		return false
	}
	resp, from, st := c.waitCtrl(ctx, DefaultRxTimeout)
	if st != wire.StatusDone {
		c.absorbStatus(st, "MCUA rx")
		return false
	}
	if from != target || resp.Command() != MCUA.Command() {
		c.absorb(ErrProtocol, fmt.Sprintf("unexpected %s from station %02x", resp, from))
		return false
	}
	glog.V(1).Infof("station %02x disconnected", target)
	return true
}

// receive drives the wire receiver to a terminal status, aborting on
// ctx cancellation with StatusBusy.
func (c *Controller) receive(ctx context.Context, timeout time.Duration) (int, wire.Status) {
	for {
		n, st := c.rx.Receive(c.addr, c.frame, timeout)
		if st != wire.StatusBusy {
			return n, st
		}
		select {
		case <-ctx.Done():
			c.rx.Reset()
			return 0, wire.StatusBusy
		default:
		}
		time.Sleep(pollInterval)
	}
}

// waitCtrl waits for one control frame addressed to us.
func (c *Controller) waitCtrl(ctx context.Context, timeout time.Duration) (Ctrl, byte, wire.Status) {
	_, st := c.receive(ctx, timeout)
	if st != wire.StatusDone {
		return 0, 0, st
	}
	return Ctrl(c.frame[0]), c.frame[1], wire.StatusDone
}

// absorb implements the error policy: reset the receive pipeline,
// record the kind and a short string, raise the error event. Nothing
// propagates past this point.
func (c *Controller) absorb(kind ErrKind, msg string) {
	glog.Warningf("link: %s: %s", kind, msg)
	c.rx.Reset()
	c.board.fail(kind, msg)
}

func (c *Controller) absorbStatus(st wire.Status, what string) {
	switch st {
	case wire.StatusBadCRC:
		c.absorb(ErrBadCRC, what+" bad crc")
	case wire.StatusFrameShort:
		c.absorb(ErrShortFrame, what+" short frame")
	case wire.StatusTimeOut:
		c.absorb(ErrTimeout, what+" timeout")
	case wire.StatusBusy:
		// canceled, not an error
	}
}
