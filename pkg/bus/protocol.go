package bus

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// DefaultSettleDelay is how long the transceiver is given to switch
// direction before and after a transmit burst.
const DefaultSettleDelay = time.Millisecond

// Handler processes a validated packet addressed to this node. The
// handler builds the reply payload and sends it through the same
// Protocol, with the request's source as destination.
type Handler interface {
	HandleCommand(context.Context, *Packet)
}

// HandleCommandFunc is the func form of Handler.
type HandleCommandFunc func(context.Context, *Packet)

// HandleCommand implements Handler.
func (f HandleCommandFunc) HandleCommand(ctx context.Context, p *Packet) {
	f(ctx, p)
}

// Config carries the tunables of a Protocol instance.
type Config struct {
	// Address is the node's own immutable bus address.
	Address byte
	// SettleDelay overrides DefaultSettleDelay when non-zero.
	SettleDelay time.Duration
	// FrameTimeout overrides the framer's inter-byte timeout.
	FrameTimeout time.Duration
	// HealthPolicy feeds the heartbeat/status health score. Nil
	// keeps it at 100.
	HealthPolicy HealthPolicy
}

// Protocol is one node's protocol engine: framer state, command
// registry, link counters and the transmit path. All of that state is
// owned here rather than in package globals, so multiple instances can
// share a process.
//
// Two execution contexts touch a Protocol: the receive path (Run, or
// Receive called from a driver callback) and whoever calls Send. The
// transmit-in-progress flag is the only synchronization between them;
// while it is set the receive path drops bytes, which is what discards
// the node's own transmitted bytes echoed back by the transceiver.
type Protocol struct {
	addr   byte
	line   Line
	settle time.Duration
	sleep  func(time.Duration)

	framer Framer
	status *Status

	handlersLock sync.RWMutex
	handlers     map[Command]Handler

	txBusy int32
}

// New creates a Protocol on a Line.
func New(line Line, conf Config) *Protocol {
	settle := conf.SettleDelay
	if settle == 0 {
		settle = DefaultSettleDelay
	}
	p := &Protocol{
		addr:     conf.Address,
		line:     line,
		settle:   settle,
		sleep:    time.Sleep,
		status:   NewStatus(conf.Address, conf.HealthPolicy),
		handlers: make(map[Command]Handler),
	}
	p.framer.Timeout = conf.FrameTimeout
	return p
}

// Address returns the node's own bus address.
func (p *Protocol) Address() byte {
	return p.addr
}

// Status exposes the link counters.
func (p *Protocol) Status() *Status {
	return p.status
}

// Register binds a handler to a command code, replacing any previous
// binding. Registration is additive and normally happens once at
// startup; there is no unregistration.
func (p *Protocol) Register(cmd Command, h Handler) {
	p.handlersLock.Lock()
	p.handlers[cmd] = h
	p.handlersLock.Unlock()
}

// Receive consumes one byte from the line. It is the receive-callback
// entry point: it never blocks on I/O beyond an optional outbound error
// packet, and it bails immediately while a transmit is in progress.
func (p *Protocol) Receive(ctx context.Context, b byte) {
	if atomic.LoadInt32(&p.txBusy) != 0 {
		return
	}
	fr := p.framer.Feed(b)
	if fr.Err != nil {
		p.status.CountError()
		if fr.Err == ErrChecksum && fr.Packet != nil {
			glog.V(1).Infof("rx checksum mismatch from 0x%02X", fr.Packet.Src)
			if err := p.SendError(fr.Packet.Src, ErrCodeChecksum); err != nil {
				glog.Warningf("error response failed: %v", err)
			}
		} else {
			glog.V(1).Infof("rx frame discarded: %v", fr.Err)
		}
		return
	}
	if fr.Packet == nil {
		return
	}
	pkt := fr.Packet
	if pkt.Dest != p.addr && pkt.Dest != AddrBroadcast {
		// Another node's traffic, not an error.
		return
	}
	p.status.CountRx()
	p.dispatch(ctx, pkt)
}

// Run drives Receive from the Line until the context is canceled. It
// implements framework.Runnable and stands in for the receive interrupt
// of the bare-metal original.
func (p *Protocol) Run(ctx context.Context) error {
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := p.line.Read(buf)
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return err
		}
		if n == 0 {
			// Serial read timeout, line idle.
			continue
		}
		p.Receive(ctx, buf[0])
	}
}

func (p *Protocol) dispatch(ctx context.Context, pkt *Packet) {
	p.handlersLock.RLock()
	h := p.handlers[pkt.Command]
	p.handlersLock.RUnlock()
	if h == nil {
		glog.Warningf("no handler for command 0x%02X from 0x%02X", byte(pkt.Command), pkt.Src)
		if err := p.SendError(pkt.Src, ErrCodeCommand); err != nil {
			glog.Warningf("error response failed: %v", err)
		}
		return
	}
	glog.V(2).Infof("rx dest=0x%02X src=0x%02X cmd=0x%02X len=%d",
		pkt.Dest, pkt.Src, byte(pkt.Command), len(pkt.Payload))
	h.HandleCommand(ctx, pkt)
}

// Send transmits one frame. It is the single critical section of the
// engine: it marks the transmit flag so the receive path drops the echo,
// switches the line driver with a settling delay on both edges, and
// blocks until the burst is written. A failure is counted and returned,
// never fatal.
func (p *Protocol) Send(dest byte, cmd Command, payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrPayloadSize
	}
	pkt := &Packet{Dest: dest, Src: p.addr, Command: cmd, Payload: payload}
	frame := pkt.Bytes()

	if !atomic.CompareAndSwapInt32(&p.txBusy, 0, 1) {
		return ErrBusy
	}
	defer atomic.StoreInt32(&p.txBusy, 0)

	err := p.line.EnableTransmit()
	if err == nil {
		p.sleep(p.settle)
		_, err = p.line.Write(frame)
		p.sleep(p.settle)
	}
	if rerr := p.line.EnableReceive(); err == nil {
		err = rerr
	}
	if err != nil {
		p.status.CountError()
		glog.Errorf("tx failed: dest=0x%02X cmd=0x%02X: %v", dest, byte(cmd), err)
		return err
	}
	p.status.CountTx()
	glog.V(2).Infof("tx dest=0x%02X cmd=0x%02X len=%d", dest, byte(cmd), len(payload))
	return nil
}

// SendError answers a request with CmdErrorResponse carrying the fault
// code and this node's address.
func (p *Protocol) SendError(dest byte, code ErrorCode) error {
	return p.Send(dest, CmdErrorResponse, []byte{byte(code), p.addr})
}
