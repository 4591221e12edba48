package master

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/fieldtalks/rsbus.go/pkg/bus"
	"github.com/fieldtalks/rsbus.go/pkg/node"
)

// DefaultTimeout bounds the wait for a node's reply.
const DefaultTimeout = time.Second

// ErrTimeout indicates the polled node did not answer in time.
var ErrTimeout = errors.New("no reply from node")

// Config carries client construction parameters.
type Config struct {
	// Address is the master's own bus address. Defaults to
	// bus.AddrMaster.
	Address byte
	// Timeout overrides DefaultTimeout when non-zero.
	Timeout time.Duration
}

// Client is the master side of the bus.
type Client struct {
	line    bus.Line
	addr    byte
	timeout time.Duration
	status  *bus.Status

	lock   sync.Mutex
	framer bus.Framer
}

// New creates a client on a line.
func New(line bus.Line, conf Config) *Client {
	addr := conf.Address
	if addr == 0 {
		addr = bus.AddrMaster
	}
	timeout := conf.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		line:    line,
		addr:    addr,
		timeout: timeout,
		status:  bus.NewStatus(addr, nil),
	}
}

// Status exposes the master's own link counters.
func (c *Client) Status() *bus.Status {
	return c.status
}

// Do sends a request and waits for the reply from dest. A broadcast
// request expects no reply and returns nil immediately after sending.
// A CmdErrorResponse reply surfaces as *bus.RemoteError.
func (c *Client) Do(ctx context.Context, dest byte, cmd bus.Command, payload []byte) (*bus.Packet, error) {
	if len(payload) > bus.MaxPayload {
		return nil, bus.ErrPayloadSize
	}
	c.lock.Lock()
	defer c.lock.Unlock()

	req := &bus.Packet{Dest: dest, Src: c.addr, Command: cmd, Payload: payload}
	if err := c.transmit(req); err != nil {
		c.status.CountError()
		return nil, err
	}
	c.status.CountTx()
	if dest == bus.AddrBroadcast {
		return nil, nil
	}
	return c.await(ctx, dest)
}

func (c *Client) transmit(req *bus.Packet) error {
	err := c.line.EnableTransmit()
	if err == nil {
		_, err = req.WriteTo(c.line)
	}
	if rerr := c.line.EnableReceive(); err == nil {
		err = rerr
	}
	return err
}

func (c *Client) await(ctx context.Context, dest byte) (*bus.Packet, error) {
	c.framer.Reset()
	deadline := time.Now().Add(c.timeout)
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		n, err := c.line.Read(buf)
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return nil, err
		}
		if n == 0 {
			continue
		}
		fr := c.framer.Feed(buf[0])
		if fr.Err != nil {
			glog.V(1).Infof("rx frame discarded: %v", fr.Err)
			c.status.CountError()
			continue
		}
		if fr.Packet == nil {
			continue
		}
		pkt := fr.Packet
		if pkt.Dest != c.addr && pkt.Dest != bus.AddrBroadcast {
			continue
		}
		if pkt.Src != dest {
			glog.V(1).Infof("ignoring frame from 0x%02X while polling 0x%02X", pkt.Src, dest)
			continue
		}
		c.status.CountRx()
		if pkt.Command == bus.CmdErrorResponse && len(pkt.Payload) >= 2 {
			return nil, &bus.RemoteError{Code: bus.ErrorCode(pkt.Payload[0]), Addr: pkt.Payload[1]}
		}
		return pkt, nil
	}
}

// expect unwraps a reply and checks the response command code.
func expect(pkt *bus.Packet, want bus.Command) (*bus.Packet, error) {
	if pkt.Command != want {
		return nil, errors.New("unexpected response command")
	}
	return pkt, nil
}

// Ping checks a node is alive.
func (c *Client) Ping(ctx context.Context, dest byte) error {
	pkt, err := c.Do(ctx, dest, bus.CmdPing, nil)
	if err != nil {
		return err
	}
	_, err = expect(pkt, bus.CmdPingResponse)
	return err
}

// Version reads a node's firmware version.
func (c *Client) Version(ctx context.Context, dest byte) (bus.Version, error) {
	pkt, err := c.Do(ctx, dest, bus.CmdGetVersion, nil)
	if err != nil {
		return bus.Version{}, err
	}
	if pkt, err = expect(pkt, bus.CmdVersionResponse); err != nil {
		return bus.Version{}, err
	}
	v, _, err := bus.ParseVersion(pkt.Payload)
	return v, err
}

// Heartbeat queries a node's health score.
func (c *Client) Heartbeat(ctx context.Context, dest byte) (bus.Heartbeat, error) {
	pkt, err := c.Do(ctx, dest, bus.CmdHeartbeat, nil)
	if err != nil {
		return bus.Heartbeat{}, err
	}
	if pkt, err = expect(pkt, bus.CmdHeartbeatResponse); err != nil {
		return bus.Heartbeat{}, err
	}
	return bus.ParseHeartbeat(pkt.Payload)
}

// NodeStatus reads a node's link status record.
func (c *Client) NodeStatus(ctx context.Context, dest byte) (bus.StatusSnapshot, error) {
	pkt, err := c.Do(ctx, dest, bus.CmdGetStatus, nil)
	if err != nil {
		return bus.StatusSnapshot{}, err
	}
	if pkt, err = expect(pkt, bus.CmdStatusResponse); err != nil {
		return bus.StatusSnapshot{}, err
	}
	return bus.ParseStatus(pkt.Payload)
}

// ReadInputs reads the packed digital input states of an input node.
func (c *Client) ReadInputs(ctx context.Context, dest byte) ([]byte, error) {
	pkt, err := c.Do(ctx, dest, bus.CmdReadInputs, nil)
	if err != nil {
		return nil, err
	}
	if pkt, err = expect(pkt, bus.CmdInputsResponse); err != nil {
		return nil, err
	}
	return pkt.Payload, nil
}

// WriteOutputs applies packed output states on an output node.
func (c *Client) WriteOutputs(ctx context.Context, dest byte, packed []byte) error {
	pkt, err := c.Do(ctx, dest, bus.CmdWriteOutputs, packed)
	if err != nil {
		return err
	}
	_, err = expect(pkt, bus.CmdOutputsResponse)
	return err
}

// ReadOutputs reads back the packed output states of an output node.
func (c *Client) ReadOutputs(ctx context.Context, dest byte) ([]byte, error) {
	pkt, err := c.Do(ctx, dest, bus.CmdReadOutputs, nil)
	if err != nil {
		return nil, err
	}
	if pkt, err = expect(pkt, bus.CmdOutputsResponse); err != nil {
		return nil, err
	}
	return pkt.Payload, nil
}

func (c *Client) readFloats(ctx context.Context, dest byte, cmd, want bus.Command) ([]float32, error) {
	pkt, err := c.Do(ctx, dest, cmd, nil)
	if err != nil {
		return nil, err
	}
	if pkt, err = expect(pkt, want); err != nil {
		return nil, err
	}
	return node.DecodeFloats(pkt.Payload), nil
}

// ReadCurrents reads the 4-20mA loop readings in mA.
func (c *Client) ReadCurrents(ctx context.Context, dest byte) ([]float32, error) {
	return c.readFloats(ctx, dest, bus.CmdReadCurrents, bus.CmdCurrentsResponse)
}

// ReadVoltages reads the voltage channel readings in V.
func (c *Client) ReadVoltages(ctx context.Context, dest byte) ([]float32, error) {
	return c.readFloats(ctx, dest, bus.CmdReadVoltages, bus.CmdVoltagesResponse)
}

// ReadTemperatures reads the NTC channel readings in degrees C.
func (c *Client) ReadTemperatures(ctx context.Context, dest byte) ([]float32, error) {
	return c.readFloats(ctx, dest, bus.CmdReadNTC, bus.CmdNTCResponse)
}

// ReadAllAnalog reads every analog channel: currents, then voltages,
// then temperatures.
func (c *Client) ReadAllAnalog(ctx context.Context, dest byte) ([]float32, error) {
	return c.readFloats(ctx, dest, bus.CmdReadAllAnalog, bus.CmdAllAnalogResponse)
}

// Scan pings the given addresses and returns the ones that answered.
func (c *Client) Scan(ctx context.Context, addrs ...byte) []byte {
	var found []byte
	for _, addr := range addrs {
		if err := c.Ping(ctx, addr); err == nil {
			found = append(found, addr)
		} else if err == ctx.Err() {
			break
		}
	}
	return found
}
