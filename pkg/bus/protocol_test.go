package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testLine records transmit bursts and direction switches.
type testLine struct {
	lock      sync.Mutex
	wrote     []byte
	txSwitch  int
	rxSwitch  int
	writeErr  error
	direction bool
}

func (l *testLine) Read(p []byte) (int, error) { return 0, nil }

func (l *testLine) Write(p []byte) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.writeErr != nil {
		return 0, l.writeErr
	}
	l.wrote = append(l.wrote, p...)
	return len(p), nil
}

func (l *testLine) EnableTransmit() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.txSwitch++
	l.direction = true
	return nil
}

func (l *testLine) EnableReceive() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.rxSwitch++
	l.direction = false
	return nil
}

func (l *testLine) sent() []byte {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]byte(nil), l.wrote...)
}

// parseSent decodes every frame the node wrote.
func parseSent(t *testing.T, data []byte) []*Packet {
	var f Framer
	var pkts []*Packet
	for _, b := range data {
		fr := f.Feed(b)
		require.NoError(t, fr.Err)
		if fr.Packet != nil {
			pkts = append(pkts, fr.Packet)
		}
	}
	return pkts
}

func feedProtocol(p *Protocol, data []byte) {
	for _, b := range data {
		p.Receive(context.Background(), b)
	}
}

func newTestProtocol(addr byte) (*Protocol, *testLine) {
	line := &testLine{}
	p := New(line, Config{Address: addr})
	p.sleep = func(time.Duration) {}
	return p, line
}

func TestSendFrameOnWire(t *testing.T) {
	p, line := newTestProtocol(AddrNodeInput)
	require.NoError(t, p.Send(AddrMaster, CmdPingResponse, nil))

	want := (&Packet{Dest: AddrMaster, Src: AddrNodeInput, Command: CmdPingResponse}).Bytes()
	require.Equal(t, want, line.sent())
	require.Equal(t, 1, line.txSwitch)
	require.Equal(t, 1, line.rxSwitch)
	require.False(t, line.direction, "line must end up in receive mode")
	require.Equal(t, uint32(1), p.Status().Snapshot().Tx)
}

func TestSendPayloadTooLarge(t *testing.T) {
	p, line := newTestProtocol(AddrNodeInput)
	err := p.Send(AddrMaster, CmdInputsResponse, make([]byte, MaxPayload+1))
	require.Equal(t, ErrPayloadSize, err)
	require.Empty(t, line.sent())
}

func TestSendBusy(t *testing.T) {
	p, _ := newTestProtocol(AddrNodeInput)
	atomic.StoreInt32(&p.txBusy, 1)
	require.Equal(t, ErrBusy, p.Send(AddrMaster, CmdPingResponse, nil))
	atomic.StoreInt32(&p.txBusy, 0)
	require.NoError(t, p.Send(AddrMaster, CmdPingResponse, nil))
}

func TestSendFailureCounted(t *testing.T) {
	p, line := newTestProtocol(AddrNodeInput)
	line.writeErr = errWrite
	require.Error(t, p.Send(AddrMaster, CmdPingResponse, nil))
	snap := p.Status().Snapshot()
	require.Equal(t, uint32(0), snap.Tx)
	require.Equal(t, uint32(1), snap.Errors)
	// The line still has to be switched back to receive.
	require.Equal(t, 1, line.rxSwitch)
}

var errWrite = errors.New("uart write failed")

func TestDispatchRegisteredHandler(t *testing.T) {
	p, _ := newTestProtocol(AddrNodeInput)
	var got *Packet
	p.Register(CmdPing, HandleCommandFunc(func(ctx context.Context, pkt *Packet) {
		got = pkt
	}))

	req := &Packet{Dest: AddrNodeInput, Src: AddrMaster, Command: CmdPing}
	feedProtocol(p, req.Bytes())

	require.NotNil(t, got)
	require.Equal(t, AddrMaster, got.Src)
	require.Equal(t, uint32(1), p.Status().Snapshot().Rx)
}

func TestDispatchBroadcast(t *testing.T) {
	p, _ := newTestProtocol(AddrNodeInput)
	var calls int
	p.Register(CmdHeartbeat, HandleCommandFunc(func(context.Context, *Packet) { calls++ }))

	req := &Packet{Dest: AddrBroadcast, Src: AddrMaster, Command: CmdHeartbeat}
	feedProtocol(p, req.Bytes())
	require.Equal(t, 1, calls)
}

func TestDispatchUnknownCommand(t *testing.T) {
	p, line := newTestProtocol(AddrNodeInput)
	req := &Packet{Dest: AddrNodeInput, Src: AddrMaster, Command: Command(0x7E)}
	feedProtocol(p, req.Bytes())

	pkts := parseSent(t, line.sent())
	require.Len(t, pkts, 1)
	require.Equal(t, CmdErrorResponse, pkts[0].Command)
	require.Equal(t, AddrMaster, pkts[0].Dest)
	require.Equal(t, AddrNodeInput, pkts[0].Src)
	require.Equal(t, []byte{byte(ErrCodeCommand), AddrNodeInput}, pkts[0].Payload)
}

func TestAddressFilter(t *testing.T) {
	p, line := newTestProtocol(AddrNodeInput)
	var calls int
	p.Register(CmdPing, HandleCommandFunc(func(context.Context, *Packet) { calls++ }))

	req := &Packet{Dest: AddrNodeOutput, Src: AddrMaster, Command: CmdPing}
	feedProtocol(p, req.Bytes())

	require.Zero(t, calls)
	require.Empty(t, line.sent())
	snap := p.Status().Snapshot()
	require.Zero(t, snap.Rx)
	require.Zero(t, snap.Errors)
}

func TestChecksumFaultAnswered(t *testing.T) {
	p, line := newTestProtocol(AddrNodeInput)
	var calls int
	p.Register(CmdPing, HandleCommandFunc(func(context.Context, *Packet) { calls++ }))

	frame := (&Packet{Dest: AddrNodeInput, Src: AddrMaster, Command: CmdPing}).Bytes()
	frame[2] ^= 0x40 // corrupt the source address
	feedProtocol(p, frame)

	require.Zero(t, calls)
	require.Equal(t, uint32(1), p.Status().Snapshot().Errors)
	pkts := parseSent(t, line.sent())
	require.Len(t, pkts, 1)
	require.Equal(t, CmdErrorResponse, pkts[0].Command)
	require.Equal(t, []byte{byte(ErrCodeChecksum), AddrNodeInput}, pkts[0].Payload)
}

func TestBadEndByteSilentlyDiscarded(t *testing.T) {
	p, line := newTestProtocol(AddrNodeInput)
	frame := (&Packet{Dest: AddrNodeInput, Src: AddrMaster, Command: CmdPing}).Bytes()
	frame[len(frame)-1] = 0x00
	feedProtocol(p, frame)

	require.Empty(t, line.sent())
	snap := p.Status().Snapshot()
	require.Equal(t, uint32(1), snap.Errors)
	require.Zero(t, snap.Rx)
}

func TestEchoSuppressedDuringSend(t *testing.T) {
	p, _ := newTestProtocol(AddrNodeInput)
	var calls int
	p.Register(CmdPing, HandleCommandFunc(func(context.Context, *Packet) { calls++ }))

	echo := (&Packet{Dest: AddrNodeInput, Src: AddrMaster, Command: CmdPing}).Bytes()
	// The settle hook runs inside the transmit window: bytes arriving
	// there are the node's own echo and must be dropped.
	p.sleep = func(time.Duration) {
		feedProtocol(p, echo)
	}
	require.NoError(t, p.Send(AddrMaster, CmdPingResponse, nil))

	require.Zero(t, calls)
	require.Zero(t, p.Status().Snapshot().Rx)

	// After the burst the same bytes are real traffic again.
	p.sleep = func(time.Duration) {}
	feedProtocol(p, echo)
	require.Equal(t, 1, calls)
}

func TestPingScenario(t *testing.T) {
	// Node 0x02 receives PING from 0x10 and must answer PING_RESPONSE
	// with the addresses swapped.
	p, line := newTestProtocol(0x02)
	p.Register(CmdPing, HandleCommandFunc(func(ctx context.Context, pkt *Packet) {
		require.NoError(t, p.Send(pkt.Src, CmdPingResponse, nil))
	}))

	req := &Packet{Dest: 0x02, Src: 0x10, Command: CmdPing}
	feedProtocol(p, req.Bytes())

	want := (&Packet{Dest: 0x10, Src: 0x02, Command: CmdPingResponse}).Bytes()
	require.Equal(t, want, line.sent())
}
