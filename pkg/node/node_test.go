package node

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldtalks/rsbus.go/pkg/bus"
)

type recordLine struct {
	lock  sync.Mutex
	wrote []byte
}

func (l *recordLine) Read(p []byte) (int, error) { return 0, nil }

func (l *recordLine) Write(p []byte) (int, error) {
	l.lock.Lock()
	l.wrote = append(l.wrote, p...)
	l.lock.Unlock()
	return len(p), nil
}

func (l *recordLine) EnableTransmit() error { return nil }
func (l *recordLine) EnableReceive() error  { return nil }

// lastReply pops all frames written so far and returns the last one.
func (l *recordLine) lastReply(t *testing.T) *bus.Packet {
	l.lock.Lock()
	data := l.wrote
	l.wrote = nil
	l.lock.Unlock()

	var f bus.Framer
	var pkt *bus.Packet
	for _, b := range data {
		fr := f.Feed(b)
		require.NoError(t, fr.Err)
		if fr.Packet != nil {
			pkt = fr.Packet
		}
	}
	require.NotNil(t, pkt)
	return pkt
}

func newTestNode(t *testing.T, addr byte) (*Node, *recordLine) {
	line := &recordLine{}
	return New(line, Config{Address: addr}), line
}

func ask(n *Node, cmd bus.Command, payload []byte) {
	req := &bus.Packet{Dest: n.Address(), Src: bus.AddrMaster, Command: cmd, Payload: payload}
	for _, b := range req.Bytes() {
		n.Protocol().Receive(context.Background(), b)
	}
}

func TestNodePing(t *testing.T) {
	n, line := newTestNode(t, bus.AddrNodeInput)
	ask(n, bus.CmdPing, nil)
	reply := line.lastReply(t)
	require.Equal(t, bus.CmdPingResponse, reply.Command)
	require.Equal(t, bus.AddrMaster, reply.Dest)
	require.Equal(t, bus.AddrNodeInput, reply.Src)
	require.Empty(t, reply.Payload)
}

func TestNodeVersion(t *testing.T) {
	n, line := newTestNode(t, bus.AddrNodeOutput)
	ask(n, bus.CmdGetVersion, nil)
	reply := line.lastReply(t)
	require.Equal(t, bus.CmdVersionResponse, reply.Command)
	v, addr, err := bus.ParseVersion(reply.Payload)
	require.NoError(t, err)
	require.Equal(t, FirmwareVersion, v)
	require.Equal(t, bus.AddrNodeOutput, addr)
}

func TestNodeHeartbeat(t *testing.T) {
	n, line := newTestNode(t, bus.AddrNodeAnalog)
	ask(n, bus.CmdHeartbeat, nil)
	reply := line.lastReply(t)
	require.Equal(t, bus.CmdHeartbeatResponse, reply.Command)
	hb, err := bus.ParseHeartbeat(reply.Payload)
	require.NoError(t, err)
	require.Equal(t, bus.Heartbeat{Addr: bus.AddrNodeAnalog, Health: 100}, hb)
}

func TestNodeFreshStatus(t *testing.T) {
	n, line := newTestNode(t, bus.AddrNodeInput)
	ask(n, bus.CmdGetStatus, nil)
	reply := line.lastReply(t)
	require.Equal(t, bus.CmdStatusResponse, reply.Command)

	snap, err := bus.ParseStatus(reply.Payload)
	require.NoError(t, err)
	require.Equal(t, bus.AddrNodeInput, snap.Addr)
	require.Equal(t, uint8(100), snap.Health)
	require.Zero(t, snap.Errors)
	// The status request itself is the first counted packet.
	require.Equal(t, uint32(1), snap.Rx)
	require.Zero(t, snap.Tx)
}

func TestNodeDigitalInputs(t *testing.T) {
	n, line := newTestNode(t, bus.AddrNodeInput)
	inputs := NewSimInputs(NumDigitalInputs)
	n.UseDigitalInputs(inputs)

	inputs.Set(0, true)
	inputs.Set(9, true)
	inputs.Set(55, true)

	ask(n, bus.CmdReadInputs, nil)
	reply := line.lastReply(t)
	require.Equal(t, bus.CmdInputsResponse, reply.Command)
	require.Len(t, reply.Payload, 7)
	require.Equal(t, byte(0x01), reply.Payload[0])
	require.Equal(t, byte(0x02), reply.Payload[1])
	require.Equal(t, byte(0x80), reply.Payload[6])
}

func TestNodeDigitalOutputs(t *testing.T) {
	n, line := newTestNode(t, bus.AddrNodeOutput)
	outputs := NewSimOutputs(NumDigitalOutputs)
	n.UseDigitalOutputs(outputs)

	states := make([]bool, NumDigitalOutputs)
	states[3] = true
	states[42] = true
	ask(n, bus.CmdWriteOutputs, PackStates(states))
	reply := line.lastReply(t)
	require.Equal(t, bus.CmdOutputsResponse, reply.Command)
	require.Empty(t, reply.Payload)
	require.Equal(t, states, outputs.OutputStates())

	ask(n, bus.CmdReadOutputs, nil)
	reply = line.lastReply(t)
	require.Equal(t, bus.CmdOutputsResponse, reply.Command)
	require.Equal(t, PackStates(states), reply.Payload)
}

func TestNodeAnalogReads(t *testing.T) {
	n, line := newTestNode(t, bus.AddrNodeAnalog)
	analog := NewSimAnalog()
	n.UseAnalogInputs(analog)

	analog.SetCurrent(0, 4.0)
	analog.SetCurrent(25, 20.0)
	analog.SetVoltage(2, 7.5)
	analog.SetTemperature(3, 21.5)

	ask(n, bus.CmdReadCurrents, nil)
	reply := line.lastReply(t)
	require.Equal(t, bus.CmdCurrentsResponse, reply.Command)
	currents := DecodeFloats(reply.Payload)
	require.Len(t, currents, NumCurrentChannels)
	require.Equal(t, float32(4.0), currents[0])
	require.Equal(t, float32(20.0), currents[25])

	ask(n, bus.CmdReadVoltages, nil)
	reply = line.lastReply(t)
	require.Equal(t, bus.CmdVoltagesResponse, reply.Command)
	require.Equal(t, float32(7.5), DecodeFloats(reply.Payload)[2])

	ask(n, bus.CmdReadNTC, nil)
	reply = line.lastReply(t)
	require.Equal(t, bus.CmdNTCResponse, reply.Command)
	require.Equal(t, float32(21.5), DecodeFloats(reply.Payload)[3])

	ask(n, bus.CmdReadAllAnalog, nil)
	reply = line.lastReply(t)
	require.Equal(t, bus.CmdAllAnalogResponse, reply.Command)
	all := DecodeFloats(reply.Payload)
	require.Len(t, all, NumCurrentChannels+NumVoltageChannels+NumTemperatureChannels)
	require.Equal(t, float32(20.0), all[25])
	require.Equal(t, float32(7.5), all[NumCurrentChannels+2])
	require.Equal(t, float32(21.5), all[NumCurrentChannels+NumVoltageChannels+3])
}

func TestPackUnpackStates(t *testing.T) {
	states := make([]bool, 12)
	states[0], states[7], states[8], states[11] = true, true, true, true
	packed := PackStates(states)
	require.Equal(t, []byte{0x81, 0x09}, packed)
	require.Equal(t, states, UnpackStates(packed, 12))
	// Short data leaves the tail off.
	require.Equal(t, append(states[:8:8], make([]bool, 4)...), UnpackStates(packed[:1], 12))
}
