package node

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/fieldtalks/rsbus.go/pkg/bus"
)

// Channel counts of the analog node role.
const (
	NumCurrentChannels     = 26 // 4-20mA loops
	NumVoltageChannels     = 6  // 0-10V
	NumTemperatureChannels = 4  // NTC
)

// AnalogBank supplies converted analog readings in engineering units.
// Slice lengths follow the channel counts above.
type AnalogBank interface {
	Currents() []float32     // mA
	Voltages() []float32     // V
	Temperatures() []float32 // degrees C
}

// EncodeFloats encodes readings as little-endian float32, one per
// channel, the layout of every analog response payload.
func EncodeFloats(vals []float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

// DecodeFloats decodes an analog response payload.
func DecodeFloats(data []byte) []float32 {
	vals := make([]float32, len(data)/4)
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vals
}

// UseAnalogInputs attaches the analog role: current, voltage and NTC
// reads plus the combined read, all answered as float32 sequences.
func (n *Node) UseAnalogInputs(bank AnalogBank) {
	n.proto.Register(bus.CmdReadCurrents, bus.HandleCommandFunc(
		func(ctx context.Context, pkt *bus.Packet) {
			n.reply(pkt, bus.CmdCurrentsResponse, EncodeFloats(bank.Currents()))
		}))
	n.proto.Register(bus.CmdReadVoltages, bus.HandleCommandFunc(
		func(ctx context.Context, pkt *bus.Packet) {
			n.reply(pkt, bus.CmdVoltagesResponse, EncodeFloats(bank.Voltages()))
		}))
	n.proto.Register(bus.CmdReadNTC, bus.HandleCommandFunc(
		func(ctx context.Context, pkt *bus.Packet) {
			n.reply(pkt, bus.CmdNTCResponse, EncodeFloats(bank.Temperatures()))
		}))
	n.proto.Register(bus.CmdReadAllAnalog, bus.HandleCommandFunc(
		func(ctx context.Context, pkt *bus.Packet) {
			all := make([]float32, 0, NumCurrentChannels+NumVoltageChannels+NumTemperatureChannels)
			all = append(all, bank.Currents()...)
			all = append(all, bank.Voltages()...)
			all = append(all, bank.Temperatures()...)
			n.reply(pkt, bus.CmdAllAnalogResponse, EncodeFloats(all))
		}))
}
