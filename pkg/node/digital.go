package node

import (
	"context"

	"github.com/golang/glog"

	"github.com/fieldtalks/rsbus.go/pkg/bus"
)

// NumDigitalInputs and NumDigitalOutputs are the channel counts of the
// input and output node roles. 56 channels pack into 7 payload bytes.
const (
	NumDigitalInputs  = 56
	NumDigitalOutputs = 56
)

// DigitalInputBank supplies debounced input states. Index order matches
// the wire bit order.
type DigitalInputBank interface {
	InputStates() []bool
}

// DigitalOutputBank drives and reports output channels.
type DigitalOutputBank interface {
	SetOutputs(states []bool) error
	OutputStates() []bool
}

// PackStates packs channel states into bytes, LSB-first: channel 0 is
// bit 0 of byte 0.
func PackStates(states []bool) []byte {
	b := make([]byte, (len(states)+7)/8)
	for i, on := range states {
		if on {
			b[i/8] |= 1 << uint(i%8)
		}
	}
	return b
}

// UnpackStates expands up to n channel states from packed bytes.
func UnpackStates(data []byte, n int) []bool {
	states := make([]bool, n)
	for i := range states {
		if i/8 < len(data) {
			states[i] = data[i/8]&(1<<uint(i%8)) != 0
		}
	}
	return states
}

// UseDigitalInputs attaches the digital-input role: CmdReadInputs
// answers with the packed input states.
func (n *Node) UseDigitalInputs(bank DigitalInputBank) {
	n.proto.Register(bus.CmdReadInputs, bus.HandleCommandFunc(
		func(ctx context.Context, pkt *bus.Packet) {
			n.reply(pkt, bus.CmdInputsResponse, PackStates(bank.InputStates()))
		}))
}

// UseDigitalOutputs attaches the digital-output role: CmdWriteOutputs
// applies packed states and acknowledges with an empty CmdOutputsResponse,
// CmdReadOutputs reports the current states.
func (n *Node) UseDigitalOutputs(bank DigitalOutputBank) {
	n.proto.Register(bus.CmdWriteOutputs, bus.HandleCommandFunc(
		func(ctx context.Context, pkt *bus.Packet) {
			states := UnpackStates(pkt.Payload, NumDigitalOutputs)
			if err := bank.SetOutputs(states); err != nil {
				glog.Warningf("output write failed: %v", err)
				n.proto.Status().CountError()
				if serr := n.proto.SendError(pkt.Src, bus.ErrCodeBusy); serr != nil {
					glog.Warningf("error response failed: %v", serr)
				}
				return
			}
			n.reply(pkt, bus.CmdOutputsResponse, nil)
		}))
	n.proto.Register(bus.CmdReadOutputs, bus.HandleCommandFunc(
		func(ctx context.Context, pkt *bus.Packet) {
			n.reply(pkt, bus.CmdOutputsResponse, PackStates(bank.OutputStates()))
		}))
}
