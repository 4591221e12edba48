package node

import (
	"context"

	"github.com/golang/glog"

	"github.com/fieldtalks/rsbus.go/pkg/bus"
)

// FirmwareVersion is reported by CmdGetVersion.
var FirmwareVersion = bus.Version{Major: 1, Minor: 1, Patch: 0, Build: 2}

// Config carries node construction parameters.
type Config struct {
	// Address is the node's bus address, fixed for its lifetime.
	Address byte
	// Version overrides FirmwareVersion when non-zero.
	Version bus.Version
	// HealthPolicy derives the reported health score. Nil keeps it
	// at 100.
	HealthPolicy bus.HealthPolicy
}

// Node is one bus slave. Create it with New, attach role handlers, then
// drive it with Run.
type Node struct {
	proto   *bus.Protocol
	version bus.Version
}

// New creates a node on a line and registers the common handlers.
func New(line bus.Line, conf Config) *Node {
	version := conf.Version
	if version == (bus.Version{}) {
		version = FirmwareVersion
	}
	n := &Node{
		proto: bus.New(line, bus.Config{
			Address:      conf.Address,
			HealthPolicy: conf.HealthPolicy,
		}),
		version: version,
	}
	n.proto.Register(bus.CmdPing, bus.HandleCommandFunc(n.handlePing))
	n.proto.Register(bus.CmdGetVersion, bus.HandleCommandFunc(n.handleGetVersion))
	n.proto.Register(bus.CmdHeartbeat, bus.HandleCommandFunc(n.handleHeartbeat))
	n.proto.Register(bus.CmdGetStatus, bus.HandleCommandFunc(n.handleGetStatus))
	glog.Infof("node 0x%02X ready, firmware %s", conf.Address, version)
	return n
}

// Protocol exposes the underlying engine.
func (n *Node) Protocol() *bus.Protocol {
	return n.proto
}

// Address returns the node's bus address.
func (n *Node) Address() byte {
	return n.proto.Address()
}

// Run implements framework.Runnable by serving the bus until the
// context is canceled.
func (n *Node) Run(ctx context.Context) error {
	return n.proto.Run(ctx)
}

func (n *Node) reply(pkt *bus.Packet, cmd bus.Command, payload []byte) {
	if err := n.proto.Send(pkt.Src, cmd, payload); err != nil {
		glog.Warningf("reply 0x%02X to 0x%02X failed: %v", byte(cmd), pkt.Src, err)
	}
}

func (n *Node) handlePing(ctx context.Context, pkt *bus.Packet) {
	n.reply(pkt, bus.CmdPingResponse, nil)
}

func (n *Node) handleGetVersion(ctx context.Context, pkt *bus.Packet) {
	n.reply(pkt, bus.CmdVersionResponse, n.version.MarshalPayload(n.Address()))
}

func (n *Node) handleHeartbeat(ctx context.Context, pkt *bus.Packet) {
	hb := bus.Heartbeat{Addr: n.Address(), Health: n.proto.Status().Health()}
	n.reply(pkt, bus.CmdHeartbeatResponse, hb.MarshalPayload())
}

func (n *Node) handleGetStatus(ctx context.Context, pkt *bus.Packet) {
	n.reply(pkt, bus.CmdStatusResponse, n.proto.Status().Snapshot().MarshalPayload())
}
