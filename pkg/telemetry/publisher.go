// Package telemetry bridges the field bus to an MQTT broker: node
// status records go out as JSON, output commands come back in.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/fieldtalks/rsbus.go/pkg/bus"
	"github.com/fieldtalks/rsbus.go/pkg/node"
)

// DefaultPollInterval is the status poll period.
const DefaultPollInterval = 5 * time.Second

// BusClient is the subset of the master client the publisher needs.
type BusClient interface {
	NodeStatus(ctx context.Context, dest byte) (bus.StatusSnapshot, error)
	WriteOutputs(ctx context.Context, dest byte, packed []byte) error
}

// StatusTopic is the publish topic for a node's status record.
func StatusTopic(addr byte) string {
	return fmt.Sprintf("node/%02x/status", addr)
}

// OutputsSetTopic is the subscription pattern for output commands.
// The concrete topic carries the node address in the second token.
const OutputsSetTopic = "node/+/outputs/set"

// nodeReport is the JSON document published per poll.
type nodeReport struct {
	Online bool                `json:"online"`
	Status *bus.StatusSnapshot `json:"status,omitempty"`
}

// Publisher polls nodes over the bus and publishes their status
// records. It also applies output commands received from the broker.
// Run implements framework.Runnable.
type Publisher struct {
	Client   BusClient
	Queue    *Queue
	Nodes    []byte
	Interval time.Duration

	// publish defaults to Queue.Pub.
	publish func(topic string, payload []byte)
}

// Name implements framework.Named.
func (p *Publisher) Name() string { return "telemetry" }

// Run polls until the context is canceled.
func (p *Publisher) Run(ctx context.Context) error {
	if p.publish == nil {
		p.publish = func(topic string, payload []byte) {
			p.Queue.Pub(topic, payload)
		}
	}
	if p.Queue != nil {
		p.Queue.Sub(OutputsSetTopic, func(topic string, payload []byte) {
			p.handleOutputsSet(ctx, topic, payload)
		})
	}
	interval := p.Interval
	if interval == 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	p.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

func (p *Publisher) pollAll(ctx context.Context) {
	for _, addr := range p.Nodes {
		if ctx.Err() != nil {
			return
		}
		p.poll(ctx, addr)
	}
}

func (p *Publisher) poll(ctx context.Context, addr byte) {
	var report nodeReport
	snap, err := p.Client.NodeStatus(ctx, addr)
	switch err {
	case nil:
		report = nodeReport{Online: true, Status: &snap}
	default:
		if err == ctx.Err() {
			return
		}
		glog.Warningf("node 0x%02X poll failed: %v", addr, err)
	}
	data, err := json.Marshal(&report)
	if err != nil {
		glog.Errorf("encode report for 0x%02X: %v", addr, err)
		return
	}
	p.publish(StatusTopic(addr), data)
}

// handleOutputsSet parses a JSON bool array from node/XX/outputs/set
// and writes it to the addressed output node.
func (p *Publisher) handleOutputsSet(ctx context.Context, topic string, payload []byte) {
	addr, ok := parseNodeTopic(topic)
	if !ok {
		glog.Warningf("bad outputs topic %q", topic)
		return
	}
	var states []bool
	if err := json.Unmarshal(payload, &states); err != nil {
		glog.Warningf("bad outputs payload on %q: %v", topic, err)
		return
	}
	if len(states) > node.NumDigitalOutputs {
		states = states[:node.NumDigitalOutputs]
	}
	if err := p.Client.WriteOutputs(ctx, addr, node.PackStates(states)); err != nil {
		glog.Warningf("write outputs to 0x%02X: %v", addr, err)
	}
}

// parseNodeTopic extracts the node address from topics of the form
// node/XX/... with XX in hex.
func parseNodeTopic(topic string) (byte, bool) {
	var addr byte
	var rest string
	if _, err := fmt.Sscanf(topic, "node/%02x/%s", &addr, &rest); err != nil {
		return 0, false
	}
	return addr, true
}
