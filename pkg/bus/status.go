package bus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"
)

// StatusPayloadSize is the wire size of a CmdStatusResponse payload.
const StatusPayloadSize = 16

// HealthPolicy derives a 0-100 health score from the link counters.
// The protocol engine never computes health itself; the surrounding
// application decides what the counters mean.
type HealthPolicy func(StatusSnapshot) uint8

// ConstantHealth reports a fixed score regardless of traffic.
func ConstantHealth(h uint8) HealthPolicy {
	return func(StatusSnapshot) uint8 { return h }
}

// StatusSnapshot is a consistent copy of a node's link status.
type StatusSnapshot struct {
	Addr   byte   `json:"addr"`
	Health uint8  `json:"health"`
	Uptime uint32 `json:"uptime"`
	Errors uint32 `json:"errors"`
	Rx     uint32 `json:"rx"`
	Tx     uint32 `json:"tx"`
}

// MarshalPayload encodes the snapshot in the CmdStatusResponse layout:
// addr, health, uptime u32, errors u32, rx u32, tx u16, little-endian.
func (s StatusSnapshot) MarshalPayload() []byte {
	b := make([]byte, StatusPayloadSize)
	b[0], b[1] = s.Addr, s.Health
	binary.LittleEndian.PutUint32(b[2:], s.Uptime)
	binary.LittleEndian.PutUint32(b[6:], s.Errors)
	binary.LittleEndian.PutUint32(b[10:], s.Rx)
	binary.LittleEndian.PutUint16(b[14:], uint16(s.Tx))
	return b
}

// ParseStatus decodes a CmdStatusResponse payload.
func ParseStatus(data []byte) (StatusSnapshot, error) {
	if len(data) < StatusPayloadSize {
		return StatusSnapshot{}, errors.New("status payload too short")
	}
	return StatusSnapshot{
		Addr:   data[0],
		Health: data[1],
		Uptime: binary.LittleEndian.Uint32(data[2:]),
		Errors: binary.LittleEndian.Uint32(data[6:]),
		Rx:     binary.LittleEndian.Uint32(data[10:]),
		Tx:     uint32(binary.LittleEndian.Uint16(data[14:])),
	}, nil
}

func (s StatusSnapshot) String() string {
	return fmt.Sprintf("addr=0x%02X health=%d%% up=%ds rx=%d tx=%d err=%d",
		s.Addr, s.Health, s.Uptime, s.Rx, s.Tx, s.Errors)
}

// Status tracks a node's link counters. It is updated from the framer
// on frame completion, from the transmit path on completion or failure,
// and read by the heartbeat and status commands. Nothing resets it
// short of re-initialization.
type Status struct {
	policy HealthPolicy

	lock    sync.Mutex
	addr    byte
	started time.Time
	rx      uint32
	tx      uint32
	errors  uint32
}

// NewStatus creates the status record for a node address. A nil policy
// keeps health pinned at 100.
func NewStatus(addr byte, policy HealthPolicy) *Status {
	if policy == nil {
		policy = ConstantHealth(100)
	}
	return &Status{policy: policy, addr: addr, started: time.Now()}
}

// CountRx records a successfully received, addressed packet.
func (s *Status) CountRx() {
	s.lock.Lock()
	s.rx++
	s.lock.Unlock()
}

// CountTx records a completed transmission.
func (s *Status) CountTx() {
	s.lock.Lock()
	s.tx++
	s.lock.Unlock()
}

// CountError records a framing, integrity or transmit fault.
func (s *Status) CountError() {
	s.lock.Lock()
	s.errors++
	s.lock.Unlock()
}

// Snapshot returns a consistent copy with health applied.
func (s *Status) Snapshot() StatusSnapshot {
	s.lock.Lock()
	snap := StatusSnapshot{
		Addr:   s.addr,
		Uptime: uint32(time.Since(s.started) / time.Second),
		Errors: s.errors,
		Rx:     s.rx,
		Tx:     s.tx,
	}
	s.lock.Unlock()
	snap.Health = s.policy(snap)
	return snap
}

// Health evaluates the health policy against the current counters.
func (s *Status) Health() uint8 {
	return s.Snapshot().Health
}
