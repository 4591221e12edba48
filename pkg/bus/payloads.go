package bus

import (
	"errors"
	"fmt"
)

// VersionPayloadSize is the wire size of a CmdVersionResponse payload:
// major, minor, patch, build, node address, three reserved bytes.
const VersionPayloadSize = 8

// Version identifies a firmware build.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint8
	Build uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d (build %d)", v.Major, v.Minor, v.Patch, v.Build)
}

// MarshalPayload encodes the CmdVersionResponse payload for a node.
func (v Version) MarshalPayload(addr byte) []byte {
	return []byte{v.Major, v.Minor, v.Patch, v.Build, addr, 0, 0, 0}
}

// ParseVersion decodes a CmdVersionResponse payload.
func ParseVersion(data []byte) (Version, byte, error) {
	if len(data) < VersionPayloadSize {
		return Version{}, 0, errors.New("version payload too short")
	}
	v := Version{Major: data[0], Minor: data[1], Patch: data[2], Build: data[3]}
	return v, data[4], nil
}

// Heartbeat is the decoded CmdHeartbeatResponse payload.
type Heartbeat struct {
	Addr   byte
	Health uint8
}

// MarshalPayload encodes the CmdHeartbeatResponse payload.
func (h Heartbeat) MarshalPayload() []byte {
	return []byte{h.Addr, h.Health}
}

// ParseHeartbeat decodes a CmdHeartbeatResponse payload.
func ParseHeartbeat(data []byte) (Heartbeat, error) {
	if len(data) < 2 {
		return Heartbeat{}, errors.New("heartbeat payload too short")
	}
	return Heartbeat{Addr: data[0], Health: data[1]}, nil
}
