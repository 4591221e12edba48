package bus

import (
	"encoding/binary"
	"io"
)

// Frame sentinels.
const (
	StartByte byte = 0xAA
	EndByte   byte = 0x55
)

// Bus addresses. Every node owns exactly one address for its lifetime.
const (
	AddrBroadcast  byte = 0x00
	AddrNodeAnalog byte = 0x01
	AddrNodeInput  byte = 0x02
	AddrNodeOutput byte = 0x03
	AddrMaster     byte = 0x10
)

// Frame sizing. A frame is the 5-byte header, up to MaxPayload payload
// bytes, the 2-byte checksum and the end sentinel.
const (
	HeaderSize   = 5
	TrailerSize  = 3
	MaxPayload   = 250
	MinFrameSize = HeaderSize + TrailerSize
	MaxFrameSize = HeaderSize + MaxPayload + TrailerSize
)

// Command identifies the request or response semantic of a packet.
// Requests and responses are distinct codes, not a flag.
type Command byte

// Commands every node answers.
const (
	CmdPing              Command = 0x01
	CmdPingResponse      Command = 0x02
	CmdGetVersion        Command = 0x03
	CmdVersionResponse   Command = 0x04
	CmdHeartbeat         Command = 0x05
	CmdHeartbeatResponse Command = 0x06
	CmdGetStatus         Command = 0x10
	CmdStatusResponse    Command = 0x11
)

// Role-specific commands. Their payloads are opaque to the protocol
// engine and owned by the registered handlers.
const (
	CmdReadInputs        Command = 0x20
	CmdInputsResponse    Command = 0x21
	CmdWriteOutputs      Command = 0x30
	CmdOutputsResponse   Command = 0x31
	CmdReadOutputs       Command = 0x32
	CmdReadCurrents      Command = 0x40
	CmdCurrentsResponse  Command = 0x41
	CmdReadVoltages      Command = 0x42
	CmdVoltagesResponse  Command = 0x43
	CmdReadNTC           Command = 0x44
	CmdNTCResponse       Command = 0x45
	CmdReadAllAnalog     Command = 0x46
	CmdAllAnalogResponse Command = 0x47
)

// CmdErrorResponse reports a protocol-level fault back to the sender.
// Payload: error code, responding node's address.
const CmdErrorResponse Command = 0xFF

// Packet is one request/response unit. Instances are transient: built
// by the Framer on reception or by a caller for transmission, consumed
// immediately, never retained beyond one round.
type Packet struct {
	Dest    byte
	Src     byte
	Command Command
	Payload []byte
}

// Bytes returns the encoded frame including sentinels and checksum.
// The payload must not exceed MaxPayload; Send enforces this before
// encoding.
func (p *Packet) Bytes() []byte {
	n := len(p.Payload)
	b := make([]byte, HeaderSize+n+TrailerSize)
	b[0] = StartByte
	b[1], b[2] = p.Dest, p.Src
	b[3], b[4] = byte(p.Command), byte(n)
	copy(b[HeaderSize:], p.Payload)
	crc := Checksum(b[1 : HeaderSize+n])
	binary.LittleEndian.PutUint16(b[HeaderSize+n:], crc)
	b[HeaderSize+n+2] = EndByte
	return b
}

// WriteTo writes the encoded frame.
func (p *Packet) WriteTo(w io.Writer) (int, error) {
	return w.Write(p.Bytes())
}
