package bus

import (
	"errors"
	"fmt"
)

var (
	// ErrPayloadSize indicates a payload larger than MaxPayload.
	ErrPayloadSize = errors.New("payload too large")
	// ErrBusy indicates a transmit burst is already in progress.
	ErrBusy = errors.New("transmit in progress")
	// ErrChecksum indicates a received frame failed the CRC check.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrFrameEnd indicates a frame that did not close with the end sentinel.
	ErrFrameEnd = errors.New("missing end sentinel")
	// ErrFrameOverflow indicates a frame that would exceed MaxFrameSize.
	ErrFrameOverflow = errors.New("frame overflow")
	// ErrFrameTimeout indicates a partial frame abandoned mid-stream.
	ErrFrameTimeout = errors.New("inter-byte timeout")
)

// ErrorCode is the wire-level fault code carried by CmdErrorResponse.
type ErrorCode byte

const (
	ErrCodeNone     ErrorCode = 0x00
	ErrCodeChecksum ErrorCode = 0x01
	ErrCodeAddress  ErrorCode = 0x02
	ErrCodeCommand  ErrorCode = 0x03
	ErrCodeLength   ErrorCode = 0x04
	ErrCodeTimeout  ErrorCode = 0x05
	ErrCodeBusy     ErrorCode = 0x06
)

var errorCodeNames = map[ErrorCode]string{
	ErrCodeNone:     "none",
	ErrCodeChecksum: "invalid checksum",
	ErrCodeAddress:  "invalid address",
	ErrCodeCommand:  "invalid command",
	ErrCodeLength:   "invalid length",
	ErrCodeTimeout:  "timeout",
	ErrCodeBusy:     "busy",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error 0x%02X", byte(c))
}

// RemoteError wraps a CmdErrorResponse received from a peer.
type RemoteError struct {
	Code ErrorCode
	Addr byte
}

// Error implements error.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("node 0x%02X: %s", e.Addr, e.Code)
}
