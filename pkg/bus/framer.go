package bus

import (
	"encoding/binary"
	"time"
)

// DefaultFrameTimeout is the inter-byte quiescence window after which a
// partial frame is abandoned. It guards against a sender dying
// mid-frame and wedging the parser forever.
const DefaultFrameTimeout = 500 * time.Millisecond

type frameState int

const (
	// stateIdle scans for the start sentinel; everything else is discarded.
	stateIdle frameState = iota
	// stateHeader collects dest, src, command and length.
	stateHeader
	// statePayload collects length payload bytes.
	statePayload
	// stateTrailer collects the checksum and the end sentinel.
	stateTrailer
)

// FrameResult is the outcome of feeding one byte to the Framer.
//
// Packet is non-nil when a frame completed. If Err is nil the frame
// passed the end-sentinel and checksum checks and may be dispatched.
// Err == ErrChecksum comes with the parsed Packet so the caller can
// answer the sender; any other Err reports a silently discarded frame.
type FrameResult struct {
	Packet *Packet
	Err    error
}

// Framer reassembles frames from a byte stream, one byte per call. It
// never blocks and performs no I/O, so it is safe to drive from a
// receive callback. The zero value is ready to use.
type Framer struct {
	// Timeout overrides DefaultFrameTimeout when non-zero.
	Timeout time.Duration
	// Clock overrides time.Now for the inter-byte timeout.
	Clock func() time.Time

	state frameState
	buf   [MaxFrameSize]byte
	n     int
	total int
	last  time.Time
}

// Reset discards any partial frame.
func (f *Framer) Reset() {
	f.state = stateIdle
	f.n = 0
	f.total = 0
}

// Receiving indicates a frame is partially assembled.
func (f *Framer) Receiving() bool {
	return f.state != stateIdle
}

// Feed consumes one received byte. When the byte arrives after the
// inter-byte timeout expired, the stale partial frame is reported as
// discarded and the byte is still examined as a potential frame start.
func (f *Framer) Feed(b byte) (fr FrameResult) {
	now := f.now()
	if f.state != stateIdle && now.Sub(f.last) > f.timeout() {
		f.Reset()
		fr.Err = ErrFrameTimeout
	}
	f.last = now

	if f.state == stateIdle {
		if b != StartByte {
			return
		}
		f.state = stateHeader
	}

	f.buf[f.n] = b
	f.n++

	switch f.state {
	case stateHeader:
		if f.n < HeaderSize {
			return
		}
		length := int(f.buf[4])
		if length > MaxPayload {
			f.Reset()
			fr.Err = ErrFrameOverflow
			return
		}
		f.total = HeaderSize + length + TrailerSize
		if length > 0 {
			f.state = statePayload
		} else {
			f.state = stateTrailer
		}
	case statePayload:
		if f.n == f.total-TrailerSize {
			f.state = stateTrailer
		}
	case stateTrailer:
		if f.n < f.total {
			return
		}
		fr = f.complete()
		f.Reset()
	}
	return
}

func (f *Framer) complete() (fr FrameResult) {
	if f.buf[f.n-1] != EndByte {
		fr.Err = ErrFrameEnd
		return
	}
	length := int(f.buf[4])
	pkt := &Packet{
		Dest:    f.buf[1],
		Src:     f.buf[2],
		Command: Command(f.buf[3]),
	}
	if length > 0 {
		pkt.Payload = make([]byte, length)
		copy(pkt.Payload, f.buf[HeaderSize:HeaderSize+length])
	}
	fr.Packet = pkt
	want := binary.LittleEndian.Uint16(f.buf[HeaderSize+length:])
	if got := Checksum(f.buf[1 : HeaderSize+length]); got != want {
		fr.Err = ErrChecksum
	}
	return
}

func (f *Framer) timeout() time.Duration {
	if f.Timeout != 0 {
		return f.Timeout
	}
	return DefaultFrameTimeout
}

func (f *Framer) now() time.Time {
	if f.Clock != nil {
		return f.Clock()
	}
	return time.Now()
}
