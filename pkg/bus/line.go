package bus

import (
	"io"
	"time"

	"github.com/tarm/serial"
)

// Line is the half-duplex physical layer under a Protocol or a master
// client. Read yields received bytes, Write drives the bus.
// EnableTransmit asserts the transceiver's driver-enable side;
// EnableReceive returns the line to listening. The caller serializes
// transmit bursts, a Line does not need to.
type Line interface {
	io.ReadWriter
	EnableTransmit() error
	EnableReceive() error
}

// DirectionFunc switches the transceiver direction. transmit is true
// for as long as the node drives the line.
type DirectionFunc func(transmit bool) error

// SerialConfig describes a serial device carrying the bus.
type SerialConfig struct {
	Device string
	// Baud defaults to 115200, the fixed rate of the bus.
	Baud int
	// ReadTimeout bounds a single Read call so receive loops can
	// observe cancellation. Defaults to 100ms.
	ReadTimeout time.Duration
	// Direction toggles the driver-enable line. Leave nil for
	// transceivers with automatic direction control.
	Direction DirectionFunc
}

// SerialLine is a Line over a local serial device.
type SerialLine struct {
	port *serial.Port
	dir  DirectionFunc
}

// OpenSerial opens the serial device behind a SerialLine.
func OpenSerial(conf SerialConfig) (*SerialLine, error) {
	if conf.Baud == 0 {
		conf.Baud = 115200
	}
	if conf.ReadTimeout == 0 {
		conf.ReadTimeout = 100 * time.Millisecond
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        conf.Device,
		Baud:        conf.Baud,
		ReadTimeout: conf.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &SerialLine{port: port, dir: conf.Direction}, nil
}

// Read implements io.Reader. A read timeout surfaces as n == 0 with a
// nil error, which receive loops treat as an idle poll.
func (l *SerialLine) Read(p []byte) (int, error) {
	return l.port.Read(p)
}

// Write implements io.Writer.
func (l *SerialLine) Write(p []byte) (int, error) {
	return l.port.Write(p)
}

// EnableTransmit implements Line.
func (l *SerialLine) EnableTransmit() error {
	if l.dir == nil {
		return nil
	}
	return l.dir(true)
}

// EnableReceive implements Line.
func (l *SerialLine) EnableReceive() error {
	if l.dir == nil {
		return nil
	}
	return l.dir(false)
}

// Close implements io.Closer.
func (l *SerialLine) Close() error {
	return l.port.Close()
}
