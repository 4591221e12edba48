// Package bus implements the RS485 field-bus packet protocol.
package bus

// The bus carries fixed-format frames between a single polling master
// and up to three byte-addressed slave nodes over a shared half-duplex
// line. A frame is delimited by start/end sentinels and protected by a
// CRC16 over its header and payload:
//
//	0xAA | dest | src | command | length | payload... | crc lo | crc hi | 0x55
//
// The package provides the pieces each end needs: the CRC codec, the
// Packet model, a byte-at-a-time Framer for reassembling frames from a
// serial stream, and the Protocol engine that owns a node's address,
// command registry, link counters and the transmit path with its
// half-duplex direction switching.
//
// Producer and consumer both compute the checksum independently; there
// is no negotiation on the wire.
