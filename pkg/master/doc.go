// Package master implements the polling side of the bus: a client that
// sends one request at a time and waits for the addressed node's reply.
package master

// The bus has a single master, so requests never overlap: Do serializes
// callers, transmits the request frame and reads the line until the
// matching reply arrives or the timeout expires. Nodes never speak
// unrequested, which keeps matching simple: the next valid frame from
// the polled address is the reply.
