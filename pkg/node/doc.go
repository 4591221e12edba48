// Package node assembles a bus slave: the protocol engine plus the
// command handlers of one node role.
package node

// Every node answers the common commands (ping, version, heartbeat,
// status). Role handlers are attached on top and bridge to an I/O
// backend: a digital input bank, a digital output bank, or an analog
// bank. The backends are interfaces so hardware and the simulator are
// interchangeable.
