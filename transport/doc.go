// Package transport groups the tether.Transport implementations:
//
//   - memory: an in-process pipe between a host end and a device end
//   - tcp: a TCP client, for RFCOMM-to-TCP bridges and the device simulator
//   - serialport: a serial device node such as /dev/rfcomm0
//
// Every implementation reads without blocking longer than its read timeout and reports a lost
// link through Streaming.
package transport
