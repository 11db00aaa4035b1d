// Package netio provides the UDP transport for command batches.
//
// One datagram carries one command batch; the response batch is written back
// to the datagram's source address. The Linux implementation uses
// golang.org/x/sys/unix for socket options.
package netio
