// Package transport implements the three byte-duplex kinds a Gateway can
// be bootstrapped over (spec §4.3): Pipe (local subprocess or SSH client
// subprocess) and Socket (bare TCP). The CloseRead/CloseWrite split (a
// half-duplex shutdown that signals EOF without tearing down the read
// side) and the ConnStats byte accounting are grounded on the teacher's
// share/ssh_conn.go/share/socket_conn.go/share/connstats.go. The
// terminate-then-kill child process policy has no such teacher precedent
// (the teacher's own subprocess handling is Signal-then-Wait with no
// timeout or force-kill fallback, as in c6ai-hlf-easy/node/peer.go's
// PeerNode.Stop); it is this package's own addition on top of that shape,
// using only os/exec and syscall since OS process signaling has no
// third-party library in the pack that does it better.
package transport

import "io"

// ByteDuplex is the interface Framer is built on (spec §4.3): ordinary
// io.Reader/io.Writer, a distinct half-close for the write side, and
// process-lifecycle hooks for transports backed by a child process.
// For transports with no child (Socket), Wait is a no-op and Kill closes
// the connection.
type ByteDuplex interface {
	io.Reader
	io.Writer

	// CloseRead closes the read half, if separable from the write half.
	CloseRead() error
	// CloseWrite closes the write half, signalling EOF to the peer's
	// reader without necessarily closing the read half.
	CloseWrite() error
	// Wait blocks until any underlying child process has exited.
	Wait() error
	// Kill force-terminates any underlying child process.
	Kill() error
}
