// Package sipmsg implements the header-parsing contract the dialog core relies
// on: pure functions over a raw SIP message string. Nothing here understands
// dialogs, transports, or state — it only knows how to pick substrings out of
// a message, including the documented case-sensitive limitation of the
// original implementation this server preserves.
package sipmsg

import "net"

// Envelope is the unit handed from the dispatcher to a worker: the raw bytes
// of one UDP datagram plus the address it arrived from.
type Envelope struct {
	Buffer []byte
	Source *net.UDPAddr
}
