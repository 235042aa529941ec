// Package transport implements the UDP transport fabric (SPEC_FULL.md
// §4.4-§4.6, grounded on _examples/original_source/src/main.rs,
// network_utils.rs and worker.rs's processing loop shape): best-effort
// sending, a single non-blocking receive loop, and a bounded worker pool fed
// by round robin. Nothing here understands SIP semantics — Handler is the
// only seam into the dialog core.
package transport

import (
	"log/slog"
	"net"
)

// Sender is the narrow send-side contract the dialog core depends on, so it
// never has to hold a raw *net.UDPConn.
type Sender interface {
	Send(payload []byte, dest *net.UDPAddr)
}

// UDPSender is a best-effort sender over one shared UDP socket: a failed
// write is logged and otherwise ignored, matching the original
// implementation's fire-and-forget sendto (SPEC_FULL.md §4.4 — the B2BUA
// has no retransmission timers).
type UDPSender struct {
	conn *net.UDPConn
}

// NewUDPSender wraps conn for sending.
func NewUDPSender(conn *net.UDPConn) *UDPSender {
	return &UDPSender{conn: conn}
}

// Send writes payload to dest. Errors are logged, not returned: there is no
// caller that could usefully retry a best-effort SIP datagram.
func (s *UDPSender) Send(payload []byte, dest *net.UDPAddr) {
	if dest == nil {
		slog.Warn("transport: dropping send with nil destination")
		return
	}
	n, err := s.conn.WriteToUDP(payload, dest)
	if err != nil {
		slog.Warn("transport: send failed", "dest", dest.String(), "error", err)
		return
	}
	slog.Debug("transport: sent", "dest", dest.String(), "bytes", n, "first_line", firstLineOf(payload))
}

func firstLineOf(payload []byte) string {
	for i := 0; i+1 < len(payload); i++ {
		if payload[i] == '\r' && payload[i+1] == '\n' {
			return string(payload[:i])
		}
	}
	return string(payload)
}
