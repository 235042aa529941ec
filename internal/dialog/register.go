package dialog

import (
	"fmt"
	"net"

	"github.com/tinysip/b2bua/internal/sipmsg"
)

// handleRegister updates the location table for a registering user and
// responds 200 OK with the advertised expiry, or 404 if the username isn't
// in the closed directory (SPEC_FULL.md §4.2, §6). REGISTER never touches
// the call table.
func (e *Engine) handleRegister(msg string, src *net.UDPAddr) {
	via, _ := sipmsg.Via(msg)
	from, _ := sipmsg.From(msg)
	to, _ := sipmsg.To(msg)
	cseq, _ := sipmsg.CSeq(msg)
	callID, _ := sipmsg.CallID(msg)
	contactLine, hasContact := sipmsg.Contact(msg)

	baseHeaders := []string{via, from, to, "Call-ID: " + callID, cseq}

	username, ok := sipmsg.UsernameFromURI(from)
	if !ok {
		e.send(composeResponse(400, "Bad Request", baseHeaders, ""), src)
		return
	}

	if !e.loc.Update(username, src) {
		e.send(composeResponse(404, "Not Found", baseHeaders, ""), src)
		return
	}

	headers := baseHeaders
	if hasContact {
		headers = append(headers, fmt.Sprintf("%s;expires=%d", contactLine, e.cfg.RegisterExpiry))
	}
	e.send(composeResponse(200, "OK", headers, ""), src)
}
