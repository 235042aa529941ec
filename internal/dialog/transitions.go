package dialog

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/tinysip/b2bua/internal/callslot"
	"github.com/tinysip/b2bua/internal/events"
	"github.com/tinysip/b2bua/internal/sipmsg"
)

const bLegUUIDPrefix = "b-leg-"

// synthesizeBLegUUID mints the B-leg's own Call-ID from the A-leg's, the
// same way worker.rs's handle_state_machine does: prefix plus the original
// with its first five bytes dropped ("call-a-1" becomes "b-leg-a-1"),
// capped to MAX_UUID_LENGTH-1 bytes.
func synthesizeBLegUUID(aLegCallID string) string {
	suffix := ""
	if len(aLegCallID) > 5 {
		suffix = aLegCallID[5:]
	}
	id := bLegUUIDPrefix + suffix
	if len(id) > sipmsg.MaxUUIDLength-1 {
		id = id[:sipmsg.MaxUUIDLength-1]
	}
	return id
}

func (e *Engine) requestURIFor(username string, addr *net.UDPAddr) string {
	return fmt.Sprintf("sip:%s@%s:%d", username, addr.IP.String(), addr.Port)
}

// handleNewInvite is the Idle->Routing transition for a brand-new A-leg
// INVITE (SPEC_FULL.md §4.7): snapshot A's headers (with Via
// received/rport augmentation), resolve the callee, and either bounce 404
// or send 100 Trying to A and a freshly composed INVITE to B.
func (e *Engine) handleNewInvite(call *callslot.Call, msg string, src *net.UDPAddr) {
	callID, _ := sipmsg.CallID(msg)
	call.ALegAddr = src
	call.ALegUUID = callID
	call.BLegUUID = synthesizeBLegUUID(callID)

	viaLine, _ := sipmsg.Via(msg)
	fromLine, _ := sipmsg.From(msg)
	toLine, _ := sipmsg.To(msg)
	cseqLine, _ := sipmsg.CSeq(msg)

	call.ALegHeader = callslot.LegHeaders{
		Via:  augmentVia(viaLine, src.IP.String(), src.Port),
		From: fromLine,
		To:   toLine,
		CSeq: cseqLine,
	}

	if contactLine, ok := sipmsg.Contact(msg); ok {
		call.ALegContact = sipmsg.ContactURI(contactLine)
	}
	if _, ok := sipmsg.SDPBody(msg); ok {
		call.ALegMedia.LocalMedia = true
	}

	callee, ok := sipmsg.UsernameFromURI(toLine)
	if !ok {
		slog.Warn("dialog: INVITE with unparseable To URI, dropping", "call_id", callID)
		e.table.Release(call.Index)
		return
	}
	call.Callee = callee

	bAddr, found := e.loc.Resolve(callee)
	if !found {
		e.sendToA(call, 404, "Not Found", false, "")
		e.publishEnded(call, events.ReasonCalleeUnavailable)
		e.table.Release(call.Index)
		return
	}
	call.BLegAddr = bAddr

	e.sendToA(call, 100, "Trying", false, "")

	branch := newBranch()
	bVia := fmt.Sprintf("Via: SIP/2.0/UDP %s:%d;branch=%s", e.cfg.ServerIP, e.cfg.Port, branch)
	bTo := fmt.Sprintf("To: <sip:%s@%s>", callee, bAddr.IP.String())
	seq := e.nextCSeq()
	bCSeq := fmt.Sprintf("CSeq: %d INVITE", seq)

	call.BLegHeader = callslot.LegHeaders{
		Via:  bVia,
		From: call.ALegHeader.From,
		To:   bTo,
		CSeq: bCSeq,
	}

	maxFwd, ok := sipmsg.MaxForwards(msg)
	if !ok {
		maxFwd = 70
	}
	if maxFwd > 0 {
		maxFwd--
	}

	var body string
	if sdp, ok := sipmsg.SDPBody(msg); ok {
		body = sdp
		call.BLegMedia.LocalMedia = true
	}

	headers := []string{
		bVia,
		call.BLegHeader.From,
		bTo,
		"Call-ID: " + call.BLegUUID,
		bCSeq,
		e.serverContact(),
		fmt.Sprintf("Max-Forwards: %d", maxFwd),
	}

	requestURI := e.requestURIFor(callee, bAddr)
	e.send(composeRequest("INVITE", requestURI, headers, body), bAddr)

	call.CallState = callslot.Routing
	e.publish(call, events.KindReceived, "")
}

// handleBLegStatus forwards a response from B back to A, updating state and
// (on a final 2xx) capturing B's Contact for the future ACK/BYE.
func (e *Engine) handleBLegStatus(call *callslot.Call, first sipmsg.FirstLine, msg string) {
	code := statusCode(first.Token)
	reason := statusReason(msg)

	body := ""
	if sdp, ok := sipmsg.SDPBody(msg); ok {
		body = sdp
		call.ALegMedia.RemoteMedia = true
	}

	switch {
	case code == 100:
		// Trying is never forwarded to A.
		return

	case code == 180 || code == 183:
		e.sendToA(call, code, reason, true, body)
		if code == 180 {
			call.CallState = callslot.Ringing
			e.publish(call, events.KindRinging, "")
		}

	case code >= 200 && code < 300:
		if contactLine, ok := sipmsg.Contact(msg); ok {
			call.BLegContact = sipmsg.ContactURI(contactLine)
		}
		e.sendToA(call, code, reason, true, body)
		call.CallState = callslot.Answered
		e.publish(call, events.KindAnswered, "")

	case code >= 300:
		e.ackBLegFailure(call)
		e.sendToA(call, code, reason, false, "")
		e.publishEnded(call, events.ReasonRejected)
		e.table.Release(call.Index)
	}
}

// ackBLegFailure ACKs a non-2xx final response from B, as required by
// SIP transaction rules even though this B2BUA keeps no transaction
// timers of its own.
func (e *Engine) ackBLegFailure(call *callslot.Call) {
	cseqNum, _ := sipmsg.CSeqNumber(strings.TrimPrefix(call.BLegHeader.CSeq, "CSeq: "))

	headers := []string{
		call.BLegHeader.Via,
		call.BLegHeader.From,
		call.BLegHeader.To,
		"Call-ID: " + call.BLegUUID,
		fmt.Sprintf("CSeq: %d ACK", cseqNum),
	}
	requestURI := e.requestURIFor(call.Callee, call.BLegAddr)
	e.send(composeRequest("ACK", requestURI, headers, ""), call.BLegAddr)
}

// handleAckFromA completes the three-way handshake once A ACKs B's 200 OK.
func (e *Engine) handleAckFromA(call *callslot.Call) {
	cseqNum, _ := sipmsg.CSeqNumber(strings.TrimPrefix(call.BLegHeader.CSeq, "CSeq: "))
	branch := newBranch()
	via := fmt.Sprintf("Via: SIP/2.0/UDP %s:%d;branch=%s", e.cfg.ServerIP, e.cfg.Port, branch)

	headers := []string{
		via,
		call.BLegHeader.From,
		call.BLegHeader.To,
		"Call-ID: " + call.BLegUUID,
		fmt.Sprintf("CSeq: %d ACK", cseqNum),
	}

	requestURI := call.BLegContact
	if requestURI == "" {
		requestURI = e.requestURIFor(call.Callee, call.BLegAddr)
	}
	e.send(composeRequest("ACK", requestURI, headers, ""), call.BLegAddr)

	call.CallState = callslot.Connected
}

// handleCancel implements A cancelling a call still in Routing/Ringing:
// 200 OK to the CANCEL itself, 487 to the original INVITE, and a CANCEL
// forwarded to B.
func (e *Engine) handleCancel(call *callslot.Call, msg string) {
	via, _ := sipmsg.Via(msg)
	from, _ := sipmsg.From(msg)
	to, _ := sipmsg.To(msg)
	cseq, _ := sipmsg.CSeq(msg)
	callID, _ := sipmsg.CallID(msg)

	okHeaders := []string{via, from, to, "Call-ID: " + callID, cseq}
	e.send(composeResponse(200, "OK", okHeaders, ""), call.ALegAddr)

	e.sendToA(call, 487, "Request Terminated", false, "")

	bCSeqNum, _ := sipmsg.CSeqNumber(strings.TrimPrefix(call.BLegHeader.CSeq, "CSeq: "))
	cancelHeaders := []string{
		call.BLegHeader.Via,
		call.BLegHeader.From,
		call.BLegHeader.To,
		"Call-ID: " + call.BLegUUID,
		fmt.Sprintf("CSeq: %d CANCEL", bCSeqNum),
	}
	requestURI := e.requestURIFor(call.Callee, call.BLegAddr)
	e.send(composeRequest("CANCEL", requestURI, cancelHeaders, ""), call.BLegAddr)

	call.CallState = callslot.Disconnecting
	e.publishEnded(call, events.ReasonCancelled)
}

// handleBye forwards a BYE from either leg to the other, including the
// documented B->A From/To swap done by string replacement on the header
// prefix rather than by any tag-aware dialog logic (SPEC_FULL.md §9 open
// question 5, worker.rs's handle_bye).
func (e *Engine) handleBye(call *callslot.Call, leg callslot.Leg, msg string) {
	via, _ := sipmsg.Via(msg)
	from, _ := sipmsg.From(msg)
	to, _ := sipmsg.To(msg)
	cseq, _ := sipmsg.CSeq(msg)
	callID, _ := sipmsg.CallID(msg)

	okHeaders := []string{via, from, to, "Call-ID: " + callID, cseq}
	srcAddr := call.ALegAddr
	if leg == callslot.BLeg {
		srcAddr = call.BLegAddr
	}
	e.send(composeResponse(200, "OK", okHeaders, ""), srcAddr)

	seq := e.nextCSeq()
	branch := newBranch()
	viaOut := fmt.Sprintf("Via: SIP/2.0/UDP %s:%d;branch=%s", e.cfg.ServerIP, e.cfg.Port, branch)

	var requestURI, fromOut, toOut, callIDOut string
	var dest *net.UDPAddr

	if leg == callslot.ALeg {
		requestURI = call.BLegContact
		if requestURI == "" {
			requestURI = e.requestURIFor(call.Callee, call.BLegAddr)
		}
		fromOut = call.BLegHeader.From
		toOut = call.BLegHeader.To
		callIDOut = call.BLegUUID
		dest = call.BLegAddr
	} else {
		requestURI = call.ALegContact
		if requestURI == "" && call.ALegAddr != nil {
			requestURI = fmt.Sprintf("sip:%s", call.ALegAddr.String())
		}
		fromOut = swapHeaderPrefix(call.ALegHeader.To, "To:", "From:")
		toOut = swapHeaderPrefix(call.ALegHeader.From, "From:", "To:")
		callIDOut = call.ALegUUID
		dest = call.ALegAddr
	}

	headers := []string{
		viaOut,
		fromOut,
		toOut,
		"Call-ID: " + callIDOut,
		fmt.Sprintf("CSeq: %d BYE", seq),
	}
	e.send(composeRequest("BYE", requestURI, headers, ""), dest)

	call.CallState = callslot.Disconnecting
	e.publishEnded(call, events.ReasonBye)
}

// swapHeaderPrefix replaces the leading "Name:" token of a header line with
// a different one, preserving the rest of the value untouched — this is
// the exact, deliberately naive swap worker.rs performs; it does not
// reconstruct or validate tags.
func swapHeaderPrefix(line, oldPrefix, newPrefix string) string {
	if strings.HasPrefix(line, oldPrefix) {
		return newPrefix + strings.TrimPrefix(line, oldPrefix)
	}
	return line
}

// handleDisconnectOK releases the call slot once the 200 OK answering the
// BYE or CANCEL we sent comes back, matching it by the method name carried
// in the response's CSeq header.
func (e *Engine) handleDisconnectOK(idx int, call *callslot.Call, msg string) {
	line, _, _ := cutFirstLine(msg)
	if sipmsg.FirstLineKind(line).Token != "200" {
		return
	}
	cseqLine, ok := sipmsg.CSeq(msg)
	if !ok {
		return
	}
	if strings.Contains(cseqLine, "BYE") || strings.Contains(cseqLine, "CANCEL") {
		e.table.Release(idx)
	}
}

// sendToA forwards a response to A using its snapshotted headers, reusing
// the original INVITE's CSeq. withContact adds the server's own Contact
// header, for provisional/final responses that continue the dialog.
func (e *Engine) sendToA(call *callslot.Call, code int, reason string, withContact bool, body string) {
	headers := []string{
		call.ALegHeader.Via,
		call.ALegHeader.From,
		call.ALegHeader.To,
		"Call-ID: " + call.ALegUUID,
		call.ALegHeader.CSeq,
	}
	if withContact {
		headers = append(headers, e.serverContact())
	}
	e.send(composeResponse(code, reason, headers, body), call.ALegAddr)
}

func (e *Engine) publish(call *callslot.Call, kind events.Kind, reason events.EndReason) {
	e.pub.Publish(events.Event{
		Kind:      kind,
		TraceID:   call.TraceID,
		CallID:    call.ALegUUID,
		Callee:    call.Callee,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

func (e *Engine) publishEnded(call *callslot.Call, reason events.EndReason) {
	e.publish(call, events.KindEnded, reason)
}

func statusCode(token string) int {
	n := 0
	for _, r := range token {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func statusReason(msg string) string {
	line, _, _ := strings.Cut(msg, "\r\n")
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 3 {
		return ""
	}
	return fields[2]
}
