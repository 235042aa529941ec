// Package dialog implements the B2BUA dialog core (C7, SPEC_FULL.md §4.7):
// the state machine that rewrites and forwards SIP requests and responses
// between the two legs of a bridged call, plus the REGISTER handler.
// Grounded directly on _examples/original_source/src/worker.rs
// (handle_state_machine, handle_register, handle_bye), which is the
// normative source for every header-rewriting rule below — the distilled
// spec describes the rules, worker.rs is where their exact shape comes
// from.
package dialog

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"

	"github.com/tinysip/b2bua/internal/callslot"
	"github.com/tinysip/b2bua/internal/events"
	"github.com/tinysip/b2bua/internal/location"
	"github.com/tinysip/b2bua/internal/sipmsg"
	"github.com/tinysip/b2bua/internal/transport"
)

// Config carries the deployment-specific values the dialog core splices
// into headers it originates (SPEC_FULL.md §4.10): the address this server
// advertises, and the REGISTER expiry it hands back.
type Config struct {
	ServerIP       string
	Port           int
	RegisterExpiry int
}

// Engine is the dialog core. It implements transport.Handler, so a worker
// can hand it envelopes directly.
type Engine struct {
	table  *callslot.Table
	loc    *location.Table
	sender transport.Sender
	pub    events.Publisher
	cfg    Config
	cseq   uint32
}

var _ transport.Handler = (*Engine)(nil)

// NewEngine builds a dialog core over table and loc, sending through sender
// and publishing lifecycle events through pub.
func NewEngine(table *callslot.Table, loc *location.Table, sender transport.Sender, pub events.Publisher, cfg Config) *Engine {
	return &Engine{table: table, loc: loc, sender: sender, pub: pub, cfg: cfg}
}

func (e *Engine) nextCSeq() uint32 {
	return atomic.AddUint32(&e.cseq, 1)
}

func (e *Engine) send(msg string, dest *net.UDPAddr) {
	e.sender.Send([]byte(msg), dest)
}

func (e *Engine) serverContact() string {
	return fmt.Sprintf("Contact: <sip:TinySIP@%s:%d>", e.cfg.ServerIP, e.cfg.Port)
}

// Handle classifies one inbound datagram and dispatches it (C6's
// responsibility in SPEC_FULL.md §4.6, implemented here since
// classification is inseparable from the call table it reads):
// REGISTER is handled outside the call table entirely; everything else is
// matched against an existing call by Call-ID, or — for a brand-new
// INVITE — allocates one.
func (e *Engine) Handle(env sipmsg.Envelope) {
	msg := string(env.Buffer)
	firstLine, _, ok := cutFirstLine(msg)
	if !ok {
		slog.Warn("dialog: datagram with no first line dropped", "source", env.Source.String())
		return
	}

	first := sipmsg.FirstLineKind(firstLine)
	if first.Kind == sipmsg.LineUnknown {
		slog.Debug("dialog: unrecognized first line dropped", "line", firstLine, "source", env.Source.String())
		return
	}

	if first.Kind == sipmsg.LineRequest && first.Token == "REGISTER" {
		e.handleRegister(msg, env.Source)
		return
	}

	callID, _ := sipmsg.CallID(msg)

	e.table.Lock()
	defer e.table.Unlock()

	if idx, leg, found := e.table.FindByCallID(callID); found {
		e.step(idx, leg, first, msg, env.Source)
		return
	}

	if first.Kind == sipmsg.LineRequest && first.Token == "INVITE" {
		idx, ok := e.table.Allocate()
		if !ok {
			slog.Warn("dialog: call table full, rejecting INVITE", "call_id", callID)
			e.sendServiceUnavailable(msg, env.Source)
			return
		}
		e.step(idx, callslot.ALeg, first, msg, env.Source)
		return
	}

	slog.Debug("dialog: message for unknown dialog dropped", "call_id", callID, "token", first.Token)
}

// step routes one already-located message to the handler for its current
// state. Must be called with the table lock held; every handler below
// relies on that to keep its whole read-mutate-send sequence atomic
// (SPEC_FULL.md §4.3/§9 open question 2).
func (e *Engine) step(idx int, leg callslot.Leg, first sipmsg.FirstLine, msg string, src *net.UDPAddr) {
	call := e.table.Slot(idx)

	switch {
	case call.CallState == callslot.Idle && leg == callslot.ALeg &&
		first.Kind == sipmsg.LineRequest && first.Token == "INVITE":
		e.handleNewInvite(call, msg, src)

	case isRoutingOrRinging(call.CallState) && leg == callslot.ALeg &&
		first.Kind == sipmsg.LineRequest && first.Token == "CANCEL":
		e.handleCancel(call, msg)

	case isRoutingOrRinging(call.CallState) && leg == callslot.BLeg &&
		first.Kind == sipmsg.LineResponse:
		e.handleBLegStatus(call, first, msg)

	case call.CallState == callslot.Answered && leg == callslot.ALeg &&
		first.Kind == sipmsg.LineRequest && first.Token == "ACK":
		e.handleAckFromA(call)

	case (call.CallState == callslot.Answered || call.CallState == callslot.Connected) &&
		first.Kind == sipmsg.LineRequest && first.Token == "BYE":
		e.handleBye(call, leg, msg)

	case call.CallState == callslot.Disconnecting &&
		first.Kind == sipmsg.LineResponse:
		e.handleDisconnectOK(idx, call, msg)

	default:
		slog.Debug("dialog: no transition for message in current state",
			"state", call.CallState.String(), "leg", int(leg), "token", first.Token)
	}
}

func isRoutingOrRinging(s callslot.CallState) bool {
	return s == callslot.Routing || s == callslot.Ringing
}

// cutFirstLine splits msg at the first CRLF.
func cutFirstLine(msg string) (line, rest string, found bool) {
	idx := strings.Index(msg, "\r\n")
	if idx < 0 {
		return msg, "", false
	}
	return msg[:idx], msg[idx+2:], true
}

func (e *Engine) sendServiceUnavailable(msg string, src *net.UDPAddr) {
	via, _ := sipmsg.Via(msg)
	from, _ := sipmsg.From(msg)
	to, _ := sipmsg.To(msg)
	cseq, _ := sipmsg.CSeq(msg)
	callID, _ := sipmsg.CallID(msg)

	headers := []string{via, from, to, "Call-ID: " + callID, cseq}
	e.send(composeResponse(503, "Service Unavailable", headers, ""), src)
}
