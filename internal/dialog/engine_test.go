package dialog

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinysip/b2bua/internal/callslot"
	"github.com/tinysip/b2bua/internal/events"
	"github.com/tinysip/b2bua/internal/location"
	"github.com/tinysip/b2bua/internal/sipmsg"
)

type sentMessage struct {
	payload string
	dest    *net.UDPAddr
}

type fakeSender struct {
	sent []sentMessage
}

func (f *fakeSender) Send(payload []byte, dest *net.UDPAddr) {
	f.sent = append(f.sent, sentMessage{payload: string(payload), dest: dest})
}

type fakePublisher struct {
	events []events.Event
}

func (f *fakePublisher) Publish(ev events.Event) { f.events = append(f.events, ev) }
func (f *fakePublisher) Close() error            { return nil }

func newTestEngine(t *testing.T) (*Engine, *fakeSender, *fakePublisher) {
	t.Helper()
	loc := location.New([]location.Entry{
		{Username: "1001", IPStr: "10.0.0.1", Port: 5060},
		{Username: "1002", IPStr: "10.0.0.2", Port: 5060},
	})
	bAddr, err := net.ResolveUDPAddr("udp", "10.0.0.2:5060")
	require.NoError(t, err)
	require.True(t, loc.Update("1002", bAddr))

	sender := &fakeSender{}
	pub := &fakePublisher{}
	engine := NewEngine(callslot.New(4), loc, sender, pub, Config{ServerIP: "10.0.0.9", Port: 5060, RegisterExpiry: 7200})
	return engine, sender, pub
}

func sampleInviteFromA() (string, *net.UDPAddr) {
	msg := "INVITE sip:1002@10.0.0.9 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.5:5060;branch=z9hG4bK001;rport\r\n" +
		"From: <sip:1001@10.0.0.5>;tag=a1\r\n" +
		"To: <sip:1002@10.0.0.9>\r\n" +
		"Call-ID: call-a-1\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Max-Forwards: 70\r\n" +
		"Contact: <sip:1001@10.0.0.5:5060>\r\n" +
		"Content-Length: 0\r\n\r\n"
	aAddr, _ := net.ResolveUDPAddr("udp", "10.0.0.5:5060")
	return msg, aAddr
}

func TestNewInviteResolvesCalleeAndForwards(t *testing.T) {
	engine, sender, pub := newTestEngine(t)
	msg, aAddr := sampleInviteFromA()

	engine.Handle(sipmsg.Envelope{Buffer: []byte(msg), Source: aAddr})

	require.Len(t, sender.sent, 2, "expected 100 Trying to A and INVITE to B")
	assert.True(t, strings.HasPrefix(sender.sent[0].payload, "SIP/2.0 100 Trying"))
	assert.Equal(t, aAddr.String(), sender.sent[0].dest.String())

	assert.True(t, strings.HasPrefix(sender.sent[1].payload, "INVITE sip:1002@10.0.0.2:5060"))
	assert.Contains(t, sender.sent[1].payload, "Call-ID: b-leg-a-1")
	assert.Contains(t, sender.sent[1].payload, "Max-Forwards: 69")

	engine.table.Lock()
	idx, leg, found := engine.table.FindByCallID("call-a-1")
	require.True(t, found)
	assert.Equal(t, callslot.ALeg, leg)
	call := engine.table.Slot(idx)
	assert.Equal(t, callslot.Routing, call.CallState)
	assert.Equal(t, "1002", call.Callee)
	assert.NotEmpty(t, call.TraceID)
	engine.table.Unlock()

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.KindReceived, pub.events[0].Kind)
}

func TestNewInviteUnknownCalleeSends404AndReleasesSlot(t *testing.T) {
	loc := location.New([]location.Entry{{Username: "1001", IPStr: "10.0.0.1", Port: 5060}})
	sender := &fakeSender{}
	pub := &fakePublisher{}
	engine := NewEngine(callslot.New(4), loc, sender, pub, Config{ServerIP: "10.0.0.9", Port: 5060, RegisterExpiry: 7200})

	msg := "INVITE sip:9999@10.0.0.9 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.5:5060;branch=z9hG4bK001\r\n" +
		"From: <sip:1001@10.0.0.5>;tag=a1\r\n" +
		"To: <sip:9999@10.0.0.9>\r\n" +
		"Call-ID: call-a-2\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Content-Length: 0\r\n\r\n"
	aAddr, _ := net.ResolveUDPAddr("udp", "10.0.0.5:5060")

	engine.Handle(sipmsg.Envelope{Buffer: []byte(msg), Source: aAddr})

	require.Len(t, sender.sent, 1)
	assert.True(t, strings.HasPrefix(sender.sent[0].payload, "SIP/2.0 404 Not Found"))
	assert.Equal(t, 0, engine.table.Size())

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.KindEnded, pub.events[0].Kind)
	assert.Equal(t, events.ReasonCalleeUnavailable, pub.events[0].Reason)
}

func TestFullCallLifecycleThroughBye(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	msg, aAddr := sampleInviteFromA()
	bAddr, _ := net.ResolveUDPAddr("udp", "10.0.0.2:5060")

	engine.Handle(sipmsg.Envelope{Buffer: []byte(msg), Source: aAddr})
	sender.sent = nil

	ok200FromB := "SIP/2.0 200 OK\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.9:5060;branch=z9hG4bK002\r\n" +
		"From: <sip:1001@10.0.0.5>;tag=a1\r\n" +
		"To: <sip:1002@10.0.0.2>;tag=b1\r\n" +
		"Call-ID: b-leg-a-1\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Contact: <sip:1002@10.0.0.2:5060>\r\n" +
		"Content-Length: 0\r\n\r\n"
	engine.Handle(sipmsg.Envelope{Buffer: []byte(ok200FromB), Source: bAddr})

	require.Len(t, sender.sent, 1, "expected 200 OK forwarded to A")
	assert.True(t, strings.HasPrefix(sender.sent[0].payload, "SIP/2.0 200 OK"))
	sender.sent = nil

	engine.table.Lock()
	idx, _, found := engine.table.FindByCallID("call-a-1")
	require.True(t, found)
	call := engine.table.Slot(idx)
	assert.Equal(t, callslot.Answered, call.CallState)
	assert.Equal(t, "sip:1002@10.0.0.2:5060", call.BLegContact)
	engine.table.Unlock()

	ackMsg := "ACK sip:TinySIP@10.0.0.9:5060 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.5:5060;branch=z9hG4bK003\r\n" +
		"From: <sip:1001@10.0.0.5>;tag=a1\r\n" +
		"To: <sip:1002@10.0.0.2>;tag=b1\r\n" +
		"Call-ID: call-a-1\r\n" +
		"CSeq: 1 ACK\r\n" +
		"Content-Length: 0\r\n\r\n"
	engine.Handle(sipmsg.Envelope{Buffer: []byte(ackMsg), Source: aAddr})

	require.Len(t, sender.sent, 1, "expected ACK forwarded to B")
	assert.True(t, strings.HasPrefix(sender.sent[0].payload, "ACK sip:1002@10.0.0.2:5060"))
	assert.Equal(t, callslot.Connected, call.CallState)
	sender.sent = nil

	byeFromA := "BYE sip:1002@10.0.0.2:5060 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.5:5060;branch=z9hG4bK004\r\n" +
		"From: <sip:1001@10.0.0.5>;tag=a1\r\n" +
		"To: <sip:1002@10.0.0.2>;tag=b1\r\n" +
		"Call-ID: call-a-1\r\n" +
		"CSeq: 2 BYE\r\n" +
		"Content-Length: 0\r\n\r\n"
	engine.Handle(sipmsg.Envelope{Buffer: []byte(byeFromA), Source: aAddr})

	require.Len(t, sender.sent, 2, "expected 200 OK to A and a fresh BYE to B")
	assert.True(t, strings.HasPrefix(sender.sent[0].payload, "SIP/2.0 200 OK"))
	assert.True(t, strings.HasPrefix(sender.sent[1].payload, "BYE sip:1002@10.0.0.2:5060"))
	assert.Equal(t, callslot.Disconnecting, call.CallState)
	sender.sent = nil

	byeOkFromB := "SIP/2.0 200 OK\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.9:5060;branch=z9hG4bK005\r\n" +
		"From: <sip:1001@10.0.0.5>;tag=a1\r\n" +
		"To: <sip:1002@10.0.0.2>;tag=b1\r\n" +
		"Call-ID: b-leg-a-1\r\n" +
		"CSeq: 2 BYE\r\n" +
		"Content-Length: 0\r\n\r\n"
	engine.Handle(sipmsg.Envelope{Buffer: []byte(byeOkFromB), Source: bAddr})

	assert.Equal(t, 0, engine.table.Size(), "call slot should be released once the BYE is confirmed")
}

func TestCancelDuringRingingTerminatesAllThreeLegs(t *testing.T) {
	engine, sender, pub := newTestEngine(t)
	msg, aAddr := sampleInviteFromA()
	bAddr, _ := net.ResolveUDPAddr("udp", "10.0.0.2:5060")
	engine.Handle(sipmsg.Envelope{Buffer: []byte(msg), Source: aAddr})

	ringingFromB := "SIP/2.0 180 Ringing\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.9:5060;branch=z9hG4bK002\r\n" +
		"From: <sip:1001@10.0.0.5>;tag=a1\r\n" +
		"To: <sip:1002@10.0.0.2>;tag=b1\r\n" +
		"Call-ID: b-leg-a-1\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Content-Length: 0\r\n\r\n"
	engine.Handle(sipmsg.Envelope{Buffer: []byte(ringingFromB), Source: bAddr})
	sender.sent = nil
	pub.events = nil

	cancelMsg := "CANCEL sip:1002@10.0.0.9 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.5:5060;branch=z9hG4bK001\r\n" +
		"From: <sip:1001@10.0.0.5>;tag=a1\r\n" +
		"To: <sip:1002@10.0.0.9>\r\n" +
		"Call-ID: call-a-1\r\n" +
		"CSeq: 1 CANCEL\r\n" +
		"Content-Length: 0\r\n\r\n"
	engine.Handle(sipmsg.Envelope{Buffer: []byte(cancelMsg), Source: aAddr})

	require.Len(t, sender.sent, 3, "expected 200 OK to CANCEL, 487 to INVITE, and CANCEL to B")
	assert.True(t, strings.HasPrefix(sender.sent[0].payload, "SIP/2.0 200 OK"))
	assert.True(t, strings.HasPrefix(sender.sent[1].payload, "SIP/2.0 487 Request Terminated"))
	assert.True(t, strings.HasPrefix(sender.sent[2].payload, "CANCEL "))

	engine.table.Lock()
	idx, _, found := engine.table.FindByCallID("call-a-1")
	require.True(t, found)
	assert.Equal(t, callslot.Disconnecting, engine.table.Slot(idx).CallState)
	engine.table.Unlock()

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.ReasonCancelled, pub.events[0].Reason)
}

func TestRegisterUnknownUserReturns404(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	registerMsg := "REGISTER sip:10.0.0.9 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.9:5060;branch=z9hG4bK001\r\n" +
		"From: <sip:9999@10.0.0.9>\r\n" +
		"To: <sip:9999@10.0.0.9>\r\n" +
		"Call-ID: reg-1\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		"Contact: <sip:9999@10.0.0.1:5060>\r\n" +
		"Content-Length: 0\r\n\r\n"
	src, _ := net.ResolveUDPAddr("udp", "10.0.0.1:5060")

	engine.Handle(sipmsg.Envelope{Buffer: []byte(registerMsg), Source: src})

	require.Len(t, sender.sent, 1)
	assert.True(t, strings.HasPrefix(sender.sent[0].payload, "SIP/2.0 404 Not Found"))
}

func TestRegisterKnownUserReturns200WithExpires(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	registerMsg := "REGISTER sip:10.0.0.9 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.9:5060;branch=z9hG4bK001\r\n" +
		"From: <sip:1001@10.0.0.9>\r\n" +
		"To: <sip:1001@10.0.0.9>\r\n" +
		"Call-ID: reg-2\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		"Contact: <sip:1001@10.0.0.7:5060>\r\n" +
		"Content-Length: 0\r\n\r\n"
	src, _ := net.ResolveUDPAddr("udp", "10.0.0.7:5060")

	engine.Handle(sipmsg.Envelope{Buffer: []byte(registerMsg), Source: src})

	require.Len(t, sender.sent, 1)
	assert.True(t, strings.HasPrefix(sender.sent[0].payload, "SIP/2.0 200 OK"))
	assert.Contains(t, sender.sent[0].payload, "expires=7200")

	addr, ok := engine.loc.Resolve("1001")
	require.True(t, ok)
	assert.Equal(t, src.String(), addr.String())
}
