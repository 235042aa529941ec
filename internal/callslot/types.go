package callslot

import "net"

// CallState is the dialog state of one call slot. See SPEC_FULL.md §4.7 for
// the full transition diagram.
type CallState int

const (
	Idle CallState = iota
	Routing
	Ringing
	Answered
	Connected
	Disconnecting
)

func (s CallState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Routing:
		return "Routing"
	case Ringing:
		return "Ringing"
	case Answered:
		return "Answered"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// Leg identifies which side of a bridged call a message belongs to.
type Leg int

const (
	NoLeg Leg = iota
	ALeg
	BLeg
)

// LegHeaders is a verbatim snapshot of the Via/From/To/CSeq header lines for
// one leg of a call, stored as opaque strings so they can be spliced into
// outbound messages without re-parsing (SPEC_FULL.md §9: "string-as-header
// storage").
type LegHeaders struct {
	Via  string
	From string
	To   string
	CSeq string
}

// MediaState tracks whether SDP has been observed flowing in each direction
// for one leg. The B2BUA never inspects the SDP body itself.
type MediaState struct {
	LocalMedia  bool
	RemoteMedia bool
}

// Call is one slot of the call table.
type Call struct {
	Index     int
	IsActive  bool
	CallState CallState

	ALegUUID string
	BLegUUID string

	ALegAddr *net.UDPAddr
	BLegAddr *net.UDPAddr

	ALegHeader LegHeaders
	BLegHeader LegHeaders

	ALegContact string
	BLegContact string

	Callee string

	ALegMedia MediaState
	BLegMedia MediaState

	// TraceID is a server-internal correlation id (SPEC_FULL.md §3, §4.11),
	// never placed on the wire.
	TraceID string
}

// reset restores the slot to its neutral, inactive state while preserving
// Index, matching invariant 1 of SPEC_FULL.md §3.
func (c *Call) reset(index int) {
	*c = Call{Index: index}
}
