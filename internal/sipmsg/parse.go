package sipmsg

import (
	"strconv"
	"strings"
)

// MaxUsernameLength bounds usernames extracted from a URI. Kept here (not in
// internal/config) because it's a parsing-contract limit, not a deployment
// tunable.
const MaxUsernameLength = 16

// MaxUUIDLength bounds synthesized identifiers such as the B-leg Call-ID
// the dialog core mints for the outbound leg of a bridged call.
const MaxUUIDLength = 128

// LineKind distinguishes a first SIP line as a request or a response.
type LineKind int

const (
	// LineUnknown marks a first line that is neither a recognized request
	// method nor a well-formed SIP/2.0 status line.
	LineUnknown LineKind = iota
	LineRequest
	LineResponse
)

// FirstLine is the classification of a message's first line.
type FirstLine struct {
	Kind LineKind
	// Token holds the method name for a request, or the numeric status
	// code (as its original string form) for a response.
	Token string
}

var knownMethods = map[string]bool{
	"INVITE":   true,
	"ACK":      true,
	"BYE":      true,
	"CANCEL":   true,
	"REGISTER": true,
	"OPTIONS":  true,
}

// FirstLineKind classifies the first line of a SIP message. Requests are
// accepted only for the closed method set; any other leading token yields
// LineUnknown. Responses require the literal prefix "SIP/2.0" followed by a
// numeric status code.
func FirstLineKind(line string) FirstLine {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return FirstLine{Kind: LineUnknown}
	}

	if fields[0] == "SIP/2.0" {
		if len(fields) < 2 {
			return FirstLine{Kind: LineUnknown}
		}
		if _, err := strconv.Atoi(fields[1]); err != nil {
			return FirstLine{Kind: LineUnknown}
		}
		return FirstLine{Kind: LineResponse, Token: fields[1]}
	}

	if knownMethods[fields[0]] {
		return FirstLine{Kind: LineRequest, Token: fields[0]}
	}
	return FirstLine{Kind: LineUnknown}
}

// HeaderValue returns the substring between the first literal occurrence of
// name (e.g. "From:") and the following CRLF, with leading whitespace
// stripped. Matching is intentionally case-sensitive: SIP headers are
// case-insensitive by the wire spec, but this server's parser only ever
// looks for the exact casing it itself emits and expects peers to send. See
// SPEC_FULL.md §9, open question 1 — this is a documented limitation, not a
// bug to silently fix. The first occurrence wins; absent header returns ("",
// false).
func HeaderValue(msg, name string) (string, bool) {
	idx := strings.Index(msg, name)
	if idx < 0 {
		return "", false
	}
	rest := msg[idx+len(name):]
	end := strings.Index(rest, "\r\n")
	if end < 0 {
		end = len(rest)
	}
	return strings.TrimLeft(rest[:end], " \t"), true
}

// fullHeaderLine reconstructs "Name: value" from HeaderValue, which is the
// storage form the dialog core splices verbatim into outbound messages.
func fullHeaderLine(msg, name string) (string, bool) {
	v, ok := HeaderValue(msg, name)
	if !ok {
		return "", false
	}
	return name[:len(name)-1] + ": " + v, true
}

func CallID(msg string) (string, bool) { return HeaderValue(msg, "Call-ID:") }
func From(msg string) (string, bool)   { return fullHeaderLine(msg, "From:") }
func To(msg string) (string, bool)     { return fullHeaderLine(msg, "To:") }
func Via(msg string) (string, bool)    { return fullHeaderLine(msg, "Via:") }
func CSeq(msg string) (string, bool)   { return fullHeaderLine(msg, "CSeq:") }
func Contact(msg string) (string, bool) {
	return fullHeaderLine(msg, "Contact:")
}

// MaxForwards returns the numeric Max-Forwards value, if present and
// well-formed.
func MaxForwards(msg string) (int, bool) {
	v, ok := HeaderValue(msg, "Max-Forwards:")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// CSeqNumber parses the first whitespace-delimited token of a CSeq header
// value without its "CSeq:" name ("314159 INVITE") as an unsigned sequence
// number. The value must carry a second (method) token.
func CSeqNumber(value string) (uint32, bool) {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return 0, false
	}
	n, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// SDPBody returns the message body if Content-Type mentions application/sdp,
// splitting on the first blank line.
func SDPBody(msg string) (string, bool) {
	ct, ok := HeaderValue(msg, "Content-Type:")
	if !ok || !strings.Contains(ct, "application/sdp") {
		return "", false
	}
	idx := strings.Index(msg, "\r\n\r\n")
	if idx < 0 {
		return "", false
	}
	return msg[idx+4:], true
}

// UsernameFromURI locates the first <...>-bracketed URI in a header value,
// strips the scheme up to its first ':', and takes everything up to the next
// '@'. Empty results and results at or beyond MaxUsernameLength are
// rejected.
func UsernameFromURI(header string) (string, bool) {
	start := strings.Index(header, "<")
	end := strings.Index(header, ">")
	var uri string
	if start >= 0 && end > start {
		uri = header[start+1 : end]
	} else {
		uri = strings.TrimSpace(header)
	}

	if idx := strings.Index(uri, ":"); idx >= 0 {
		uri = uri[idx+1:]
	}

	at := strings.Index(uri, "@")
	if at < 0 {
		return "", false
	}
	user := uri[:at]
	if user == "" || len(user) >= MaxUsernameLength {
		return "", false
	}
	return user, true
}

// ContactURI extracts the URI content between '<' and '>' from a Contact
// header line, falling back to the trimmed value when there are no angle
// brackets.
func ContactURI(contactLine string) string {
	start := strings.Index(contactLine, "<")
	end := strings.Index(contactLine, ">")
	if start >= 0 && end > start {
		return contactLine[start+1 : end]
	}
	_, v, found := strings.Cut(contactLine, ":")
	if found {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(contactLine)
}

// ViaParams holds the received/rport parameters scanned out of a Via header.
type ViaParams struct {
	Received string
	RPort    int
	HasRPort bool
}

// ViaReceivedRport scans the ';'-delimited parameters of a Via header value
// for "received=", "rport=<n>", or the bare "rport" flag (reported as 0).
func ViaReceivedRport(via string) ViaParams {
	var out ViaParams
	for _, part := range strings.Split(via, ";") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "received="):
			out.Received = strings.TrimPrefix(part, "received=")
		case strings.HasPrefix(part, "rport="):
			if n, err := strconv.Atoi(strings.TrimPrefix(part, "rport=")); err == nil {
				out.RPort = n
				out.HasRPort = true
			}
		case part == "rport":
			out.RPort = 0
			out.HasRPort = true
		}
	}
	return out
}
