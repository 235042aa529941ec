package dialog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tinysip/b2bua/internal/sipmsg"
)

// newBranch mints a Via branch token in the documented magic-cookie form
// (SPEC_FULL.md §6), using wall-clock milliseconds the same way the
// original worker.rs does instead of a random token — another documented
// simplification, not a spec requirement to fix.
func newBranch() string {
	return "z9hG4bK" + strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// composeRequest builds a full request message: a request line, the given
// headers verbatim and in order, a server User-Agent line, and either no
// body or an application/sdp body with a matching Content-Length.
func composeRequest(method, requestURI string, headers []string, body string) string {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(requestURI)
	b.WriteString(" SIP/2.0\r\n")
	writeHeadersAndBody(&b, headers, body)
	return b.String()
}

// composeResponse builds a full status-line response the same way.
func composeResponse(code int, reason string, headers []string, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SIP/2.0 %d %s\r\n", code, reason)
	writeHeadersAndBody(&b, headers, body)
	return b.String()
}

func writeHeadersAndBody(b *strings.Builder, headers []string, body string) {
	for _, h := range headers {
		if h == "" {
			continue
		}
		b.WriteString(h)
		b.WriteString("\r\n")
	}
	b.WriteString("User-Agent: TinySIP\r\n")
	if body != "" {
		b.WriteString("Content-Type: application/sdp\r\n")
		fmt.Fprintf(b, "Content-Length: %d\r\n\r\n", len(body))
		b.WriteString(body)
	} else {
		b.WriteString("Content-Length: 0\r\n\r\n")
	}
}

// augmentVia adds a "received" and, where the peer asked for it with a bare
// rport flag, an "rport" parameter to an inbound Via header line, so the
// response can reach a client behind NAT (SPEC_FULL.md §4.1/§4.7's "Via
// received/rport" rule). viaLine is a full "Via: ..." line as returned by
// sipmsg.Via.
func augmentVia(viaLine string, srcIP string, srcPort int) string {
	const prefix = "Via: "
	value := strings.TrimPrefix(viaLine, prefix)
	params := sipmsg.ViaReceivedRport(value)

	if params.Received == "" {
		value += ";received=" + srcIP
	}
	if params.HasRPort && params.RPort == 0 {
		value += fmt.Sprintf(";rport=%d", srcPort)
	}
	return prefix + value
}
