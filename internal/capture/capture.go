// Package capture implements an optional, read-only SIP/UDP packet sniffer
// (C13, SPEC_FULL.md §4.13), decoupled entirely from the running server: it
// opens its own live capture handle and logs a line per recognized SIP
// datagram, for field diagnostics. It opens a pcap-backed handle and
// decodes packets in a context-driven loop, without any plugin/codec
// machinery beyond single-packet SIP classification.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/tinysip/b2bua/internal/sipmsg"
)

// Sniff opens iface in promiscuous mode, filters for UDP traffic on port,
// and logs each recognized SIP datagram's first line and Call-ID until ctx
// is cancelled.
func Sniff(ctx context.Context, iface string, port int) error {
	handle, err := pcap.OpenLive(iface, 65535, true, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("capture: opening %s: %w", iface, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp port %d", port)
	if err := handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("capture: setting filter %q: %w", filter, err)
	}

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	packets := source.Packets()

	for {
		select {
		case <-ctx.Done():
			return nil
		case packet, ok := <-packets:
			if !ok {
				return nil
			}
			handlePacket(packet)
		}
	}
}

func handlePacket(packet gopacket.Packet) {
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return
	}
	payload := udpLayer.(*layers.UDP).Payload
	if len(payload) == 0 {
		return
	}

	msg := string(payload)
	firstLine, _, found := strings.Cut(msg, "\r\n")
	if !found {
		return
	}

	kind := sipmsg.FirstLineKind(firstLine)
	if kind.Kind == sipmsg.LineUnknown {
		return
	}

	callID, _ := sipmsg.CallID(msg)
	slog.Info("capture: sip datagram observed", "first_line", firstLine, "call_id", callID)
}
