// Command tinysip-capture is a standalone diagnostic tool: it passively
// sniffs SIP/UDP traffic on a network interface and logs each recognized
// datagram. It shares no process, socket, or state with tinysipd
// (SPEC_FULL.md §4.13) — it's a field tool, not part of the server's
// request path.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tinysip/b2bua/internal/capture"
	"github.com/tinysip/b2bua/internal/logger"
)

func main() {
	iface := flag.String("iface", "eth0", "network interface to sniff")
	port := flag.Int("port", 5060, "UDP port to filter on")
	level := flag.String("loglevel", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger.Init(*level, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := capture.Sniff(ctx, *iface, *port); err != nil {
		slog.Error("tinysip-capture: exiting", "error", err)
		os.Exit(1)
	}
}
