// Command tinysipd is the B2BUA process entrypoint: load configuration,
// print the startup banner, build and start the server, then wait for a
// shutdown signal (SPEC_FULL.md §4.10).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinysip/b2bua/internal/banner"
	"github.com/tinysip/b2bua/internal/config"
	"github.com/tinysip/b2bua/internal/logger"
	"github.com/tinysip/b2bua/internal/server"
)

// shutdownGrace bounds how long Close is given to drain workers and close
// the socket before the process exits anyway.
const shutdownGrace = 3 * time.Second

func main() {
	cfg := config.Load(os.Args[1:])
	logger.Init(cfg.LogLevel, cfg.LogFile)

	printBanner(cfg)

	srv, err := server.New(cfg)
	if err != nil {
		slog.Error("tinysipd: failed to build server", "error", err)
		os.Exit(1)
	}

	run(srv, cfg)
}

func printBanner(cfg *config.Config) {
	banner.Print("tinysipd", []banner.ConfigLine{
		{Label: "Port", Value: fmt.Sprintf("%d", cfg.Port)},
		{Label: "Bind Address", Value: cfg.BindAddr},
		{Label: "Advertise IP", Value: cfg.AdvertiseIP},
		{Label: "Max Calls", Value: fmt.Sprintf("%d", cfg.MaxCalls)},
		{Label: "Worker Threads", Value: fmt.Sprintf("%d", cfg.MaxThreads)},
		{Label: "Queue Capacity", Value: fmt.Sprintf("%d", cfg.QueueCapacity)},
		{Label: "Admin Address", Value: fallback(cfg.AdminAddr, "disabled")},
		{Label: "Events URL", Value: fallback(cfg.EventsURL, "disabled")},
	})
}

func fallback(v, whenEmpty string) string {
	if v == "" {
		return whenEmpty
	}
	return v
}

func run(srv *server.Server, cfg *config.Config) {
	slog.Info("tinysipd: starting", "port", cfg.Port, "bind", cfg.BindAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv.Start(ctx)

	<-ctx.Done()
	slog.Info("tinysipd: shutdown signal received, draining")

	done := make(chan struct{})
	go func() {
		if err := srv.Close(); err != nil {
			slog.Warn("tinysipd: error during shutdown", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		slog.Info("tinysipd: shutdown complete")
	case <-time.After(shutdownGrace):
		slog.Warn("tinysipd: shutdown grace period exceeded, exiting anyway")
	}
}
