// Package server is tinysip's wiring root (SPEC_FULL.md §5/§9): construct
// every collaborator up front, then Start/Close the whole thing as one
// unit. The collaborators here are the call table, location table, dialog
// engine, transport fabric, events publisher, and admin server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tinysip/b2bua/internal/admin"
	"github.com/tinysip/b2bua/internal/callslot"
	"github.com/tinysip/b2bua/internal/config"
	"github.com/tinysip/b2bua/internal/dialog"
	"github.com/tinysip/b2bua/internal/directory"
	"github.com/tinysip/b2bua/internal/events"
	"github.com/tinysip/b2bua/internal/location"
	"github.com/tinysip/b2bua/internal/sipmsg"
	"github.com/tinysip/b2bua/internal/transport"
)

// Server owns every long-lived collaborator and the goroutines that drive
// them.
type Server struct {
	cfg        *config.Config
	conn       *net.UDPConn
	table      *callslot.Table
	loc        *location.Table
	engine     *dialog.Engine
	dispatcher *transport.Dispatcher
	workers    []*transport.Worker
	pub        events.Publisher
	admin      *admin.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs every collaborator and binds the SIP UDP socket, but
// starts nothing yet.
func New(cfg *config.Config) (*Server, error) {
	seed, err := loadDirectory(cfg)
	if err != nil {
		return nil, fmt.Errorf("server: loading directory: %w", err)
	}
	loc := location.New(seed)
	table := callslot.New(cfg.MaxCalls)

	pub := buildEventsPublisher(cfg)

	addr := &net.UDPAddr{IP: net.ParseIP(cfg.BindAddr), Port: cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listening on %s:%d: %w", cfg.BindAddr, cfg.Port, err)
	}

	sender := transport.NewUDPSender(conn)
	engine := dialog.NewEngine(table, loc, sender, pub, dialog.Config{
		ServerIP:       cfg.AdvertiseIP,
		Port:           cfg.Port,
		RegisterExpiry: cfg.RegisterExpiry,
	})

	workers := make([]*transport.Worker, cfg.MaxThreads)
	queues := make([]chan<- sipmsg.Envelope, cfg.MaxThreads)
	for i := range workers {
		workers[i] = transport.NewWorker(i, cfg.QueueCapacity, engine)
		queues[i] = workers[i].Queue()
	}
	dispatcher := transport.NewDispatcher(conn, cfg.BufferSize, queues)

	var adminSrv *admin.Server
	if cfg.AdminAddr != "" {
		adminSrv = admin.New(cfg.AdminAddr, table, loc)
	}

	return &Server{
		cfg:        cfg,
		conn:       conn,
		table:      table,
		loc:        loc,
		engine:     engine,
		dispatcher: dispatcher,
		workers:    workers,
		pub:        pub,
		admin:      adminSrv,
	}, nil
}

func loadDirectory(cfg *config.Config) ([]location.Entry, error) {
	if cfg.DirectoryPath == "" {
		return directory.Default(), nil
	}
	return directory.Load(cfg.DirectoryPath)
}

func buildEventsPublisher(cfg *config.Config) events.Publisher {
	if cfg.EventsURL == "" {
		return events.NoopPublisher{}
	}
	pub, err := events.NewNatsPublisher(cfg.EventsURL)
	if err != nil {
		slog.Warn("server: events publisher disabled, continuing without it", "url", cfg.EventsURL, "error", err)
		return events.NoopPublisher{}
	}
	return pub
}

// Start launches the worker pool, the dispatcher, and (if configured) the
// admin server. It returns immediately; everything runs in background
// goroutines until ctx is cancelled or Close is called.
func (s *Server) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *transport.Worker) {
			defer s.wg.Done()
			w.Run(ctx)
		}(w)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatcher.Run(ctx)
	}()

	if s.admin != nil {
		s.admin.Start()
	}

	slog.Info("server: started",
		"port", s.cfg.Port,
		"advertise", s.cfg.AdvertiseIP,
		"max_calls", s.cfg.MaxCalls,
		"max_threads", s.cfg.MaxThreads,
	)
}

// Close stops every goroutine, shuts down the admin server, drains the
// events publisher, and closes the SIP socket. It blocks until the worker
// pool and dispatcher have actually exited.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if s.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.admin.Close(ctx); err != nil {
			slog.Warn("server: admin server shutdown error", "error", err)
		}
	}

	if err := s.pub.Close(); err != nil {
		slog.Warn("server: events publisher close error", "error", err)
	}

	return s.conn.Close()
}
