// Package proxy implements the throttled TCP forwarding server: it accepts
// client connections on a local port and relays each one to a fixed
// destination through a shared rate limiter, simulating a slow link.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"treacle/internal/throttle"
)

// Logger is the diagnostic sink the server reports through. The server never
// depends on its behaviour; a discard-everything implementation is fine.
type Logger interface {
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Errorf(string, ...any) {}

// Config is an immutable snapshot of the settings a server runs with.
// Reconfiguring means Stop, then Start with a new Config.
type Config struct {
	// ListenPort is the local TCP port clients connect to. Port 0 binds an
	// ephemeral port, for embedding and tests.
	ListenPort int
	// Destination is the fixed upstream host:port every connection is
	// relayed to. Required.
	Destination string
	// BytesPerSecond caps aggregate relay throughput across all
	// connections; 0 means unlimited.
	BytesPerSecond int
	// DialTimeout bounds each upstream connection attempt.
	DialTimeout time.Duration
}

const DefaultDialTimeout = 10 * time.Second

var (
	ErrAlreadyRunning = errors.New("proxy: server already running")
	ErrNotRunning     = errors.New("proxy: server not running")
	ErrNoDestination  = errors.New("proxy: no destination configured")
)

type state int

const (
	stateStopped state = iota
	stateStarting
	stateRunning
	stateStopping
)

// Server owns the listening socket and the limiter shared by every relay
// direction of every connection.
type Server struct {
	cfg Config
	log Logger

	mu     sync.Mutex
	state  state
	ln     net.Listener
	lim    *throttle.Limiter
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, log Logger) *Server {
	if log == nil {
		log = nopLogger{}
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &Server{cfg: cfg, log: log}
}

// Start binds the listening socket and begins accepting clients. A bind
// failure is returned to the caller and leaves the server stopped.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateStopped {
		return ErrAlreadyRunning
	}
	if s.cfg.Destination == "" {
		return ErrNoDestination
	}
	s.state = stateStarting

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.ListenPort))
	if err != nil {
		s.state = stateStopped
		return fmt.Errorf("bind port %d: %w", s.cfg.ListenPort, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.ln = ln
	s.lim = throttle.New(s.cfg.BytesPerSecond)
	s.cancel = cancel
	s.state = stateRunning

	lim := s.lim
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx, ln, lim)
	}()
	return nil
}

// Stop closes the listener, signals in-flight handlers to finish their
// current chunk, and returns once every handler has exited. A stopped
// server may be started again; it gets a fresh socket and a fresh limiter.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = stateStopping
	s.cancel()
	s.ln.Close()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.ln = nil
	s.lim = nil
	s.cancel = nil
	s.state = stateStopped
	s.mu.Unlock()
	return nil
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// Addr returns the bound listen address, or nil when not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, lim *throttle.Limiter) {
	s.log.Debugf("listening on %s, forwarding to %s at %d B/s",
		ln.Addr(), s.cfg.Destination, s.cfg.BytesPerSecond)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Errorf("accept on %s failed: %v", ln.Addr(), err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn, lim)
		}()
	}
}
