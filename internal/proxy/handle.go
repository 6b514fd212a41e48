package proxy

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"treacle/internal/metrics"
	"treacle/internal/relay"
	"treacle/internal/throttle"
)

// closeGrace bounds how long an unblocked relay may keep flushing after its
// sibling fails or the server stops.
const closeGrace = 500 * time.Millisecond

// handle relays one accepted client connection to the destination and back.
// Failures stay local to this connection; other handlers are unaffected.
func (s *Server) handle(ctx context.Context, conn net.Conn, lim *throttle.Limiter) {
	defer conn.Close()

	upstream, err := net.DialTimeout("tcp", s.cfg.Destination, s.cfg.DialTimeout)
	if err != nil {
		metrics.DialFailures.Add(1)
		s.log.Errorf("connect to %s for %s failed: %v", s.cfg.Destination, conn.RemoteAddr(), err)
		return
	}
	defer upstream.Close()

	cid := metrics.Tracker.Register(conn.RemoteAddr().String(), s.cfg.Destination)
	defer metrics.Tracker.Unregister(cid)
	metrics.ActiveConns.Add(1)
	defer metrics.ActiveConns.Add(-1)

	s.log.Debugf("accepted %s -> %s", conn.RemoteAddr(), s.cfg.Destination)
	start := time.Now()

	// The two directions run independently: a clean EOF on one leaves the
	// other streaming (a response may still be in flight after the request
	// body is done). A relay error cancels the group context.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Link(gctx, metrics.NewTrackerWriter(upstream, cid), conn, lim)
	})
	g.Go(func() error {
		return relay.Link(gctx, conn, metrics.NewTrackerReader(upstream, cid), lim)
	})

	// On cancellation, unblock relays stuck in socket I/O: reads stop
	// immediately, pending writes get a short grace to flush.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			now := time.Now()
			conn.SetReadDeadline(now)
			upstream.SetReadDeadline(now)
			conn.SetWriteDeadline(now.Add(closeGrace))
			upstream.SetWriteDeadline(now.Add(closeGrace))
		case <-watchDone:
		}
	}()

	err = g.Wait()
	close(watchDone)

	// A deadline error after the server's own cancellation is just the
	// unblocking mechanism at work, not a relay failure.
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		metrics.RelayErrors.Add(1)
		s.log.Errorf("connection %s -> %s closed with error: %v", conn.RemoteAddr(), s.cfg.Destination, err)
		return
	}
	if info := metrics.Tracker.Get(cid); info != nil {
		s.log.Debugf("closed %s -> %s after %s (tx %d B, rx %d B)",
			conn.RemoteAddr(), s.cfg.Destination,
			time.Since(start).Round(time.Millisecond),
			info.BytesTX.Load(), info.BytesRX.Load())
	}
}
