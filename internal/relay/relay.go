// Package relay copies bytes unidirectionally in bounded chunks, consulting
// the shared limiter before each chunk is forwarded.
package relay

import (
	"context"
	"errors"
	"io"

	"treacle/internal/pkg/buffer"
	"treacle/internal/throttle"
)

type closeWriter interface {
	CloseWrite() error
}

// Link pipes src to dst until EOF or error. Each iteration reads at most one
// chunk, acquires that many bytes from lim, then writes the chunk: traffic
// is throttled before forwarding and stream order is preserved.
//
// On clean EOF the write side of dst is half-closed when it supports that,
// and Link returns nil. A chunk already read when ctx is cancelled is still
// written out before Link returns the context error; no further reads are
// started. Read and write errors are returned as-is, without retry.
func Link(ctx context.Context, dst io.Writer, src io.Reader, lim *throttle.Limiter) error {
	bp := buffer.Get()
	defer buffer.Put(bp)
	buf := *bp
	// Cap the chunk at one burst so a single acquire never waits much
	// longer than one window.
	if b := lim.Burst(); b > 0 && b < len(buf) {
		buf = buf[:b]
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			aerr := lim.Acquire(ctx, n)
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			if aerr != nil {
				return aerr
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				if cw, ok := dst.(closeWriter); ok {
					cw.CloseWrite()
				}
				return nil
			}
			return rerr
		}
	}
}
