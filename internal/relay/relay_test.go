package relay_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"treacle/internal/relay"
	"treacle/internal/throttle"
)

// collector is a concurrency-safe write sink.
type collector struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func newCollector() *collector { return &collector{} }

func (c *collector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *collector) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...)
}

func TestLink_PassThrough(t *testing.T) {
	payload := make([]byte, 64*1024)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read() error = %v", err)
	}

	c1, c2 := net.Pipe()
	go func() {
		c1.Write(payload)
		c1.Close()
	}()

	sink := newCollector()
	if err := relay.Link(context.Background(), sink, c2, throttle.New(0)); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if got := sink.Bytes(); !bytes.Equal(got, payload) {
		t.Errorf("relayed %d bytes, want the %d written, in order", len(got), len(payload))
	}
}

func TestLink_ThrottledLowerBound(t *testing.T) {
	const ceiling = 8000
	const total = 2 * ceiling
	payload := make([]byte, total)

	c1, c2 := net.Pipe()
	go func() {
		c1.Write(payload)
		c1.Close()
	}()

	sink := newCollector()
	start := time.Now()
	if err := relay.Link(context.Background(), sink, c2, throttle.New(ceiling)); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	elapsed := time.Since(start)

	want := time.Duration(float64(total-ceiling)/ceiling*float64(time.Second)) - 100*time.Millisecond
	if elapsed < want {
		t.Errorf("relayed %d bytes at %d B/s in %v, want >= %v", total, ceiling, elapsed, want)
	}
	if got := sink.Bytes(); len(got) != total {
		t.Errorf("relayed %d bytes, want %d", len(got), total)
	}
}

func TestLink_WriteError(t *testing.T) {
	c1, c2 := net.Pipe()
	go func() {
		c1.Write(make([]byte, 100))
	}()
	defer c1.Close()

	wantErr := errors.New("sink torn")
	err := relay.Link(context.Background(), failWriter{wantErr}, c2, throttle.New(0))
	if !errors.Is(err, wantErr) {
		t.Errorf("Link() error = %v, want %v", err, wantErr)
	}
}

type failWriter struct{ err error }

func (f failWriter) Write(p []byte) (int, error) { return 0, f.err }

func TestLink_CancelFlushesPendingChunk(t *testing.T) {
	// Ceiling 1000 caps the chunk at 1000 bytes: the first chunk rides the
	// free burst, the second blocks in the limiter for ~1s. Cancelling
	// during that wait must still flush the already-read chunk, then stop.
	const ceiling = 1000
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	sink := newCollector()
	go func() {
		done <- relay.Link(ctx, sink, c2, throttle.New(ceiling))
	}()
	go c1.Write(make([]byte, 4096))

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Link() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Link() did not return after cancel")
	}
	if got := len(sink.Bytes()); got != 2*ceiling {
		t.Errorf("flushed %d bytes, want %d (pending chunk written, no new reads)", got, 2*ceiling)
	}
}

func TestLink_EOFHalfClosesTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()
	srv := <-accepted
	defer srv.Close()

	src1, src2 := net.Pipe()
	go func() {
		src1.Write([]byte("last words"))
		src1.Close()
	}()

	// EOF on the source half-closes the TCP sink only: the server sees EOF
	// after the payload, yet can still send data back.
	if err := relay.Link(context.Background(), client.(*net.TCPConn), src2, throttle.New(0)); err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	srv.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := io.ReadAll(srv)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "last words" {
		t.Errorf("server read %q, want %q", got, "last words")
	}

	if _, err := srv.Write([]byte("reply")); err != nil {
		t.Errorf("server write after half-close error = %v", err)
	}
	reply := make([]byte, 5)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(client, reply); err != nil {
		t.Errorf("client read after half-close error = %v", err)
	}
}
