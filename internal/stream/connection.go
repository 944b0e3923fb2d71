// ABOUTME: Live-push connection with an exclusively-owned, serialized frame writer
// ABOUTME: Heartbeat and broadcast pushes interleave safely through a per-connection mutex

package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// FrameWriter pushes one discrete text frame to the remote peer.
// Implementations do not need to be concurrency-safe; Connection serializes
// all pushes through its own mutex.
type FrameWriter interface {
	WriteFrame(data []byte) error
}

// Connection is one open live-push stream. It is created when the stream
// endpoint accepts a request and destroyed on peer disconnect, explicit
// cancellation, or ceiling expiry. Never persisted.
type Connection struct {
	ID       string
	Owner    string
	OpenedAt time.Time

	mu     sync.Mutex
	closed bool
	writer FrameWriter
	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnection creates a connection for the given verified owner.
// The id is owner-scoped and unique per open stream.
func NewConnection(owner string, w FrameWriter) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:       fmt.Sprintf("%s-%d", owner, time.Now().UnixNano()),
		Owner:    owner,
		OpenedAt: time.Now().UTC(),
		writer:   w,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Push writes one frame to the peer. Safe for concurrent use by the
// heartbeat emitter and the broadcaster. Returns an error once the peer is
// gone or the connection has been closed.
func (c *Connection) Push(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return context.Canceled
	}
	return c.writer.WriteFrame(data)
}

// Close cancels the connection. The closed flag is set under the push mutex,
// so no frame is written after Close plus Wait have both returned. Idempotent.
func (c *Connection) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

// Wait blocks until any in-flight push has drained. The stream handler calls
// this after Done fires, before the ResponseWriter behind the frame writer
// becomes invalid.
func (c *Connection) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
}

// Done is closed when the connection has been cancelled.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Age returns how long the connection has been open.
func (c *Connection) Age() time.Duration {
	return time.Since(c.OpenedAt)
}

// sseWriter adapts an http.ResponseWriter to FrameWriter using standard
// text-event-stream framing: "data: <json>\n\n", flushed per frame.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter wraps w for SSE framing. Returns an error if the writer does
// not support flushing (streaming would silently buffer otherwise).
func NewSSEWriter(w http.ResponseWriter) (FrameWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) WriteFrame(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}
