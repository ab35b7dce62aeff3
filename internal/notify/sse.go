package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/phrazzld/scribe-api/internal/events"
)

// DefaultWriteTimeout bounds a single event write to a slow client.
const DefaultWriteTimeout = 10 * time.Second

// ErrSinkClosed is returned by Send after Close.
var ErrSinkClosed = errors.New("notify: sink closed")

// SSEWriter is an events.Sink that writes text/event-stream frames to an
// HTTP response. Send and Close may be called from different goroutines.
type SSEWriter struct {
	mu           sync.Mutex
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
	closed       bool
}

var _ events.Sink = (*SSEWriter)(nil)

// NewSSEWriter writes the stream headers and flushes them so the client
// sees the connection open before the first event.
func NewSSEWriter(w http.ResponseWriter, writeTimeout time.Duration) (*SSEWriter, error) {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &SSEWriter{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
	}
	if err := s.rc.Flush(); err != nil {
		return nil, fmt.Errorf("response does not support streaming: %w", err)
	}
	return s, nil
}

// Send implements events.Sink.
func (s *SSEWriter) Send(ctx context.Context, event *events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}

	if err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil &&
		!errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Name, event.Data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	return nil
}

// Close stops further writes. The handler must call it before returning.
func (s *SSEWriter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
