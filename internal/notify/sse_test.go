package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scribe-api/internal/events"
)

func TestSSEWriter_WritesFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec, time.Second)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)

	event, err := events.NewConnected(uuid.New(), time.Now())
	require.NoError(t, err)
	require.NoError(t, w.Send(context.Background(), event))

	want := "id: " + event.ID.String() + "\nevent: connected\ndata: " + string(event.Data) + "\n\n"
	assert.Equal(t, want, rec.Body.String())
}

func TestSSEWriter_SendAfterClose(t *testing.T) {
	w, err := NewSSEWriter(httptest.NewRecorder(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultWriteTimeout, w.writeTimeout)

	w.Close()
	event, err := events.NewConnected(uuid.New(), time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, w.Send(context.Background(), event), ErrSinkClosed)
}

func TestSSEWriter_CancelledContext(t *testing.T) {
	w, err := NewSSEWriter(httptest.NewRecorder(), time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	event, err := events.NewConnected(uuid.New(), time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, w.Send(ctx, event), context.Canceled)
}
