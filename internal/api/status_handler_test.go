package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scribe-api/internal/api/shared"
	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/notify"
)

type staticTaskQuery struct {
	mu    sync.Mutex
	tasks []*domain.Task
}

func (q *staticTaskQuery) ListByOwner(context.Context, uuid.UUID) ([]*domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*domain.Task(nil), q.tasks...), nil
}

func withOwner(ownerID uuid.UUID, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next(w, r.WithContext(shared.WithOwnerID(r.Context(), ownerID)))
	})
}

func readEvent(t *testing.T, reader *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return name, data
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStatusHandler_Stream(t *testing.T) {
	task, err := domain.NewTask(uuid.New())
	require.NoError(t, err)
	query := &staticTaskQuery{tasks: []*domain.Task{task}}

	notifier, err := notify.NewNotifier(notify.NewRegistry(), query, config.NotifierConfig{
		PollInterval: time.Hour,
		MaxLifetime:  time.Minute,
	}, nil)
	require.NoError(t, err)

	handler := NewStatusHandler(notifier, time.Second, nil)
	srv := httptest.NewServer(withOwner(uuid.New(), handler.Stream))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	name, _ := readEvent(t, reader)
	assert.Equal(t, "connected", name)
	assert.Equal(t, 1, notifier.ActiveCount())

	notifier.Tick(context.Background())
	name, data := readEvent(t, reader)
	assert.Equal(t, "status-update", name)
	var update map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &update))
	assert.Equal(t, task.ResourceID.String(), update["resourceId"])
	assert.Equal(t, "pending", update["status"])

	cancel()
	require.Eventually(t, func() bool { return notifier.ActiveCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestStatusHandler_Connections(t *testing.T) {
	notifier, err := notify.NewNotifier(notify.NewRegistry(), &staticTaskQuery{}, config.NotifierConfig{}, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	NewStatusHandler(notifier, 0, nil).Connections(rec,
		httptest.NewRequest(http.MethodGet, "/api/status/sse/connections", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"activeConnections":0}`, rec.Body.String())
}
