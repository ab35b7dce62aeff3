package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scribe-api/internal/queue"
)

func runInBackground(ctx context.Context, app *application) <-chan error {
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	return done
}

func waitForRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
		return nil
	}
}

func TestApplication_RunExitsWhenBrokerStops(t *testing.T) {
	app, _ := newTestApplication(t, &stubJobs{})
	broker := queue.NewMemoryBroker(queue.MemoryOptions{}, app.logger)
	app.broker = broker

	done := runInBackground(context.Background(), app)
	require.NoError(t, broker.Close())

	err := waitForRun(t, done)
	assert.ErrorIs(t, err, queue.ErrQueueClosed)
}

func TestApplication_RunStopsCleanlyOnCancel(t *testing.T) {
	app, _ := newTestApplication(t, &stubJobs{})
	app.broker = queue.NewMemoryBroker(queue.MemoryOptions{}, app.logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(ctx, app)
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.NoError(t, waitForRun(t, done))
}
