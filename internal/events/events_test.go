package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scribe-api/internal/domain"
)

func TestNewConnected(t *testing.T) {
	id := uuid.New()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	event, err := NewConnected(id, now)
	require.NoError(t, err)
	assert.Equal(t, NameConnected, event.Name)
	assert.JSONEq(t,
		`{"message":"status stream connection established","subscriberId":"`+id.String()+`","timestamp":"2025-03-01T12:00:00Z"}`,
		string(event.Data))
}

func TestNewStatusUpdate(t *testing.T) {
	task, err := domain.NewTask(uuid.New())
	require.NoError(t, err)

	event, err := NewStatusUpdate(task, time.Now())
	require.NoError(t, err)
	assert.Equal(t, NameStatusUpdate, event.Name)

	var payload StatusUpdate
	require.NoError(t, event.UnmarshalData(&payload))
	assert.Equal(t, task.ResourceID, payload.ResourceID)
	assert.Equal(t, task.ID, payload.TaskID)
	assert.Equal(t, domain.TaskStatusPending, payload.Status)
}
