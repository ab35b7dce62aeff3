package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/scribe-api/internal/domain"
)

// Event names on the status stream.
const (
	NameConnected    = "connected"
	NameStatusUpdate = "status-update"
)

// ConnectedMessage is the human-readable text of the connected event.
const ConnectedMessage = "status stream connection established"

// Event is a named, JSON-encoded message for one subscriber.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID

	// Name is the event kind, sent as the SSE event field
	Name string

	// Data is the JSON payload
	Data json.RawMessage
}

// Connected is the payload of the connected event.
type Connected struct {
	Message      string    `json:"message"`
	SubscriberID uuid.UUID `json:"subscriberId"`
	Timestamp    time.Time `json:"timestamp"`
}

// StatusUpdate is the payload of a status-update event.
type StatusUpdate struct {
	ResourceID uuid.UUID         `json:"resourceId"`
	Status     domain.TaskStatus `json:"status"`
	TaskID     uuid.UUID         `json:"taskId"`
	Timestamp  time.Time         `json:"timestamp"`
}

// NewConnected creates the connected event for a subscriber.
func NewConnected(subscriberID uuid.UUID, now time.Time) (*Event, error) {
	return newEvent(NameConnected, Connected{
		Message:      ConnectedMessage,
		SubscriberID: subscriberID,
		Timestamp:    now.UTC(),
	})
}

// NewStatusUpdate creates a status-update event for the task's current status.
func NewStatusUpdate(task *domain.Task, now time.Time) (*Event, error) {
	return newEvent(NameStatusUpdate, StatusUpdate{
		ResourceID: task.ResourceID,
		Status:     task.Status,
		TaskID:     task.ID,
		Timestamp:  now.UTC(),
	})
}

func newEvent(name string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", name, err)
	}
	return &Event{ID: uuid.New(), Name: name, Data: data}, nil
}

// UnmarshalData decodes the event payload into v.
func (e *Event) UnmarshalData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Sink delivers events to one subscriber's connection.
type Sink interface {
	// Send writes the event. An error means the connection is unusable.
	Send(ctx context.Context, event *Event) error
}
