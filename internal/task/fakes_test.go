package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRepository is an in-memory Repository with version checks and a
// status history per resource.
type fakeRepository struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]domain.Task
	records map[uuid.UUID]*domain.AudioRecord
	results map[uuid.UUID]*domain.Result
	history map[uuid.UUID][]domain.TaskStatus

	getErr      error
	// missingReads makes the next GetTask calls report the task as not
	// found, as a worker sees it before the creating transaction commits.
	missingReads int
	updateErr   error
	completeErr error
	// beforeUpdate runs before each update is applied, under no lock.
	beforeUpdate func(task *domain.Task)
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		tasks:   make(map[uuid.UUID]domain.Task),
		records: make(map[uuid.UUID]*domain.AudioRecord),
		results: make(map[uuid.UUID]*domain.Result),
		history: make(map[uuid.UUID][]domain.TaskStatus),
	}
}

// seed stores a pending task and its audio record and returns both.
func (r *fakeRepository) seed(fileKey string) (*domain.Task, *domain.AudioRecord) {
	record, err := domain.NewAudioRecord(uuid.New(), fileKey, "standup.mp3", 120, "audio/mpeg", 2048)
	if err != nil {
		panic(err)
	}
	task, err := domain.NewTask(record.ID)
	if err != nil {
		panic(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = record
	r.tasks[record.ID] = *task
	r.history[record.ID] = []domain.TaskStatus{task.Status}
	return task, record
}

func (r *fakeRepository) task(resourceID uuid.UUID) domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[resourceID]
}

func (r *fakeRepository) statuses(resourceID uuid.UUID) []domain.TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TaskStatus(nil), r.history[resourceID]...)
}

func (r *fakeRepository) resultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *fakeRepository) GetTask(_ context.Context, resourceID uuid.UUID) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	if r.missingReads > 0 {
		r.missingReads--
		return nil, store.ErrTaskNotFound
	}
	task, ok := r.tasks[resourceID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return &task, nil
}

func (r *fakeRepository) UpdateTask(_ context.Context, task *domain.Task) error {
	if r.beforeUpdate != nil {
		r.beforeUpdate(task)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(task)
}

func (r *fakeRepository) updateLocked(task *domain.Task) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.tasks[task.ResourceID]
	if !ok {
		return store.ErrTaskNotFound
	}
	if stored.Version != task.Version {
		return store.ErrConflict
	}
	task.Version++
	r.tasks[task.ResourceID] = *task
	r.history[task.ResourceID] = append(r.history[task.ResourceID], task.Status)
	return nil
}

func (r *fakeRepository) GetAudioRecord(_ context.Context, id uuid.UUID) (*domain.AudioRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, store.ErrAudioRecordNotFound
	}
	return record, nil
}

func (r *fakeRepository) CompleteTask(_ context.Context, task *domain.Task, result *domain.Result, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completeErr != nil {
		return r.completeErr
	}
	if _, ok := r.results[result.TaskID]; ok {
		return store.ErrResultExists
	}

	completed := *task
	if err := completed.MarkCompleted(now); err != nil {
		return err
	}
	if err := r.updateLocked(&completed); err != nil {
		return err
	}
	r.results[result.TaskID] = result
	*task = completed
	return nil
}

func (r *fakeRepository) ListByStatus(
	_ context.Context,
	status domain.TaskStatus,
	updatedBefore time.Time,
) ([]*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stuck []*domain.Task
	for _, task := range r.tasks {
		if task.Status == status && task.UpdatedAt.Before(updatedBefore) {
			t := task
			stuck = append(stuck, &t)
		}
	}
	return stuck, nil
}

// fakeClaimer grants claims from an in-memory map.
type fakeClaimer struct {
	mu       sync.Mutex
	held     map[uuid.UUID]string
	err      error
	released int
}

func newFakeClaimer() *fakeClaimer {
	return &fakeClaimer{held: make(map[uuid.UUID]string)}
}

func (c *fakeClaimer) Acquire(_ context.Context, resourceID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", false, c.err
	}
	if _, ok := c.held[resourceID]; ok {
		return "", false, nil
	}
	token := uuid.NewString()
	c.held[resourceID] = token
	return token, true, nil
}

func (c *fakeClaimer) Release(_ context.Context, resourceID uuid.UUID, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held[resourceID] == token {
		delete(c.held, resourceID)
		c.released++
	}
	return nil
}
