package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/queue"
)

// JobRepository defines the persistence needed by JobService.
type JobRepository interface {
	// GetAudioRecord returns store.ErrAudioRecordNotFound when absent.
	GetAudioRecord(ctx context.Context, id uuid.UUID) (*domain.AudioRecord, error)

	// GetTaskByResourceID returns store.ErrTaskNotFound when absent.
	GetTaskByResourceID(ctx context.Context, resourceID uuid.UUID) (*domain.Task, error)

	// GetResult returns store.ErrResultNotFound when absent.
	GetResult(ctx context.Context, taskID uuid.UUID) (*domain.Result, error)

	// InTx runs fn with writes bound to one transaction. The transaction is
	// committed only if fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx JobTxRepository) error) error
}

// JobTxRepository holds the writes that run inside a submission transaction.
type JobTxRepository interface {
	CreateAudioRecord(ctx context.Context, record *domain.AudioRecord) error

	// CreateTask returns store.ErrTaskExists when the resource already has a task.
	CreateTask(ctx context.Context, task *domain.Task) error
}

// UploadRequest describes audio that has already been written to storage.
type UploadRequest struct {
	FileKey         string
	FileName        string
	DurationSeconds int
	MimeType        string
	FileSizeBytes   int64
}

// Submission is a registered resource and its processing task.
type Submission struct {
	Record *domain.AudioRecord
	Task   *domain.Task
}

// JobService provides processing job operations scoped to an owner.
type JobService interface {
	// Submit creates a pending task for an existing resource owned by
	// ownerID and publishes it for processing. Nothing is persisted unless
	// the publish succeeds.
	Submit(ctx context.Context, ownerID, resourceID uuid.UUID) (*domain.Task, error)

	// RegisterUpload records uploaded audio and submits it in one step.
	RegisterUpload(ctx context.Context, ownerID uuid.UUID, req UploadRequest) (*Submission, error)

	// GetStatus returns the task for a resource owned by ownerID.
	GetStatus(ctx context.Context, ownerID, resourceID uuid.UUID) (*domain.Task, error)

	// GetResult returns the result of a completed task.
	GetResult(ctx context.Context, ownerID, resourceID uuid.UUID) (*domain.Task, *domain.Result, error)
}

// jobServiceImpl implements the JobService interface
type jobServiceImpl struct {
	repo      JobRepository
	publisher queue.Publisher
	logger    *slog.Logger
}

// NewJobService creates a new JobService.
// It returns an error if any of the required dependencies are nil.
func NewJobService(repo JobRepository, publisher queue.Publisher, logger *slog.Logger) (JobService, error) {
	if repo == nil {
		return nil, &JobServiceError{Operation: "create_service", Message: "repo cannot be nil"}
	}
	if publisher == nil {
		return nil, &JobServiceError{Operation: "create_service", Message: "publisher cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &jobServiceImpl{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With("component", "job_service"),
	}, nil
}

// Submit implements JobService.
func (s *jobServiceImpl) Submit(ctx context.Context, ownerID, resourceID uuid.UUID) (*domain.Task, error) {
	if ownerID == uuid.Nil || resourceID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner and resource identifiers are required", ErrInvalidRequest)
	}

	record, err := s.ownedRecord(ctx, "submit", ownerID, resourceID)
	if err != nil {
		return nil, err
	}

	task, err := domain.NewTask(record.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	err = s.repo.InTx(ctx, func(ctx context.Context, tx JobTxRepository) error {
		if err := tx.CreateTask(ctx, task); err != nil {
			return err
		}
		return s.publish(ctx, record.ID)
	})
	if err != nil {
		return nil, s.submitError("submit", ownerID, resourceID, err)
	}

	s.logger.InfoContext(ctx, "resource submitted for processing",
		"resource_id", resourceID,
		"task_id", task.ID,
		"owner_id", ownerID)
	return task, nil
}

// RegisterUpload implements JobService.
func (s *jobServiceImpl) RegisterUpload(
	ctx context.Context,
	ownerID uuid.UUID,
	req UploadRequest,
) (*Submission, error) {
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner identifier is required", ErrInvalidRequest)
	}

	record, err := domain.NewAudioRecord(ownerID, req.FileKey, req.FileName,
		req.DurationSeconds, req.MimeType, req.FileSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	task, err := domain.NewTask(record.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	err = s.repo.InTx(ctx, func(ctx context.Context, tx JobTxRepository) error {
		if err := tx.CreateAudioRecord(ctx, record); err != nil {
			return err
		}
		if err := tx.CreateTask(ctx, task); err != nil {
			return err
		}
		return s.publish(ctx, record.ID)
	})
	if err != nil {
		return nil, s.submitError("register_upload", ownerID, record.ID, err)
	}

	s.logger.InfoContext(ctx, "upload registered and submitted",
		"resource_id", record.ID,
		"task_id", task.ID,
		"owner_id", ownerID)
	return &Submission{Record: record, Task: task}, nil
}

// GetStatus implements JobService.
func (s *jobServiceImpl) GetStatus(ctx context.Context, ownerID, resourceID uuid.UUID) (*domain.Task, error) {
	if _, err := s.ownedRecord(ctx, "get_status", ownerID, resourceID); err != nil {
		return nil, err
	}

	task, err := s.repo.GetTaskByResourceID(ctx, resourceID)
	if err != nil {
		return nil, NewJobServiceError("get_status", "failed to retrieve task", err)
	}
	return task, nil
}

// GetResult implements JobService.
func (s *jobServiceImpl) GetResult(
	ctx context.Context,
	ownerID, resourceID uuid.UUID,
) (*domain.Task, *domain.Result, error) {
	task, err := s.GetStatus(ctx, ownerID, resourceID)
	if err != nil {
		return nil, nil, err
	}
	if task.Status != domain.TaskStatusCompleted {
		return task, nil, fmt.Errorf("%w: task is %s", ErrResultNotReady, task.Status)
	}

	result, err := s.repo.GetResult(ctx, task.ID)
	if err != nil {
		return task, nil, NewJobServiceError("get_result", "failed to retrieve result", err)
	}
	return task, result, nil
}

func (s *jobServiceImpl) ownedRecord(
	ctx context.Context,
	operation string,
	ownerID, resourceID uuid.UUID,
) (*domain.AudioRecord, error) {
	record, err := s.repo.GetAudioRecord(ctx, resourceID)
	if err != nil {
		return nil, NewJobServiceError(operation, "failed to retrieve resource", err)
	}
	if !record.IsOwnedBy(ownerID) {
		s.logger.WarnContext(ctx, "resource access by non-owner",
			"operation", operation,
			"resource_id", resourceID,
			"owner_id", ownerID)
		return nil, ErrResourceNotOwned
	}
	return record, nil
}

// publish wraps broker failures so they survive the transaction rollback
// as ErrQueueUnavailable.
func (s *jobServiceImpl) publish(ctx context.Context, resourceID uuid.UUID) error {
	if err := s.publisher.Publish(ctx, resourceID); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

func (s *jobServiceImpl) submitError(operation string, ownerID, resourceID uuid.UUID, err error) error {
	if errors.Is(err, ErrQueueUnavailable) {
		s.logger.Error("publish failed, submission rolled back",
			"operation", operation,
			"resource_id", resourceID,
			"owner_id", ownerID,
			"error", err)
		return err
	}

	mapped := NewJobServiceError(operation, "failed to persist submission", err)
	if errors.Is(mapped, ErrTaskExists) {
		s.logger.Info("duplicate submission rejected",
			"resource_id", resourceID,
			"owner_id", ownerID)
	} else {
		s.logger.Error("submission failed",
			"operation", operation,
			"resource_id", resourceID,
			"error", err)
	}
	return mapped
}
