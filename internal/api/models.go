package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/service"
)

// RegisterAudioRequest describes an uploaded audio file to register and
// submit for processing.
type RegisterAudioRequest struct {
	FileKey         string `json:"file_key"         validate:"required,max=1024"`
	FileName        string `json:"file_name"        validate:"required,max=255"`
	DurationSeconds int    `json:"duration_seconds" validate:"gt=0"`
	MimeType        string `json:"mime_type"        validate:"required,startswith=audio/"`
	FileSizeBytes   int64  `json:"file_size_bytes"  validate:"gt=0"`
}

func (req RegisterAudioRequest) toUpload() service.UploadRequest {
	return service.UploadRequest{
		FileKey:         req.FileKey,
		FileName:        req.FileName,
		DurationSeconds: req.DurationSeconds,
		MimeType:        req.MimeType,
		FileSizeBytes:   req.FileSizeBytes,
	}
}

// AudioResponse is a registered audio record.
type AudioResponse struct {
	ID              uuid.UUID `json:"id"`
	FileName        string    `json:"file_name"`
	DurationSeconds int       `json:"duration_seconds"`
	MimeType        string    `json:"mime_type"`
	FileSizeBytes   int64     `json:"file_size_bytes"`
	CreatedAt       time.Time `json:"created_at"`
}

// TaskResponse is the processing state of a resource.
type TaskResponse struct {
	TaskID      uuid.UUID  `json:"task_id"`
	ResourceID  uuid.UUID  `json:"resource_id"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SubmissionResponse is returned when an upload is registered.
type SubmissionResponse struct {
	Audio AudioResponse `json:"audio"`
	Task  TaskResponse  `json:"task"`
}

// SummaryResponse is the result of a completed task.
type SummaryResponse struct {
	ResourceID    uuid.UUID        `json:"resource_id"`
	TaskID        uuid.UUID        `json:"task_id"`
	Transcription string           `json:"transcription"`
	Analysis      *domain.Analysis `json:"analysis"`
	Model         string           `json:"model"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

// ConnectionsResponse reports the number of open status streams.
type ConnectionsResponse struct {
	ActiveConnections int `json:"activeConnections"`
}

func audioToResponse(record *domain.AudioRecord) AudioResponse {
	return AudioResponse{
		ID:              record.ID,
		FileName:        record.FileName,
		DurationSeconds: record.DurationSeconds,
		MimeType:        record.MimeType,
		FileSizeBytes:   record.FileSizeBytes,
		CreatedAt:       record.CreatedAt,
	}
}

func taskToResponse(task *domain.Task) TaskResponse {
	return TaskResponse{
		TaskID:      task.ID,
		ResourceID:  task.ResourceID,
		Status:      string(task.Status),
		RetryCount:  task.RetryCount,
		Error:       task.ErrorLog,
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

func resultToSummary(task *domain.Task, result *domain.Result) SummaryResponse {
	return SummaryResponse{
		ResourceID:    result.ResourceID,
		TaskID:        result.TaskID,
		Transcription: result.Transcription,
		Analysis:      result.Analysis,
		Model:         result.Model,
		CompletedAt:   task.CompletedAt,
	}
}
