package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Result validation errors
var (
	ErrResultTaskIDEmpty        = errors.New("result task ID cannot be empty")
	ErrResultResourceIDEmpty    = errors.New("result resource ID cannot be empty")
	ErrResultTranscriptionEmpty = errors.New("result transcription cannot be empty")
	ErrResultAnalysisMissing    = errors.New("result analysis cannot be nil")
)

// Result is the output of a successful pipeline run. At most one Result
// exists per Task and it is never modified after it is written.
type Result struct {
	ID            uuid.UUID `json:"id"`
	TaskID        uuid.UUID `json:"task_id"`
	ResourceID    uuid.UUID `json:"resource_id"`
	Transcription string    `json:"transcription"`
	Analysis      *Analysis `json:"analysis"`
	Model         string    `json:"model"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewResult builds a Result for the given task.
func NewResult(task *Task, transcription string, analysis *Analysis, model string) (*Result, error) {
	if task == nil {
		return nil, ErrResultTaskIDEmpty
	}

	result := &Result{
		ID:            uuid.New(),
		TaskID:        task.ID,
		ResourceID:    task.ResourceID,
		Transcription: transcription,
		Analysis:      analysis,
		Model:         model,
		CreatedAt:     time.Now().UTC(),
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}

	return result, nil
}

// Validate checks if the Result has valid data.
func (r *Result) Validate() error {
	if r.TaskID == uuid.Nil {
		return ErrResultTaskIDEmpty
	}
	if r.ResourceID == uuid.Nil {
		return ErrResultResourceIDEmpty
	}
	if strings.TrimSpace(r.Transcription) == "" {
		return ErrResultTranscriptionEmpty
	}
	if r.Analysis == nil {
		return ErrResultAnalysisMissing
	}
	return nil
}
