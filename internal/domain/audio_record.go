package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AudioRecord-specific validation errors
var (
	// ErrAudioIDEmpty is returned when an audio record ID is empty or nil.
	ErrAudioIDEmpty = errors.New("audio record ID cannot be empty")

	// ErrAudioOwnerIDEmpty is returned when an audio record has no owner.
	ErrAudioOwnerIDEmpty = errors.New("audio record owner ID cannot be empty")

	// ErrAudioFileKeyEmpty is returned when the storage key is blank.
	ErrAudioFileKeyEmpty = errors.New("file key cannot be empty")

	// ErrAudioFileNameEmpty is returned when the file name is blank.
	ErrAudioFileNameEmpty = errors.New("file name cannot be empty")

	// ErrAudioDurationInvalid is returned when the duration is not positive.
	ErrAudioDurationInvalid = errors.New("duration seconds must be greater than 0")

	// ErrAudioMimeTypeInvalid is returned when the MIME type is not an audio type.
	ErrAudioMimeTypeInvalid = errors.New("MIME type must be a valid audio type")

	// ErrAudioFileSizeInvalid is returned when the file size is not positive.
	ErrAudioFileSizeInvalid = errors.New("file size bytes must be greater than 0")
)

// AudioRecord is the media resource a Task processes. The bytes live in
// external storage under FileKey; this record only carries the reference
// and its metadata.
type AudioRecord struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	FileKey         string    `json:"file_key"`
	FileName        string    `json:"file_name"`
	DurationSeconds int       `json:"duration_seconds"`
	MimeType        string    `json:"mime_type"`
	FileSizeBytes   int64     `json:"file_size_bytes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewAudioRecord creates a validated AudioRecord owned by ownerID.
func NewAudioRecord(
	ownerID uuid.UUID,
	fileKey, fileName string,
	durationSeconds int,
	mimeType string,
	fileSizeBytes int64,
) (*AudioRecord, error) {
	now := time.Now().UTC()
	record := &AudioRecord{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		FileKey:         strings.TrimSpace(fileKey),
		FileName:        strings.TrimSpace(fileName),
		DurationSeconds: durationSeconds,
		MimeType:        strings.TrimSpace(mimeType),
		FileSizeBytes:   fileSizeBytes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}

	return record, nil
}

// Validate checks if the AudioRecord has valid data.
func (a *AudioRecord) Validate() error {
	if a.ID == uuid.Nil {
		return ErrAudioIDEmpty
	}

	if a.OwnerID == uuid.Nil {
		return ErrAudioOwnerIDEmpty
	}

	if strings.TrimSpace(a.FileKey) == "" {
		return ErrAudioFileKeyEmpty
	}

	if strings.TrimSpace(a.FileName) == "" {
		return ErrAudioFileNameEmpty
	}

	if a.DurationSeconds <= 0 {
		return ErrAudioDurationInvalid
	}

	if !strings.HasPrefix(a.MimeType, "audio/") {
		return ErrAudioMimeTypeInvalid
	}

	if a.FileSizeBytes <= 0 {
		return ErrAudioFileSizeInvalid
	}

	return nil
}

// IsOwnedBy reports whether the record belongs to the given user.
func (a *AudioRecord) IsOwnedBy(userID uuid.UUID) bool {
	return a.OwnerID == userID
}
