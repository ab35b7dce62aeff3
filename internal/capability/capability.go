// Package capability defines the narrow interfaces the worker uses to load
// audio, transcribe it and analyze the transcription, together with the
// error values each implementation reports.
package capability

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/phrazzld/scribe-api/internal/domain"
)

// Errors reported by capability implementations. Implementations wrap one
// of these with %w so callers can classify failures with errors.Is.
var (
	// ErrNotFound is returned when no object exists under the storage key.
	ErrNotFound = errors.New("resource not found in storage")

	// ErrNotReadable is returned when the object exists but cannot be read.
	ErrNotReadable = errors.New("resource not readable")

	// ErrEmptyResult is returned when transcription produced no text.
	ErrEmptyResult = errors.New("transcription produced no text")

	// ErrUnsupportedFormat is returned for audio the transcriber cannot decode.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrMalformedOutput is returned when analysis output cannot be parsed.
	ErrMalformedOutput = errors.New("malformed analysis output")

	// ErrServiceError is returned when an external service call fails.
	ErrServiceError = errors.New("external service error")
)

// Audio is the input to transcription.
type Audio struct {
	Data     []byte
	FileName string
	MimeType string
}

// ResourceLoader reads stored audio by key.
type ResourceLoader interface {
	Load(ctx context.Context, key string) ([]byte, error)
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// Analyzer extracts a structured Analysis from a transcription.
type Analyzer interface {
	Analyze(ctx context.Context, transcription string) (*domain.Analysis, error)

	// Model names the model used, recorded with each result.
	Model() string
}

var supportedExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".mp4":  "audio/mp4",
	".mpeg": "audio/mpeg",
	".mpga": "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".webm": "audio/webm",
}

// IsSupportedFormat reports whether the file extension is one of the
// supported audio containers, or failing that, whether the MIME type is an
// audio type.
func IsSupportedFormat(fileName, mimeType string) bool {
	if _, ok := supportedExtensions[strings.ToLower(filepath.Ext(fileName))]; ok {
		return true
	}
	return strings.HasPrefix(strings.ToLower(mimeType), "audio/")
}

// ResolveMimeType prefers an explicit audio MIME type and falls back to
// one inferred from the file extension.
func ResolveMimeType(fileName, mimeType string) string {
	if strings.HasPrefix(strings.ToLower(mimeType), "audio/") {
		return mimeType
	}
	if mt, ok := supportedExtensions[strings.ToLower(filepath.Ext(fileName))]; ok {
		return mt
	}
	return mimeType
}
