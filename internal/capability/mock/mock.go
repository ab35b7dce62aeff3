// Package mock provides configurable in-memory capability implementations
// used by tests and by the worker when llm.provider is "mock".
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/phrazzld/scribe-api/internal/capability"
	"github.com/phrazzld/scribe-api/internal/domain"
)

// MockModel is recorded as the provenance of results produced by Analyzer.
const MockModel = "mock"

// Loader serves audio from an in-memory map.
type Loader struct {
	mu      sync.Mutex
	objects map[string][]byte

	// Err, when set, is returned by every Load call.
	Err error
	// Calls counts Load invocations.
	Calls int
}

// NewLoader returns an empty Loader.
func NewLoader() *Loader {
	return &Loader{objects: make(map[string][]byte)}
}

// Put stores data under key.
func (l *Loader) Put(key string, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.objects[key] = data
}

// Load implements capability.ResourceLoader.
func (l *Loader) Load(_ context.Context, key string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls++
	if l.Err != nil {
		return nil, l.Err
	}
	data, ok := l.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", capability.ErrNotFound, key)
	}
	return data, nil
}

// Transcriber returns a fixed transcription or a scripted sequence of errors.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned on success. When empty, a transcription derived from
	// the file name is returned.
	Text string
	// Errs is consumed one element per call; a nil element means success.
	Errs []error
	// Panic makes every call panic with this value.
	Panic any
	// Calls counts Transcribe invocations.
	Calls int
}

// Transcribe implements capability.Transcriber.
func (m *Transcriber) Transcribe(_ context.Context, audio capability.Audio) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Panic != nil {
		panic(m.Panic)
	}
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		if err != nil {
			return "", err
		}
	}
	if !capability.IsSupportedFormat(audio.FileName, audio.MimeType) {
		return "", fmt.Errorf("%w: %s", capability.ErrUnsupportedFormat, audio.FileName)
	}
	if len(audio.Data) == 0 {
		return "", capability.ErrEmptyResult
	}
	if m.Text != "" {
		return m.Text, nil
	}
	return fmt.Sprintf("Transcription of %s (%d bytes).", audio.FileName, len(audio.Data)), nil
}

// Analyzer returns a fixed Analysis or a scripted sequence of errors.
type Analyzer struct {
	mu sync.Mutex

	// Result is returned on success. When nil, a generic analysis is built
	// from the transcription.
	Result *domain.Analysis
	// Errs is consumed one element per call; a nil element means success.
	Errs []error
	// Calls counts Analyze invocations.
	Calls int
}

// Analyze implements capability.Analyzer.
func (m *Analyzer) Analyze(_ context.Context, transcription string) (*domain.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if m.Result != nil {
		result := *m.Result
		result.ActionItems = append([]string{}, m.Result.ActionItems...)
		return &result, nil
	}

	event := strings.TrimSpace(transcription)
	if len(event) > 60 {
		event = event[:60]
	}
	return &domain.Analysis{
		Event:           event,
		DurationMinutes: 1,
		Category:        domain.CategoryOther,
		ActionItems:     []string{},
	}, nil
}

// Model implements capability.Analyzer.
func (m *Analyzer) Model() string {
	return MockModel
}

var (
	_ capability.ResourceLoader = (*Loader)(nil)
	_ capability.Transcriber    = (*Transcriber)(nil)
	_ capability.Analyzer       = (*Analyzer)(nil)
)
