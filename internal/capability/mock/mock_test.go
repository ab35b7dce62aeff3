package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scribe-api/internal/capability"
	"github.com/phrazzld/scribe-api/internal/domain"
)

func TestLoader(t *testing.T) {
	l := NewLoader()
	l.Put("a.mp3", []byte("abc"))

	data, err := l.Load(context.Background(), "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	_, err = l.Load(context.Background(), "missing.mp3")
	assert.ErrorIs(t, err, capability.ErrNotFound)
	assert.Equal(t, 2, l.Calls)
}

func TestTranscriberScriptedErrors(t *testing.T) {
	boom := errors.New("boom")
	m := &Transcriber{Text: "hello", Errs: []error{boom, nil}}
	audio := capability.Audio{Data: []byte("x"), FileName: "a.wav", MimeType: "audio/wav"}

	_, err := m.Transcribe(context.Background(), audio)
	assert.ErrorIs(t, err, boom)

	text, err := m.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestTranscriberRejectsUnsupportedAndEmpty(t *testing.T) {
	m := &Transcriber{}

	_, err := m.Transcribe(context.Background(), capability.Audio{Data: []byte("x"), FileName: "a.txt", MimeType: "text/plain"})
	assert.ErrorIs(t, err, capability.ErrUnsupportedFormat)

	_, err = m.Transcribe(context.Background(), capability.Audio{FileName: "a.mp3"})
	assert.ErrorIs(t, err, capability.ErrEmptyResult)
}

func TestAnalyzerReturnsCopy(t *testing.T) {
	fixed := &domain.Analysis{Event: "standup", DurationMinutes: 5, Category: domain.CategoryMeeting, ActionItems: []string{"ship"}}
	m := &Analyzer{Result: fixed}

	got, err := m.Analyze(context.Background(), "text")
	require.NoError(t, err)
	got.ActionItems[0] = "changed"
	assert.Equal(t, "ship", fixed.ActionItems[0])
	assert.Equal(t, MockModel, m.Model())
}
