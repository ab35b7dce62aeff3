package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/phrazzld/scribe-api/internal/capability"
	"github.com/phrazzld/scribe-api/internal/config"
)

const transcriptionPrompt = "Transcribe this audio recording verbatim. " +
	"Keep the original language of the speaker. " +
	"Return only the transcription text with no commentary."

// Transcriber implements capability.Transcriber by sending inline audio to
// a Gemini model.
type Transcriber struct {
	caller caller
	model  string
	logger *slog.Logger
}

// NewTranscriber returns a Transcriber using gen for API calls. Pass
// client.Models for a live client.
func NewTranscriber(gen contentGenerator, cfg config.LLMConfig, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gemini_transcriber")
	return &Transcriber{
		caller: newCaller(gen, logger, cfg),
		model:  cfg.TranscriptionModel,
		logger: logger,
	}
}

// Transcribe returns the spoken text of audio.
func (t *Transcriber) Transcribe(ctx context.Context, audio capability.Audio) (string, error) {
	if !capability.IsSupportedFormat(audio.FileName, audio.MimeType) {
		return "", fmt.Errorf("%w: %s (%s)", capability.ErrUnsupportedFormat, audio.FileName, audio.MimeType)
	}
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("%w: audio is empty", capability.ErrEmptyResult)
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: transcriptionPrompt},
			{InlineData: &genai.Blob{
				Data:     audio.Data,
				MIMEType: capability.ResolveMimeType(audio.FileName, audio.MimeType),
			}},
		},
	}}

	text, err := t.caller.generate(ctx, t.model, contents, nil)
	if err != nil {
		return "", asServiceError(err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", capability.ErrEmptyResult
	}

	t.logger.InfoContext(ctx, "transcription completed",
		"file_name", audio.FileName,
		"chars", len(text))
	return text, nil
}

var _ capability.Transcriber = (*Transcriber)(nil)
