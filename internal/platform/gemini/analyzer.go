package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/phrazzld/scribe-api/internal/capability"
	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/domain"
)

const analysisInstruction = `You analyze voice recording transcriptions and extract structured productivity data:

1. event: a concise summary of what the recording is about (max 100 characters)
2. duration_minutes: the duration mentioned or estimated, as an integer number of minutes
3. category: one of meeting, call, brainstorming, review, planning, learning, other
4. action_items: specific tasks or commitments mentioned (empty array if none)

If the duration is not mentioned, estimate it from the content.
Support both English and Arabic content.
Return only a JSON object with exactly these four keys.`

// Analyzer implements capability.Analyzer with a Gemini model in JSON mode.
type Analyzer struct {
	caller caller
	model  string
	logger *slog.Logger
}

// NewAnalyzer returns an Analyzer using gen for API calls.
func NewAnalyzer(gen contentGenerator, cfg config.LLMConfig, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gemini_analyzer")
	return &Analyzer{
		caller: newCaller(gen, logger, cfg),
		model:  cfg.AnalysisModel,
		logger: logger,
	}
}

// Model returns the configured analysis model name.
func (a *Analyzer) Model() string {
	return a.model
}

// Analyze extracts an Analysis from transcription.
func (a *Analyzer) Analyze(ctx context.Context, transcription string) (*domain.Analysis, error) {
	if strings.TrimSpace(transcription) == "" {
		return nil, fmt.Errorf("%w: transcription is empty", capability.ErrMalformedOutput)
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: transcription}},
	}}
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: analysisInstruction}},
		},
		ResponseMIMEType: "application/json",
	}

	raw, err := a.caller.generate(ctx, a.model, contents, genConfig)
	if err != nil {
		return nil, asServiceError(err)
	}

	analysis, err := domain.ParseAnalysis(raw)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to parse analysis output",
			"error", err,
			"output_length", len(raw))
		return nil, fmt.Errorf("%w: %w", capability.ErrMalformedOutput, err)
	}

	a.logger.InfoContext(ctx, "analysis completed",
		"category", analysis.Category,
		"action_items", len(analysis.ActionItems))
	return analysis, nil
}

var _ capability.Analyzer = (*Analyzer)(nil)
