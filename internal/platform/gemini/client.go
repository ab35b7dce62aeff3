package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/phrazzld/scribe-api/internal/capability"
	"github.com/phrazzld/scribe-api/internal/config"
)

// contentGenerator is the subset of the genai client used here.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// NewClient creates a genai client for the Gemini API backend.
func NewClient(ctx context.Context, cfg config.LLMConfig) (*genai.Client, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}
	return client, nil
}

// caller issues GenerateContent requests with exponential backoff.
type caller struct {
	gen        contentGenerator
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
}

func newCaller(gen contentGenerator, logger *slog.Logger, cfg config.LLMConfig) caller {
	return caller{
		gen:        gen,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryDelay,
	}
}

// generate returns the concatenated text of the first candidate.
//
// API errors are retried up to maxRetries times with delay
// baseDelay * 2^attempt * (0.5 + rand(0, 0.5)). Empty and blocked responses
// are returned immediately.
func (c caller) generate(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	genConfig *genai.GenerateContentConfig,
) (string, error) {
	maxRetries := c.maxRetries
	if maxRetries < 0 {
		c.logger.WarnContext(ctx, "invalid max retries value, using default", "max_retries", 3)
		maxRetries = 3
	}
	baseDelay := c.baseDelay
	if baseDelay <= 0 {
		c.logger.WarnContext(ctx, "invalid retry delay value, using default", "retry_delay", "2s")
		baseDelay = 2 * time.Second
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1
		c.logger.DebugContext(ctx, "making Gemini API call",
			"model", model,
			"attempt", attemptNum,
			"max_attempts", maxRetries+1)

		resp, err := c.gen.GenerateContent(ctx, model, contents, genConfig)
		if err == nil {
			text, respErr := responseText(resp)
			if respErr != nil {
				c.logger.WarnContext(ctx, "permanent Gemini response error, not retrying",
					"model", model,
					"error", respErr)
				return "", respErr
			}
			return text, nil
		}

		c.logger.ErrorContext(ctx, "Gemini API call failed",
			"model", model,
			"attempt", attemptNum,
			"error", err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %v", capability.ErrServiceError, ctxErr)
		}
		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				capability.ErrServiceError, maxRetries, err)
		}

		backoff := float64(baseDelay) * math.Pow(2, float64(attempt))
		jitter := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoff * jitter)

		c.logger.InfoContext(ctx, "retrying Gemini call after delay",
			"attempt", attemptNum,
			"delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", capability.ErrServiceError, ctx.Err())
		}
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", ErrInvalidResponse)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

// asServiceError wraps err with capability.ErrServiceError unless it
// already carries it.
func asServiceError(err error) error {
	if errors.Is(err, capability.ErrServiceError) {
		return err
	}
	return fmt.Errorf("%w: %w", capability.ErrServiceError, err)
}
