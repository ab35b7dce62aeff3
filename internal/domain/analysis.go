package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Category classifies what a recording is about.
type Category string

// The fixed set of categories the analysis may assign.
const (
	CategoryMeeting       Category = "meeting"
	CategoryCall          Category = "call"
	CategoryBrainstorming Category = "brainstorming"
	CategoryReview        Category = "review"
	CategoryPlanning      Category = "planning"
	CategoryLearning      Category = "learning"
	CategoryOther         Category = "other"
)

// ErrMalformedAnalysis is returned when analysis output is missing required
// fields or cannot be parsed.
var ErrMalformedAnalysis = errors.New("malformed analysis output")

// Categories returns all valid categories in display order.
func Categories() []Category {
	return []Category{
		CategoryMeeting,
		CategoryCall,
		CategoryBrainstorming,
		CategoryReview,
		CategoryPlanning,
		CategoryLearning,
		CategoryOther,
	}
}

// NormalizeCategory maps a free-form label onto the fixed set.
// Unknown labels become CategoryOther.
func NormalizeCategory(label string) Category {
	candidate := Category(strings.ToLower(strings.TrimSpace(label)))
	for _, c := range Categories() {
		if c == candidate {
			return c
		}
	}
	return CategoryOther
}

// Analysis is the structured payload extracted from a transcription.
type Analysis struct {
	Event           string   `json:"event"`
	DurationMinutes int      `json:"duration_minutes"`
	Category        Category `json:"category"`
	ActionItems     []string `json:"action_items"`
}

// ParseAnalysis decodes raw model output into an Analysis.
//
// The output may be wrapped in a markdown code fence. All four fields are
// required; duration_minutes may be a number or a numeric string, and an
// unknown category is replaced with "other".
func ParseAnalysis(raw string) (*Analysis, error) {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedAnalysis)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}

	for _, key := range []string{"event", "duration_minutes", "category", "action_items"} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: missing '%s' field", ErrMalformedAnalysis, key)
		}
	}

	var analysis Analysis
	if err := json.Unmarshal(fields["event"], &analysis.Event); err != nil {
		return nil, fmt.Errorf("%w: 'event' must be a string", ErrMalformedAnalysis)
	}

	var category string
	if err := json.Unmarshal(fields["category"], &category); err != nil {
		return nil, fmt.Errorf("%w: 'category' must be a string", ErrMalformedAnalysis)
	}
	analysis.Category = NormalizeCategory(category)

	if err := json.Unmarshal(fields["action_items"], &analysis.ActionItems); err != nil {
		return nil, fmt.Errorf("%w: 'action_items' must be an array of strings", ErrMalformedAnalysis)
	}
	if analysis.ActionItems == nil {
		analysis.ActionItems = []string{}
	}

	duration, err := parseDuration(fields["duration_minutes"])
	if err != nil {
		return nil, err
	}
	analysis.DurationMinutes = duration

	return &analysis, nil
}

func parseDuration(raw json.RawMessage) (int, error) {
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return int(math.Round(number)), nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		n, convErr := strconv.Atoi(strings.TrimSpace(text))
		if convErr == nil {
			return n, nil
		}
	}

	return 0, fmt.Errorf("%w: 'duration_minutes' must be a valid integer", ErrMalformedAnalysis)
}

func stripCodeFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = cleaned[len("```json"):]
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = cleaned[len("```"):]
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}
