package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ContentType of every message body.
const ContentType = "application/json"

// Encode renders a resource identifier as a JSON string scalar.
func Encode(resourceID uuid.UUID) []byte {
	body, _ := json.Marshal(resourceID.String())
	return body
}

// Decode extracts the resource identifier from a message body. Both a JSON
// string scalar and an object of the form {"resourceId": "..."} are
// accepted.
func Decode(body []byte) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return uuid.Nil, fmt.Errorf("%w: empty body", ErrMalformedMessage)
	}

	var raw string
	if strings.HasPrefix(trimmed, "{") {
		var envelope struct {
			ResourceID string `json:"resourceId"`
		}
		if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
			return uuid.Nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		raw = envelope.ResourceID
	} else if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid resource id %q", ErrMalformedMessage, raw)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: nil resource id", ErrMalformedMessage)
	}
	return id, nil
}
