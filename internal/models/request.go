package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EnqueueRequest represents a request to enqueue a job.
// ID and MaxRetries are optional; nil means "use the default".
type EnqueueRequest struct {
	ID         *string `json:"id,omitempty"`
	Command    string  `json:"command"`
	MaxRetries *int    `json:"max_retries,omitempty"`
}

// ParseEnqueueRequest accepts either a bare shell command or a JSON object
// of the form {"id": "...", "command": "...", "max_retries": N}.
// Input that starts with '{' must be a well-formed object with no unknown fields.
func ParseEnqueueRequest(payload string) (*EnqueueRequest, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, errors.New("payload is empty")
	}

	if !strings.HasPrefix(trimmed, "{") {
		return &EnqueueRequest{Command: trimmed}, nil
	}

	var req EnqueueRequest
	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("malformed job payload: %w", err)
	}
	if dec.More() {
		return nil, errors.New("malformed job payload: trailing data after object")
	}

	return &req, nil
}
