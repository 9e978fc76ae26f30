// Package platform models the integration platform a connector function runs
// inside: the message envelope, the output sink, and the platform's object storage.
package platform

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Message is the envelope the platform passes between flow steps.
type Message struct {
	ID      string            `json:"id"`
	Body    json.RawMessage   `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

// NewMessageWithBody wraps body in a message with a fresh id.
func NewMessageWithBody(body interface{}) (Message, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal message body: %w", err)
	}
	return Message{ID: uuid.NewString(), Body: data}, nil
}

// Decode unmarshals the body into v. An empty body leaves v untouched.
func (m Message) Decode(v interface{}) error {
	body := bytes.TrimSpace(m.Body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode message body: %w", err)
	}
	return nil
}
