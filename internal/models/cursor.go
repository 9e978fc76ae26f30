package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Cursor is the trigger snapshot: the last ticket handed to the platform and
// the timestamp it was selected by.
type Cursor struct {
	LastProcessedTicketID   ID     `json:"lastProcessedTicketId"`
	LastProcessedTicketDate string `json:"lastProcessedTicketDate"`
}

// IsZero reports whether no ticket has been processed yet.
func (c Cursor) IsZero() bool {
	return c.LastProcessedTicketID == 0 && c.LastProcessedTicketDate == ""
}

// Before orders cursors by date, then by id. Dates share one fixed-width
// layout, so string order is time order.
func (c Cursor) Before(other Cursor) bool {
	if c.LastProcessedTicketDate != other.LastProcessedTicketDate {
		return c.LastProcessedTicketDate < other.LastProcessedTicketDate
	}
	return c.LastProcessedTicketID < other.LastProcessedTicketID
}

// ParseCursor decodes a snapshot as stored by the host. Empty input is the zero cursor.
func ParseCursor(raw json.RawMessage) (Cursor, error) {
	var c Cursor
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return c, nil
}

// Credentials identify an OTRS GenericInterface web service and its agent user.
type Credentials struct {
	BaseURL  string `json:"baseUrl"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// ArticleDetail selects how many articles TicketGet returns.
type ArticleDetail string

const (
	ArticlesNone  ArticleDetail = "none"
	ArticlesFirst ArticleDetail = "first"
	ArticlesAll   ArticleDetail = "all"
)

// StepConfig is the per-invocation configuration sent by the platform.
type StepConfig struct {
	BaseURL  string `json:"baseUrl,omitempty"`
	User     string `json:"user,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	StartDateTime      string        `json:"startDateTime,omitempty"`
	Limit              FlexString    `json:"limit,omitempty"`
	Queues             string        `json:"queues,omitempty"`
	IncludeArticles    ArticleDetail `json:"includeArticles,omitempty"`
	IncludeAttachments bool          `json:"includeAttachments,omitempty"`
}

// Credentials returns the OTRS credentials, accepting "username" as an alias of "user".
func (c StepConfig) Credentials() Credentials {
	user := c.User
	if user == "" {
		user = c.Username
	}
	return Credentials{
		BaseURL:  strings.TrimSpace(c.BaseURL),
		User:     user,
		Password: c.Password,
	}
}

// Redacted returns a copy safe for logging.
func (c StepConfig) Redacted() StepConfig {
	if c.Password != "" {
		c.Password = "***"
	}
	return c
}
