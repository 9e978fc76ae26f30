package otrs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/tuannvm/otrs-connector/internal/logging"
	"github.com/tuannvm/otrs-connector/internal/models"
	"github.com/tuannvm/otrs-connector/internal/platform"
)

// Client represents an OTRS GenericInterface web service client
type Client struct {
	creds      models.Credentials
	httpClient *http.Client
	storage    platform.Storage
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithStorage sets the platform storage used for attachment content.
func WithStorage(s platform.Storage) Option {
	return func(c *Client) { c.storage = s }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			return
		}
		h := *c.httpClient
		h.Timeout = d
		c.httpClient = &h
	}
}

// NewClient creates a new OTRS client. No request is made.
func NewClient(creds models.Credentials, opts ...Option) (*Client, error) {
	switch {
	case strings.TrimSpace(creds.BaseURL) == "":
		return nil, fmt.Errorf("%w: you must specify a host", ErrMissingCredentials)
	case creds.User == "":
		return nil, fmt.Errorf("%w: you must specify a user", ErrMissingCredentials)
	case creds.Password == "":
		return nil, fmt.Errorf("%w: you must specify a password for the user", ErrMissingCredentials)
	}
	creds.BaseURL = strings.TrimRight(strings.TrimSpace(creds.BaseURL), "/")

	c := &Client{
		creds: creds,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SortKeys is a SortBy/OrderBy value. One key is sent as a string,
// several as the parallel array OTRS expects.
type SortKeys []string

func (s SortKeys) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

// SearchFilters are the TicketSearch parameters this connector uses.
// Extra carries any other TicketSearch parameter.
type SearchFilters struct {
	TicketNumber                  string   `json:"TicketNumber,omitempty"`
	Title                         string   `json:"Title,omitempty"`
	TicketCreateTimeNewerDate     string   `json:"TicketCreateTimeNewerDate,omitempty"`
	TicketCreateTimeOlderDate     string   `json:"TicketCreateTimeOlderDate,omitempty"`
	TicketChangeTimeNewerDate     string   `json:"TicketChangeTimeNewerDate,omitempty"`
	TicketChangeTimeOlderDate     string   `json:"TicketChangeTimeOlderDate,omitempty"`
	TicketLastChangeTimeNewerDate string   `json:"TicketLastChangeTimeNewerDate,omitempty"`
	TicketLastChangeTimeOlderDate string   `json:"TicketLastChangeTimeOlderDate,omitempty"`
	SortBy                        SortKeys `json:"SortBy,omitempty"`
	OrderBy                       SortKeys `json:"OrderBy,omitempty"`
	Limit                         int      `json:"Limit,omitempty"`
	Queues                        []string `json:"Queues,omitempty"`

	Extra map[string]interface{} `json:"-"`
}

func (f SearchFilters) MarshalJSON() ([]byte, error) {
	type alias SearchFilters
	data, err := json.Marshal(alias(f))
	if err != nil || len(f.Extra) == 0 {
		return data, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	for k, v := range f.Extra {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// GetFilters are the TicketGet flags.
type GetFilters struct {
	AllArticles   bool
	ArticleLimit  int
	DynamicFields bool
	Attachments   bool
}

func (f GetFilters) values() url.Values {
	v := url.Values{}
	if f.AllArticles {
		v.Set("AllArticles", "1")
	}
	if f.ArticleLimit > 0 {
		v.Set("ArticleLimit", fmt.Sprint(f.ArticleLimit))
	}
	if f.DynamicFields {
		v.Set("DynamicFields", "1")
	}
	if f.Attachments {
		v.Set("Attachments", "1")
	}
	return v
}

// CreateTicket normalizes req and creates a ticket
func (c *Client) CreateTicket(ctx context.Context, req models.TicketRequest) (*models.TicketResult, error) {
	payload, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	var result models.TicketResult
	if err := c.request(ctx, http.MethodPost, []string{"Ticket"}, nil, payload, &result); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	return &result, nil
}

// UpdateTicket normalizes req and applies it to the ticket
func (c *Client) UpdateTicket(ctx context.Context, id models.ID, req models.TicketRequest) (*models.TicketResult, error) {
	payload, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	var result models.TicketResult
	if err := c.request(ctx, http.MethodPatch, []string{"Ticket", id.String()}, nil, payload, &result); err != nil {
		return nil, fmt.Errorf("failed to update ticket %s: %w", id, err)
	}
	return &result, nil
}

// AddArticle adds an article to a ticket through a ticket update
func (c *Client) AddArticle(ctx context.Context, id models.ID, article models.Article) (*models.TicketResult, error) {
	attachments := article.Attachment
	article.Attachment = nil
	return c.UpdateTicket(ctx, id, models.TicketRequest{
		Article:    &article,
		Attachment: attachments,
	})
}

// SearchTickets returns the ids of the tickets matching filters, never nil
func (c *Client) SearchTickets(ctx context.Context, filters SearchFilters) ([]models.ID, error) {
	var resp struct {
		TicketID models.Seq[models.ID] `json:"TicketID"`
	}
	if err := c.request(ctx, http.MethodPost, []string{"Tickets"}, nil, filters, &resp); err != nil {
		return nil, fmt.Errorf("failed to search tickets: %w", err)
	}
	if resp.TicketID == nil {
		return []models.ID{}, nil
	}
	return resp.TicketID, nil
}

// GetTicket fetches a single ticket
func (c *Client) GetTicket(ctx context.Context, id models.ID, filters GetFilters) (*models.Ticket, error) {
	tickets, err := c.GetTickets(ctx, []models.ID{id}, filters)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, fmt.Errorf("ticket %s not found", id)
	}
	return &tickets[0], nil
}

// GetTickets fetches tickets in one request and returns them in the order of ids.
// Tickets the service did not return are skipped.
func (c *Client) GetTickets(ctx context.Context, ids []models.ID, filters GetFilters) ([]models.Ticket, error) {
	if len(ids) == 0 {
		return []models.Ticket{}, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}

	var resp struct {
		Ticket models.Seq[models.Ticket] `json:"Ticket"`
	}
	if err := c.request(ctx, http.MethodGet, []string{"Ticket", strings.Join(parts, ",")}, filters.values(), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get tickets: %w", err)
	}

	byID := make(map[models.ID]models.Ticket, len(resp.Ticket))
	for _, t := range resp.Ticket {
		byID[t.TicketID] = t
	}
	tickets := make([]models.Ticket, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			log.Warnf("Ticket %s was requested but not returned", id)
			continue
		}
		tickets = append(tickets, t)
		delete(byID, id)
	}
	return tickets, nil
}

// UploadAttachmentsToPlatform replaces the base64 content of every attachment
// with a platform download URL. The ticket is modified in place.
func (c *Client) UploadAttachmentsToPlatform(ctx context.Context, ticket *models.Ticket) error {
	for i := range ticket.Article {
		article := &ticket.Article[i]
		for j := range article.Attachment {
			att := &article.Attachment[j]
			if att.Content == "" {
				continue
			}
			if c.storage == nil {
				return fmt.Errorf("platform storage is not configured")
			}
			content, err := base64.StdEncoding.DecodeString(att.Content)
			if err != nil {
				return fmt.Errorf("failed to decode attachment %q of article %s: %w", att.Filename, article.ArticleID, err)
			}
			downloadURL, err := c.storage.Upload(ctx, content)
			if err != nil {
				return fmt.Errorf("failed to upload attachment %q of article %s: %w", att.Filename, article.ArticleID, err)
			}
			att.Content = downloadURL
		}
	}
	return nil
}

// prepare normalizes req and inlines attachment content.
func (c *Client) prepare(ctx context.Context, req models.TicketRequest) (models.TicketRequest, error) {
	payload, err := MapInputToTicket(req)
	if err != nil {
		return payload, fmt.Errorf("failed to map ticket input: %w", err)
	}
	payload.Attachment, err = c.resolveAttachments(ctx, payload.Attachment)
	if err != nil {
		return payload, err
	}
	return payload, nil
}

// resolveAttachments returns attachments whose content is inline base64,
// downloading content given as a platform URL.
func (c *Client) resolveAttachments(ctx context.Context, atts models.Seq[models.Attachment]) (models.Seq[models.Attachment], error) {
	if len(atts) == 0 {
		return atts, nil
	}
	out := make(models.Seq[models.Attachment], len(atts))
	for i, att := range atts {
		if isURL(att.Content) {
			if c.storage == nil {
				return nil, fmt.Errorf("platform storage is not configured")
			}
			data, err := c.storage.Download(ctx, att.Content)
			if err != nil {
				return nil, fmt.Errorf("failed to download attachment %q: %w", att.Filename, err)
			}
			att.Content = base64.StdEncoding.EncodeToString(data)
		}
		out[i] = att
	}
	return out, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// request performs an authenticated call. segments are escaped and joined onto
// the base URL; body, when not nil, is sent as JSON; the response is decoded into out.
func (c *Client) request(ctx context.Context, method string, segments []string, params url.Values, body, out interface{}) error {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("UserLogin", c.creds.User)
	query.Set("Password", c.creds.Password)

	base := c.creds.BaseURL + "/" + strings.Join(escaped, "/")
	fullURL := base + "?" + query.Encode()
	query.Set("Password", "***")
	logURL := base + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		log.Debugf("OTRS request: %s %s body: %s", method, logURL, truncate(string(payload)))
		reader = bytes.NewReader(payload)
	} else {
		log.Debugf("OTRS request: %s %s", method, logURL)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", logURL, redact(err, c.creds.Password))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Method: method, URL: logURL, StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var envelope struct {
		Error *APIError `json:"Error"`
	}
	if len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, &envelope); err == nil && envelope.Error != nil {
		return envelope.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// redactedError hides the password in transport errors, which quote the request URL.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, password string) error {
	secret := url.QueryEscape(password)
	if password == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***"), err: err}
}

// truncate truncates a string to a reasonable length for logging
func truncate(s string) string {
	const maxLength = 1000
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength] + "... [truncated]"
}
