package platform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Storage is the platform's object storage for binary payloads.
type Storage interface {
	// Upload stores content and returns a URL it can be downloaded from.
	Upload(ctx context.Context, content []byte) (string, error)
	// Download fetches content previously stored at url.
	Download(ctx context.Context, url string) ([]byte, error)
}

// StorageError is a non-2xx response from the storage API.
type StorageError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: status %d, body: %s", e.Op, e.StatusCode, e.Body)
}

// StorageClient talks to the platform storage API using signed URLs.
type StorageClient struct {
	apiURI     string
	username   string
	apiKey     string
	httpClient *http.Client
}

// NewStorageClient creates a storage client. A nil httpClient gets a 30s timeout client.
func NewStorageClient(apiURI, username, apiKey string, httpClient *http.Client) *StorageClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &StorageClient{
		apiURI:     strings.TrimRight(apiURI, "/"),
		username:   username,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type signedURL struct {
	PutURL string `json:"put_url"`
	GetURL string `json:"get_url"`
}

// Upload obtains a signed URL pair, PUTs content to it and returns the get URL.
func (c *StorageClient) Upload(ctx context.Context, content []byte) (string, error) {
	urls, err := c.createSignedURL(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, urls.PutURL, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(content))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return "", &StorageError{Op: "upload attachment", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return urls.GetURL, nil
}

// Download fetches the bytes behind a storage URL.
func (c *StorageClient) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StorageError{Op: "download attachment", StatusCode: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

func (c *StorageClient) createSignedURL(ctx context.Context) (signedURL, error) {
	var urls signedURL
	if c.apiURI == "" {
		return urls, fmt.Errorf("platform storage is not configured")
	}

	url := c.apiURI + "/v2/resources/storage/signed-url"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return urls, fmt.Errorf("failed to create request: %w", err)
	}
	c.addAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return urls, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return urls, &StorageError{Op: "create signed url", StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(&urls); err != nil {
		return urls, fmt.Errorf("failed to decode response: %w", err)
	}
	if urls.PutURL == "" || urls.GetURL == "" {
		return urls, fmt.Errorf("signed url response is missing put_url or get_url")
	}
	return urls, nil
}

// addAuthHeader adds the platform's basic authentication header
func (c *StorageClient) addAuthHeader(req *http.Request) {
	auth := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.apiKey))
	req.Header.Set("Authorization", "Basic "+auth)
}
