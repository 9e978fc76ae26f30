package otrs

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials is wrapped by every credential validation error.
var ErrMissingCredentials = errors.New("missing credentials")

// HTTPError is a non-2xx response from the OTRS web service.
// URL never contains the password.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("failed to %s %s: status %d, body: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// APIError is an error object OTRS returns with a 2xx status.
type APIError struct {
	Code    string `json:"ErrorCode"`
	Message string `json:"ErrorMessage"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("otrs error %s: %s", e.Code, e.Message)
}
