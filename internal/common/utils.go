package common

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// StringPtr returns a pointer to the given string
func StringPtr(s string) *string {
	return &s
}

// WriteJSON writes v as a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, "Error: %v", err)
	}
}

// ReturnJSONError writes a JSON error response with the given status code and message
func ReturnJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    statusCode,
			"message": message,
		},
	}

	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		// If JSON encoding fails, fall back to plain text
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(fmt.Sprintf("Error: %s", message)))
	}
}
