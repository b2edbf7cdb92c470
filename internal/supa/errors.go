package supa

import "errors"

// CodeNoRows is the platform's "no rows returned" error code. A single-row
// query that matches nothing fails with this code; callers doing existence
// checks treat it as a negative result, not a backend error.
const CodeNoRows = "PGRST116"

// APIError represents a platform error response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsNoRows reports whether err is the expected-empty single-row condition.
func IsNoRows(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == CodeNoRows
	}
	return false
}
