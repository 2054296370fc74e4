package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized indicates the document service rejected the bearer
	// credential. The session has already been ended when a caller sees it.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the resource does not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrNotLoggedIn is returned for authenticated calls made without a session.
	ErrNotLoggedIn = errors.New("not logged in")
)

// maxErrorBody caps how much of an error response is read for its detail.
const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the document service.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("document service: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("document service: %d: %s", e.Status, e.Detail)
}

// Is maps the status onto the package sentinels so callers can use errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// errorBody is FastAPI's HTTPException shape. Validation failures carry a
// list in detail instead of a string.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// readAPIError drains and closes resp.Body and converts it into an *APIError.
func readAPIError(resp *http.Response) *APIError {
	defer resp.Body.Close()
	apiErr := &APIError{Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var body errorBody
	if json.Unmarshal(data, &body) != nil || len(body.Detail) == 0 {
		apiErr.Detail = strings.TrimSpace(string(data))
		return apiErr
	}
	var detail string
	if json.Unmarshal(body.Detail, &detail) == nil {
		apiErr.Detail = detail
	} else {
		apiErr.Detail = string(body.Detail)
	}
	return apiErr
}
