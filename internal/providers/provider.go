package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is a non-success HTTP response from the hosting API
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether repeating the request may succeed
func (e *StatusError) Temporary() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

// GraphQLError is an error payload returned with a 200 response. The query reached
// the server and was rejected, so repeating it does not help.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// IsRetryable reports whether err is worth another attempt
func IsRetryable(err error) bool {
	var gqlErr *GraphQLError
	if errors.As(err, &gqlErr) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}
