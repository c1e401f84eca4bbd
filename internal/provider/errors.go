package provider

import "fmt"

// AuthError is a missing or invalid credential. Fatal; detected before any
// network call when possible.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }

// ValidationError is a malformed request input. Fatal.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid request: " + e.Reason }

// HTTPError is a non-2xx response from the provider, carrying whatever
// message body the provider supplied.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned HTTP %d: %s", e.StatusCode, e.Body)
}

// RemoteTaskError means the provider accepted the task but reported that
// processing failed, with whatever diagnostic text it returned.
type RemoteTaskError struct {
	TaskID  string
	Message string
}

func (e *RemoteTaskError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote task %s failed", e.TaskID)
	}
	return fmt.Sprintf("remote task %s failed: %s", e.TaskID, e.Message)
}
