package client

import (
	"fmt"
)

// APIError represents a non-2xx response from the deploy server.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server request failed with status %d", e.Status)
	}
	return fmt.Sprintf("server request failed (%d): %s", e.Status, e.Message)
}

// TransportError marks a failure that may succeed when the request is repeated:
// network errors, timeouts, 5xx responses and unstructured error bodies.
type TransportError struct {
	Status int // 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("transport error: %v", e.Err)
	}
	return fmt.Sprintf("transport error (status %d): %v", e.Status, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// LocalError marks a failure reading the archive from disk.
type LocalError struct {
	Op   string
	Path string
	Err  error
}

func (e *LocalError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalError) Unwrap() error { return e.Err }
