package kumo

import "fmt"

// RemoteError is a failed exchange with the prediction service. Transient
// errors (throttling, server errors, transport failures) are safe to retry
// by the caller; nothing retries locally.
type RemoteError struct {
	StatusCode int
	Message    string
	Transient  bool
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote service returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote service unreachable: %s", e.Message)
}

// newStatusError classifies an HTTP failure status.
func newStatusError(status int, message string) *RemoteError {
	return &RemoteError{
		StatusCode: status,
		Message:    message,
		Transient:  status == 429 || status >= 500,
	}
}

// newTransportError wraps a failure that happened before any status was
// received. Connection resets and timeouts are all worth retrying.
func newTransportError(err error) *RemoteError {
	return &RemoteError{Message: err.Error(), Transient: true}
}
