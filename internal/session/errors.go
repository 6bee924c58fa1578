package session

import (
	"fmt"
	"time"
)

// AuthError reports a failed credential acquisition.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// AuthTimeoutError reports that the interactive authorization flow did not
// complete within the configured window.
type AuthTimeoutError struct {
	Timeout time.Duration
}

func (e *AuthTimeoutError) Error() string {
	return fmt.Sprintf("authorization was not completed within %s", e.Timeout)
}
