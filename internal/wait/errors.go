package wait

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeoutExceeded is the sentinel every poll timeout unwraps to
var ErrTimeoutExceeded = errors.New("timeout exceeded")

// TimeoutError reports a condition that was not satisfied within its bound
type TimeoutError struct {
	Condition string
	Timeout   time.Duration
	Elapsed   time.Duration
	Attempts  int
	LastErr   error // last probe error, nil when the probe ran cleanly but never matched
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s (%d attempts)", e.Elapsed.Round(time.Millisecond), e.Condition, e.Attempts)
	if e.LastErr != nil {
		msg += fmt.Sprintf(": last error: %v", e.LastErr)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeoutExceeded
}

// AsTimeout extracts a TimeoutError from an error chain
func AsTimeout(err error) (*TimeoutError, bool) {
	var te *TimeoutError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
