package codec

import "fmt"

// RejectedError is an error result returned by the codec for a command.
type RejectedError struct {
	Action string
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("codec action %s rejected: http %d", e.Action, e.Status)
	}
	return fmt.Sprintf("codec action %s rejected: %s", e.Action, e.Reason)
}

// TimeoutError indicates a request timed out.
type TimeoutError struct {
	Host   string
	Action string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("codec action %s on %s timed out", e.Action, e.Host)
}

// UnreachableError indicates the codec could not be reached.
type UnreachableError struct {
	Host   string
	Action string
	Err    error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("codec action %s on %s unreachable: %v", e.Action, e.Host, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// UnauthorizedError means the codec refused the configured credentials.
// Retrying the same request cannot succeed.
type UnauthorizedError struct {
	Host string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("codec %s rejected credentials", e.Host)
}
