package proxy

import "fmt"

// ConnectionError is fatal to the session that produced it: a target
// failed to connect during Broadcaster startup, so the whole session
// aborts rather than running with a missing target (spec.md §4.3).
type ConnectionError struct {
	Target string
	Cause  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to target %s: %v", e.Target, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }
