// Package script provides the external script evaluation worker behind
// a scripted Hook. The request/response contract here is the boundary
// spec.md §1 calls out as an external collaborator; internal/hook never
// imports this package directly — callers wrap a Worker in a
// hook.TriggerFunc so the hook chain stays engine-agnostic.
package script

import (
	"fmt"

	"github.com/fcoury/yprox/internal/hook"
)

// Request is one script evaluation request, matching the scope pushed
// into the original implementation's embedded interpreter: direction,
// target name, and the payload bytes.
type Request struct {
	Direction  hook.Direction
	TargetName string
	Data       []byte
}

// Response carries the script's verdict. Data is nil when the script
// produced no replacement value (keep).
type Response struct {
	Data []byte
}

// Worker evaluates one script body against a Request. Implementations
// must be safe to call repeatedly but need not be safe for concurrent
// use — the Hook Executor that owns a Worker only ever calls it from its
// own single goroutine (spec.md §4.5's non-reentrant guarantee).
type Worker interface {
	Eval(script string, req Request) (Response, error)
}

// Error reports a script evaluation failure, surfaced to callers as a
// failed hook.Response per spec.md §7's ScriptError taxonomy entry.
type Error struct {
	TargetName string
	Cause      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("script error for target %s: %v", e.TargetName, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }
