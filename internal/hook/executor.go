package hook

import "context"

// call bundles one request with a one-shot reply channel. Because each
// caller owns its own reply channel, the executor goroutine itself never
// needs to demultiplex responses across callers — it only needs to
// process one call's request channel entry at a time, which is what
// makes it a synchronous oracle from every caller's point of view.
type call struct {
	req   Request
	reply chan result
}

type result struct {
	resp Response
	err  error
}

// Executor is the single long-running goroutine that serializes every
// hook invocation for one direction. Two independent Executors are used
// by the proxy — one for the inbound (TargetToClient) path and one for
// the outbound (ClientToTarget) path — so a blocked script on one
// direction can never deadlock the other (spec.md §4.5).
type Executor struct {
	chain   Chain
	calls   chan call
	started chan struct{}
}

// NewExecutor builds an Executor over a fixed, already-built Chain. The
// chain is never mutated after construction, so it can be read without
// synchronization from the executor goroutine.
func NewExecutor(chain Chain) *Executor {
	return &Executor{
		chain:   chain,
		calls:   make(chan call),
		started: make(chan struct{}),
	}
}

// Run is the executor's goroutine body. It must be started with `go
// e.Run(ctx)` exactly once, before any call to Dispatch. It returns when
// ctx is cancelled.
func (e *Executor) Run(ctx context.Context) {
	close(e.started)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-e.calls:
			resp, err := e.evaluate(c.req)
			c.reply <- result{resp: resp, err: err}
		}
	}
}

// Dispatch submits one request and blocks for its response, exactly as
// spec.md §3's "synchronous oracle" invariant requires: the caller does
// not send its next request until this one's response is back.
func (e *Executor) Dispatch(ctx context.Context, req Request) (Response, error) {
	reply := make(chan result, 1)
	select {
	case e.calls <- call{req: req, reply: reply}:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.resp, r.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// evaluate runs the chain algorithm of spec.md §4.5 step 2-3: walk the
// chain in registered order, skip non-matching hooks, replace on Some,
// keep on None, abort the whole chain on the first error. Every matching
// hook is invoked with the request's original, unmodified data — not the
// previous hook's output — exactly as original_source/src/hooks/mod.rs's
// `hook_executor` calls each `trigger_fn` with `request.clone()`. A hook
// that replaces overwrites the running result; a hook that keeps leaves
// it as whatever the last replacing hook (or the original data, if none
// has replaced yet) left it. This is last-matching-hook-wins, not a
// transform pipeline: a hook never sees another hook's rewrite.
func (e *Executor) evaluate(req Request) (Response, error) {
	data := req.Data
	for _, h := range e.chain {
		if !h.Matches(req) {
			continue
		}
		out, err := h.Trigger.Invoke(req)
		if err != nil {
			return Response{}, &Error{TargetName: req.TargetName, Cause: err}
		}
		if out != nil {
			data = out
		}
	}
	return Response{Data: data}, nil
}
