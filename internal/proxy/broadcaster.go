package proxy

import (
	"context"
	"log/slog"
	"net"

	"github.com/fcoury/yprox/internal/hook"
)

// BroadcastRequestCapacity is the bounded capacity for a session's
// client-payload channel, per spec.md §5's backpressure design.
const BroadcastRequestCapacity = 32

// BroadcastRequest is one client payload awaiting fan-out to every
// target of a session.
type BroadcastRequest struct {
	FromAddr string
	Data     []byte
}

// Broadcaster owns a session's TargetLinks and runs the fan-out path:
// receive a client payload, run it through the outbound hook chain once
// per target, and write the (possibly per-target-different) result to
// each target in iteration order.
type Broadcaster struct {
	executor *hook.Executor
	links    []*TargetLink
}

// NewBroadcaster builds a Broadcaster bound to the process-wide outbound
// Hook Executor (spec.md §4.5: one executor instance per calling site,
// shared across every session, so a blocked script on the inbound path
// can never block the outbound path or vice versa).
func NewBroadcaster(executor *hook.Executor) *Broadcaster {
	return &Broadcaster{executor: executor}
}

// Start connects synchronously to every target, in order. A failed
// connection aborts the whole session (spec.md §4.3): startup returns a
// *ConnectionError and leaves any already-connected links for the caller
// to close via closeAll.
func (b *Broadcaster) Start(ctx context.Context, targets []TargetSpec, clientAddr string, bus chan<- ServerMessage) error {
	for _, spec := range targets {
		dialer := net.Dialer{}
		conn, err := dialer.DialContext(ctx, "tcp", spec.Addr)
		if err != nil {
			return &ConnectionError{Target: spec.Addr, Cause: err}
		}
		link := newConnectedTargetLink(spec.Name, spec.Addr, conn)
		b.links = append(b.links, link)

		select {
		case bus <- TargetConnected{Name: spec.Name, Addr: conn.RemoteAddr().String()}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, link := range b.links {
		go link.run(ctx, clientAddr, bus)
	}
	return nil
}

// Run is the Broadcaster's steady-state loop (spec.md §4.3). It
// processes one BroadcastRequest at a time, in the order the channel
// delivers them, which is what gives per-client broadcasts their FIFO
// ordering guarantee.
func (b *Broadcaster) Run(ctx context.Context, reqs <-chan BroadcastRequest) {
	defer b.closeAll()
	for {
		select {
		case req, ok := <-reqs:
			if !ok {
				return
			}
			b.dispatch(ctx, req)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broadcaster) dispatch(ctx context.Context, req BroadcastRequest) {
	for _, link := range b.links {
		resp, err := b.executor.Dispatch(ctx, hook.Request{
			Direction:  hook.ClientToTarget,
			TargetName: link.Name(),
			Data:       req.Data,
		})
		if err != nil {
			slog.Error("hook error, skipping target for this message", "target", link.Name(), "error", err)
			continue
		}
		if err := link.Write(resp.Data); err != nil {
			slog.Warn("write to target failed", "target", link.Name(), "error", err)
		}
	}
}

func (b *Broadcaster) closeAll() {
	for _, link := range b.links {
		link.Close()
	}
}
