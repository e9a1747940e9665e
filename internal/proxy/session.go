package proxy

import (
	"context"
	"log/slog"
	"net"

	"github.com/fcoury/yprox/internal/hook"
)

// serverMessageBusCapacity is the bus's buffer size; small, since the
// Server Actor drains it from a single tight loop and the only producers
// are this session's own goroutines.
const serverMessageBusCapacity = 16

// Session wires together one accepted client connection: a Broadcaster
// fanning payloads out to every configured target, a Client Link reader
// feeding the shared message bus, and a Server Actor consuming that bus
// and owning the client socket as its sole writer. Grounded on the
// original implementation's per-connection `handle_client` (original_
// source/src/server.rs), adapted to Go's goroutine-per-task idiom.
type Session struct {
	targets          []TargetSpec
	designated       string
	inboundExecutor  *hook.Executor
	outboundExecutor *hook.Executor
}

// NewSession builds a Session template shared by every accepted
// connection; Handle spawns the actual per-connection goroutines.
func NewSession(targets []TargetSpec, designated string, inboundExecutor, outboundExecutor *hook.Executor) *Session {
	return &Session{
		targets:          targets,
		designated:       designated,
		inboundExecutor:  inboundExecutor,
		outboundExecutor: outboundExecutor,
	}
}

// Handle runs one client connection's full lifecycle to completion. It
// blocks until the session ends, so callers run it in its own
// goroutine (see Server.Serve).
func (s *Session) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	addr := conn.RemoteAddr().String()
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := make(chan ServerMessage, serverMessageBusCapacity)
	broadcastReq := make(chan BroadcastRequest, BroadcastRequestCapacity)

	broadcaster := NewBroadcaster(s.outboundExecutor)
	if err := broadcaster.Start(sessionCtx, s.targets, addr, bus); err != nil {
		slog.Error("session aborted: target connect failed", "client", addr, "error", err)
		broadcaster.closeAll()
		return
	}

	closeOnce := make(chan struct{})
	closeBroadcast := func() {
		select {
		case <-closeOnce:
		default:
			close(closeOnce)
			close(broadcastReq)
		}
	}

	actor := NewServerActor(conn, addr, s.designated, s.inboundExecutor, broadcastReq, closeBroadcast)

	go broadcaster.Run(sessionCtx, broadcastReq)

	go func() {
		<-sessionCtx.Done()
		conn.Close()
	}()

	select {
	case bus <- ClientConnected{Conn: conn, Addr: addr}:
	case <-sessionCtx.Done():
		return
	}

	go readClient(sessionCtx, conn, addr, bus)
	actor.Run(sessionCtx, bus)
}
