package proxy

import (
	"bytes"
	"context"
	"log/slog"
	"net"

	"github.com/fcoury/yprox/internal/hook"
	"github.com/fcoury/yprox/internal/logging"
)

// ServerActor is the per-session message-bus consumer of spec.md §4.1:
// it owns the client socket and is its sole writer, forwards client
// payloads to the Broadcaster, and decides which target's responses
// reach the client. It is the Go rendering of the original
// implementation's Server actor (original_source/src/server.rs),
// narrowed from "broadcast responses to every client" to "write only
// the designated target's responses to this session's client", per
// spec.md §9's resolution of that ambiguity.
type ServerActor struct {
	addr            string
	conn            net.Conn
	designated      string
	inboundExecutor *hook.Executor
	broadcastReq    chan<- BroadcastRequest
	closeBroadcast  func()
	targetConnected map[string]bool
}

// NewServerActor builds a ServerActor bound to one client connection.
// closeBroadcast is called when the client disconnects or a write to the
// client fails, to tear down the session's Broadcaster side.
func NewServerActor(conn net.Conn, addr, designated string, inboundExecutor *hook.Executor, broadcastReq chan<- BroadcastRequest, closeBroadcast func()) *ServerActor {
	return &ServerActor{
		addr:            addr,
		conn:            conn,
		designated:      designated,
		inboundExecutor: inboundExecutor,
		broadcastReq:    broadcastReq,
		closeBroadcast:  closeBroadcast,
		targetConnected: make(map[string]bool),
	}
}

// Run drains bus until a terminal message arrives or ctx is cancelled.
func (s *ServerActor) Run(ctx context.Context, bus <-chan ServerMessage) {
	for {
		select {
		case msg, ok := <-bus:
			if !ok {
				return
			}
			if s.handle(ctx, msg) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handle processes one ServerMessage and reports whether the session
// should terminate.
func (s *ServerActor) handle(ctx context.Context, msg ServerMessage) bool {
	switch m := msg.(type) {
	case ClientConnected:
		slog.Info("client connected", "addr", m.Addr)
		return false

	case ClientDisconnected:
		slog.Info("client disconnected", "addr", m.Addr)
		s.closeBroadcast()
		return true

	case TargetConnected:
		s.targetConnected[m.Name] = true
		slog.Info("target connected", "target", m.Name, "addr", m.Addr)
		return false

	case TargetReconnected:
		s.targetConnected[m.Name] = true
		slog.Info("target reconnected", "target", m.Name, "addr", m.Addr)
		return false

	case TargetDisconnected:
		s.targetConnected[m.Name] = false
		slog.Warn("target disconnected", "target", m.Name, "addr", m.Addr)
		return false

	case NewClientMessage:
		var buf bytes.Buffer
		logging.HexDump(&buf, m.Data, "client->"+s.addr)
		slog.Debug(buf.String())

		select {
		case s.broadcastReq <- BroadcastRequest{FromAddr: m.Addr, Data: m.Data}:
		case <-ctx.Done():
		}
		return false

	case NewTargetMessage:
		resp, err := s.inboundExecutor.Dispatch(ctx, hook.Request{
			Direction:  hook.TargetToClient,
			TargetName: m.FromTarget,
			Data:       m.Data,
		})
		if err != nil {
			slog.Error("hook error, dropping target message", "target", m.FromTarget, "error", err)
			return false
		}
		if m.FromTarget != s.designated {
			slog.Debug("dropping response from non-designated target", "target", m.FromTarget, "designated", s.designated)
			return false
		}

		var buf bytes.Buffer
		logging.HexDump(&buf, resp.Data, m.FromTarget+"->client")
		slog.Debug(buf.String())

		if _, err := s.conn.Write(resp.Data); err != nil {
			slog.Warn("write to client failed, terminating session", "addr", s.addr, "error", err)
			s.closeBroadcast()
			return true
		}
		return false

	default:
		return false
	}
}
