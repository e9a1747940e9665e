package proxy

import (
	"context"
	"log/slog"
	"net"
	"sync"
)

// maxConcurrentSessions bounds the number of simultaneously active
// client sessions, the same semaphore-limited accept loop idiom as the
// teacher's internal/netio/tcp/server.go.
const maxConcurrentSessions = 256

// Server is the TCP listener: it accepts client connections and hands
// each one to a Session, one goroutine per connection.
type Server struct {
	addr    string
	session *Session
	wg      sync.WaitGroup
	sem     chan struct{}
}

// NewServer builds a listener bound to addr that spawns a Session per
// accepted connection.
func NewServer(addr string, session *Session) *Server {
	return &Server{
		addr:    addr,
		session: session,
		sem:     make(chan struct{}, maxConcurrentSessions),
	}
}

// Serve accepts connections until ctx is cancelled, at which point it
// stops the listener and waits for every in-flight session to finish.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	slog.Info("yprox listening", "addr", s.addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				slog.Info("yprox stopping")
				s.wg.Wait()
				return nil
			default:
				slog.Error("accept error", "error", err)
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer func() { <-s.sem }()
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("session panic", "error", r)
				}
			}()
			s.session.Handle(ctx, conn)
		}()
	}
}
