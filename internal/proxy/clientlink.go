package proxy

import (
	"context"
	"net"
)

// ClientReadBufferSize is the Client Link reader's fixed buffer size
// (spec.md §4.2 default).
const ClientReadBufferSize = 4096

// readClient is the Client Link reader task: it reads from the client
// socket and pushes exactly one NewClientMessage per non-empty read, or
// a terminal ClientDisconnected on a zero-length read or error. The
// writer side needs no dedicated goroutine — the Server Actor is the
// session's sole writer to the client socket, so writes are already
// serialized (spec.md §4.2).
func readClient(ctx context.Context, conn net.Conn, addr string, bus chan<- ServerMessage) {
	buf := make([]byte, ClientReadBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			select {
			case bus <- NewClientMessage{Addr: addr, Data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil || n == 0 {
			select {
			case bus <- ClientDisconnected{Addr: addr}:
			case <-ctx.Done():
			}
			return
		}
	}
}
