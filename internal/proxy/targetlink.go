package proxy

import (
	"context"
	"net"
	"sync"
	"time"
)

const (
	targetReadBufferSize = 4096
	reconnectInterval     = time.Second
)

// TargetLink is one (session, target) pair: it owns the target socket,
// replacing it atomically on reconnect, and runs the reconnect state
// machine of spec.md §4.4. It is the Go rendering of the "stable handle
// holding an exclusively-owned socket plus a generation counter"
// guidance in spec.md §9 — the mutex plays the role of an atomic
// shared-pointer swap, grounded on the teacher's AgentWorker
// (internal/netio/tcp/agent_worker.go), which guards its net.Conn and a
// closed flag with the same pattern.
type TargetLink struct {
	mu         sync.Mutex
	name       string
	addr       string
	conn       net.Conn
	connected  bool
	generation uint64
}

func newConnectedTargetLink(name, addr string, conn net.Conn) *TargetLink {
	return &TargetLink{name: name, addr: addr, conn: conn, connected: true}
}

// Name returns the target's configured name.
func (t *TargetLink) Name() string { return t.name }

// Connected reports the link's current connected flag.
func (t *TargetLink) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *TargetLink) current() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// Write sends bytes on the current socket. A write error closes the
// socket, which wakes the link's reader goroutine out of its blocking
// Read and drives it into the same reconnect path a zero-length read
// would (spec.md §4.4: "CONNECTED -> (EOF or write error) -> DISCONNECTED").
func (t *TargetLink) Write(b []byte) error {
	conn := t.current()
	if conn == nil {
		return net.ErrClosed
	}
	_, err := conn.Write(b)
	if err != nil {
		conn.Close()
	}
	return err
}

// Close tears the link down for good; used when the owning session
// terminates.
func (t *TargetLink) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.connected = false
}

func (t *TargetLink) markDisconnected() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
}

func (t *TargetLink) swapIn(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = conn
	t.connected = true
	t.generation++
}

// run is the link's reader + reconnect loop. One goroutine, for the
// life of the link, owns both concerns — exactly like the original
// implementation's single `target` thread (original_source/src/
// broadcaster.rs), so there is never more than one reader racing a
// reconnect against itself.
func (t *TargetLink) run(ctx context.Context, clientAddr string, bus chan<- ServerMessage) {
	buf := make([]byte, targetReadBufferSize)
	for {
		conn := t.current()
		n, err := conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			select {
			case bus <- NewTargetMessage{FromTarget: t.name, ToAddr: clientAddr, Data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err == nil {
			continue
		}

		t.markDisconnected()
		select {
		case bus <- TargetDisconnected{Name: t.name, Addr: t.addr}:
		case <-ctx.Done():
			return
		}

		if !t.reconnect(ctx, bus) {
			return
		}
	}
}

// reconnect retries a TCP dial to t.addr every reconnectInterval,
// indefinitely, until it succeeds or ctx is cancelled (spec.md §4.4: "no
// exponential backoff; no max-retry cap"). It returns false iff ctx was
// cancelled before a new connection was swapped in and reported as
// TargetReconnected on bus.
func (t *TargetLink) reconnect(ctx context.Context, bus chan<- ServerMessage) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(reconnectInterval):
		}

		dialer := net.Dialer{}
		conn, err := dialer.DialContext(ctx, "tcp", t.addr)
		if err != nil {
			continue
		}

		t.swapIn(conn)
		select {
		case bus <- TargetReconnected{Name: t.name, Addr: conn.RemoteAddr().String()}:
		case <-ctx.Done():
			conn.Close()
			return false
		}
		return true
	}
}
