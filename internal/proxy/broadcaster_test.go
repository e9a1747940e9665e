package proxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/fcoury/yprox/internal/hook"
)

func echoListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						c.Write(buf[:n])
					}
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln
}

// expectTargetConnected drains the n TargetConnected messages that
// Broadcaster.Start puts on the bus, one per target, before any echo.
func expectTargetConnected(t *testing.T, bus <-chan ServerMessage, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case msg := <-bus:
			if _, ok := msg.(TargetConnected); !ok {
				t.Fatalf("expected TargetConnected, got %#v", msg)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for TargetConnected")
		}
	}
}

func TestBroadcasterFansOutToEveryTarget(t *testing.T) {
	ln1 := echoListener(t)
	defer ln1.Close()
	ln2 := echoListener(t)
	defer ln2.Close()

	executor := hook.NewExecutor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go executor.Run(ctx)

	b := NewBroadcaster(executor)
	bus := make(chan ServerMessage, 8)
	targets := []TargetSpec{
		{Name: "a", Addr: ln1.Addr().String()},
		{Name: "b", Addr: ln2.Addr().String()},
	}
	if err := b.Start(ctx, targets, "client:1", bus); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectTargetConnected(t, bus, len(targets))

	reqs := make(chan BroadcastRequest, 4)
	go b.Run(ctx, reqs)

	reqs <- BroadcastRequest{FromAddr: "client:1", Data: []byte("ping")}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-bus:
			m, ok := msg.(NewTargetMessage)
			if !ok {
				continue
			}
			if string(m.Data) != "ping" {
				t.Fatalf("got %q", m.Data)
			}
			seen[m.FromTarget] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for fan-out echo")
		}
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected both targets to echo, got %v", seen)
	}
}

func TestBroadcasterStartFailsOnUnreachableTarget(t *testing.T) {
	ln := echoListener(t)
	addr := ln.Addr().String()
	ln.Close()

	executor := hook.NewExecutor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go executor.Run(ctx)

	b := NewBroadcaster(executor)
	bus := make(chan ServerMessage, 4)
	err := b.Start(ctx, []TargetSpec{{Name: "dead", Addr: addr}}, "client:1", bus)
	if err == nil {
		t.Fatal("expected connection error")
	}
	if _, ok := err.(*ConnectionError); !ok {
		t.Fatalf("expected *ConnectionError, got %T: %v", err, err)
	}
}
