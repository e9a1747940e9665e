package proxy

import (
	"context"
	"net"
	"testing"
	"time"
)

// TestTargetLinkReconnectsAfterListenerRestart exercises spec.md §8
// scenario 3: a target's connection drops, a TargetDisconnected event
// fires, the listener comes back on the same address, and a
// TargetReconnected event fires with the link usable again.
func TestTargetLinkReconnectsAfterListenerRestart(t *testing.T) {
	ln := echoListener(t)
	addr := ln.Addr().String()

	clientDone := make(chan net.Conn, 1)
	go func() {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Error(err)
			return
		}
		clientDone <- conn
	}()
	clientSide := <-clientDone

	link := newConnectedTargetLink("b", addr, clientSide)
	bus := make(chan ServerMessage, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.run(ctx, "client:1", bus)

	// Kill the listener and close the link's socket to force a disconnect.
	ln.Close()
	clientSide.Close()

	select {
	case msg := <-bus:
		if _, ok := msg.(TargetDisconnected); !ok {
			t.Fatalf("expected TargetDisconnected, got %#v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for TargetDisconnected")
	}

	// Restart a listener on the same address.
	ln2, err := net.Listen("tcp", addr)
	if err != nil {
		t.Skipf("could not rebind %s immediately: %v", addr, err)
	}
	defer ln2.Close()
	go func() {
		conn, err := ln2.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				conn.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	select {
	case msg := <-bus:
		if _, ok := msg.(TargetReconnected); !ok {
			t.Fatalf("expected TargetReconnected, got %#v", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for TargetReconnected")
	}

	if !link.Connected() {
		t.Fatal("expected link to report connected after reconnect")
	}
}
