package proxy

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func acceptOnce(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return conn
}

func TestTargetLinkWriteClosesOnError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	clientDone := make(chan net.Conn, 1)
	go func() {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			t.Error(err)
			return
		}
		clientDone <- conn
	}()

	serverSide := acceptOnce(t, ln)
	clientSide := <-clientDone

	link := newConnectedTargetLink("t1", ln.Addr().String(), clientSide)
	serverSide.Close()

	// First write may succeed or fail depending on TCP buffering, so
	// write enough times to force the peer-closed error through.
	var lastErr error
	for i := 0; i < 50; i++ {
		if lastErr = link.Write([]byte("x")); lastErr != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if lastErr == nil {
		t.Fatal("expected write error after peer closed connection")
	}
	if _, err := clientSide.Read(make([]byte, 1)); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("expected the link to close its socket after the write error, got %v", err)
	}
}

func TestTargetLinkRunForwardsTargetMessages(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	clientDone := make(chan net.Conn, 1)
	go func() {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			t.Error(err)
			return
		}
		clientDone <- conn
	}()

	serverSide := acceptOnce(t, ln)
	clientSide := <-clientDone
	defer serverSide.Close()
	defer clientSide.Close()

	link := newConnectedTargetLink("t1", ln.Addr().String(), clientSide)
	bus := make(chan ServerMessage, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go link.run(ctx, "client:1", bus)

	if _, err := serverSide.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case msg := <-bus:
		m, ok := msg.(NewTargetMessage)
		if !ok {
			t.Fatalf("expected NewTargetMessage, got %T", msg)
		}
		if string(m.Data) != "hello" {
			t.Fatalf("got data %q", m.Data)
		}
		if m.FromTarget != "t1" || m.ToAddr != "client:1" {
			t.Fatalf("unexpected fields: %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for NewTargetMessage")
	}
}
