package proxy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fcoury/yprox/internal/hook"
)

// TestBroadcasterHookRewritesPerTarget exercises spec.md §8 scenario 2:
// a hook scoped to one target uppercases its payload while every other
// target sees the original bytes.
func TestBroadcasterHookRewritesPerTarget(t *testing.T) {
	lnA := echoListener(t)
	defer lnA.Close()
	lnB := echoListener(t)
	defer lnB.Close()

	onlyB := "b"
	upperForB := hook.Hook{
		TargetName: &onlyB,
		Trigger: hook.TriggerFunc(func(req hook.Request) ([]byte, error) {
			return []byte(strings.ToUpper(string(req.Data))), nil
		}),
	}
	executor := hook.NewExecutor(hook.Chain{upperForB})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go executor.Run(ctx)

	b := NewBroadcaster(executor)
	bus := make(chan ServerMessage, 8)
	targets := []TargetSpec{
		{Name: "a", Addr: lnA.Addr().String()},
		{Name: "b", Addr: lnB.Addr().String()},
	}
	if err := b.Start(ctx, targets, "client:1", bus); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectTargetConnected(t, bus, len(targets))
	reqs := make(chan BroadcastRequest, 4)
	go b.Run(ctx, reqs)

	reqs <- BroadcastRequest{FromAddr: "client:1", Data: []byte("hi")}

	got := map[string]string{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-bus:
			m, ok := msg.(NewTargetMessage)
			if !ok {
				continue
			}
			got[m.FromTarget] = string(m.Data)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for echoes")
		}
	}
	if got["a"] != "hi" {
		t.Fatalf("expected target a unmodified, got %q", got["a"])
	}
	if got["b"] != "HI" {
		t.Fatalf("expected target b uppercased, got %q", got["b"])
	}
}

// TestBroadcasterScriptErrorIsolatesOneTarget exercises spec.md §8
// scenario 4: a hook that errors for one target leaves every other
// target's delivery unaffected.
func TestBroadcasterScriptErrorIsolatesOneTarget(t *testing.T) {
	lnA := echoListener(t)
	defer lnA.Close()
	lnB := echoListener(t)
	defer lnB.Close()

	onlyB := "b"
	failForB := hook.Hook{
		TargetName: &onlyB,
		Trigger: hook.TriggerFunc(func(hook.Request) ([]byte, error) {
			return nil, errBoom
		}),
	}
	executor := hook.NewExecutor(hook.Chain{failForB})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go executor.Run(ctx)

	b := NewBroadcaster(executor)
	bus := make(chan ServerMessage, 8)
	targets := []TargetSpec{
		{Name: "a", Addr: lnA.Addr().String()},
		{Name: "b", Addr: lnB.Addr().String()},
	}
	if err := b.Start(ctx, targets, "client:1", bus); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectTargetConnected(t, bus, len(targets))
	reqs := make(chan BroadcastRequest, 4)
	go b.Run(ctx, reqs)

	reqs <- BroadcastRequest{FromAddr: "client:1", Data: []byte("X")}

	select {
	case msg := <-bus:
		m, ok := msg.(NewTargetMessage)
		if !ok || m.FromTarget != "a" {
			t.Fatalf("expected target a's echo first, got %#v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for target a's echo")
	}

	select {
	case msg := <-bus:
		t.Fatalf("expected no message for target b, got %#v", msg)
	case <-time.After(300 * time.Millisecond):
	}
}

type boomError string

func (e boomError) Error() string { return string(e) }

const errBoom = boomError("boom")
