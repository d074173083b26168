package hub

import (
	"context"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHub_BroadcastFanOut(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	a := NewClient(h, nil)
	b := NewClient(h, nil)
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastJSON(map[string]int{"n": 1}); err != nil {
		t.Fatalf("BroadcastJSON() error = %v", err)
	}

	for name, c := range map[string]*Client{"a": a, "b": b} {
		select {
		case msg := <-c.send:
			if string(msg.Data) != `{"n":1}` {
				t.Errorf("client %s got %s", name, msg.Data)
			}
		case <-time.After(time.Second):
			t.Errorf("client %s got nothing", name)
		}
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	slow := NewClient(h, nil)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	for i := 0; i < cap(slow.send)+1; i++ {
		h.Broadcast(NewJSONMessage([]byte("{}")))
	}
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestHub_StopClosesClients(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := NewClient(h, nil)
	waitFor(t, func() bool { return h.ClientCount() == 1 })
	if !h.IsRunning() {
		t.Error("hub should report running")
	}

	cancel()
	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected closed send channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed after stop")
	}

	// registering after stop must not block
	late := NewClient(h, nil)
	if _, ok := <-late.send; ok {
		t.Error("late client should start closed")
	}
	if h.IsRunning() {
		t.Error("hub should not report running after stop")
	}
}

func TestHub_BroadcastWithoutRunDrops(t *testing.T) {
	h := New("test", nil)
	for i := 0; i < cap(h.broadcast)+3; i++ {
		h.Broadcast(NewJSONMessage(nil))
	}
	if h.Dropped() != 3 {
		t.Errorf("Dropped: got %d, want 3", h.Dropped())
	}
}
