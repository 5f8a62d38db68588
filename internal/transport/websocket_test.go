package transport

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type event struct {
	kind string
	peer string
	data string
}

func watch(t Transport) <-chan event {
	ch := make(chan event, 32)
	t.OnMessage(func(peer string, data []byte) { ch <- event{"msg", peer, string(data)} })
	t.OnPeerConnected(func(peer string) { ch <- event{"up", peer, ""} })
	t.OnPeerDisconnected(func(peer string) { ch <- event{"down", peer, ""} })
	return ch
}

func next(t *testing.T, ch <-chan event) event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transport event")
	}
	return event{}
}

func setupWebSocket(t *testing.T) (*WebSocket, string) {
	t.Helper()
	server := NewWebSocket(nil)
	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		server.Close()
		ts.Close()
	})
	return server, strings.Replace(ts.URL, "http://", "ws://", 1)
}

func TestWebSocketRoundTrip(t *testing.T) {
	server, url := setupWebSocket(t)
	serverEvents := watch(server)

	client := NewWebSocket(nil)
	defer client.Close()
	clientEvents := watch(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Dial(ctx, "host", url); err != nil {
		t.Fatalf("dial: %v", err)
	}
	if ev := next(t, clientEvents); ev.kind != "up" || ev.peer != "host" {
		t.Fatalf("client event = %+v", ev)
	}
	up := next(t, serverEvents)
	if up.kind != "up" || up.peer == "" {
		t.Fatalf("server event = %+v", up)
	}

	if err := client.Send(ctx, "host", []byte("ping")); err != nil {
		t.Fatalf("client send: %v", err)
	}
	if ev := next(t, serverEvents); ev.kind != "msg" || ev.peer != up.peer || ev.data != "ping" {
		t.Fatalf("server event = %+v", ev)
	}

	if err := server.Broadcast(ctx, []byte("pong")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if ev := next(t, clientEvents); ev.kind != "msg" || ev.peer != "host" || ev.data != "pong" {
		t.Fatalf("client event = %+v", ev)
	}

	client.Close()
	if ev := next(t, serverEvents); ev.kind != "down" || ev.peer != up.peer {
		t.Fatalf("server event = %+v", ev)
	}
}

func TestWebSocketFlushesQueuedSendsOnOpen(t *testing.T) {
	server, url := setupWebSocket(t)
	serverEvents := watch(server)

	client := NewWebSocket(nil)
	defer client.Close()

	client.mu.Lock()
	client.pending.expect("host")
	client.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, m := range []string{"first", "second"} {
		if err := client.Send(ctx, "host", []byte(m)); err != nil {
			t.Fatalf("queued send: %v", err)
		}
	}
	if err := client.Dial(ctx, "host", url); err != nil {
		t.Fatalf("dial: %v", err)
	}

	if ev := next(t, serverEvents); ev.kind != "up" {
		t.Fatalf("server event = %+v", ev)
	}
	for _, want := range []string{"first", "second"} {
		if ev := next(t, serverEvents); ev.data != want {
			t.Fatalf("server event = %+v, want %s", ev, want)
		}
	}
}

func TestWebSocketDialFailureDropsQueue(t *testing.T) {
	client := NewWebSocket(nil)
	defer client.Close()

	client.mu.Lock()
	client.pending.expect("host")
	client.mu.Unlock()
	client.Send(context.Background(), "host", []byte("lost"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.Dial(ctx, "host", "ws://127.0.0.1:1/ws")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("dial err = %v, want ErrTransport", err)
	}
	if err := client.Send(ctx, "host", []byte("x")); !errors.Is(err, ErrTransport) {
		t.Fatalf("send after failed dial = %v, want ErrTransport", err)
	}
}

func TestWebSocketSendUnknownPeer(t *testing.T) {
	w := NewWebSocket(nil)
	defer w.Close()
	if err := w.Send(context.Background(), "nobody", []byte("x")); !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	w.Close()
	if err := w.Dial(context.Background(), "host", "ws://127.0.0.1:1"); !errors.Is(err, ErrTransport) {
		t.Fatalf("dial after close = %v, want ErrTransport", err)
	}
}
