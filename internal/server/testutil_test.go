package server

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"pazaak/internal/session"
	"pazaak/internal/storage"
	"pazaak/internal/transport"
)

// --- Test environment ---

type testEnv struct {
	ts    *httptest.Server
	host  *session.Authority
	store *storage.Store
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := zaptest.NewLogger(t)
	ws := transport.NewWebSocket(logger)
	host, err := session.NewAuthority("alice", ws, session.Options{
		Logger:  logger,
		Rand:    rand.New(rand.NewSource(3)),
		Journal: store,
	})
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}

	srv := New(host, ws, store, logger)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		host.Close()
		ts.Close()
	})
	return &testEnv{ts: ts, host: host, store: store}
}

// --- Context helpers ---

func timeoutCtx(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// waitFor polls cond until it holds or five seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// --- REST API helpers ---

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func post(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

// --- WebSocket helpers ---

func wsURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + "/ws"
}

// joinFollower dials the host's websocket endpoint as a follower named
// name and waits until the host lists it.
func (env *testEnv) joinFollower(t *testing.T, name string) *session.Follower {
	t.Helper()
	ws := transport.NewWebSocket(zaptest.NewLogger(t))
	f, err := session.NewFollower(name, "host", ws, session.Options{})
	if err != nil {
		t.Fatalf("new follower: %v", err)
	}
	t.Cleanup(func() { f.Close() })

	ctx, cancel := timeoutCtx(t)
	defer cancel()
	if err := ws.Dial(ctx, "host", wsURL(env.ts)); err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	waitFor(t, name+" in roster", func() bool {
		for _, p := range env.host.Roster() {
			if p == name {
				return true
			}
		}
		return false
	})
	return f
}
