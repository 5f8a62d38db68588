package session

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"pazaak/internal/game/pazaak"
	"pazaak/internal/protocol"
	"pazaak/internal/transport"
)

var testNow = time.UnixMilli(1700000000000)

// --- Journal ---

type memJournal struct {
	mu     sync.Mutex
	starts []string
	rounds []pazaak.RoundResult
	ends   []string
}

func (j *memJournal) RecordMatchStart(_ context.Context, matchID string, _ []string, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.starts = append(j.starts, matchID)
	return nil
}

func (j *memJournal) RecordRound(_ context.Context, _ string, r pazaak.RoundResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rounds = append(j.rounds, r)
	return nil
}

func (j *memJournal) RecordMatchEnd(_ context.Context, _, winner string, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ends = append(j.ends, winner)
	return nil
}

// --- Test environment ---

type testEnv struct {
	hub     *transport.Hub
	host    *Authority
	journal *memJournal
}

func testOptions() Options {
	return Options{
		Rand: rand.New(rand.NewSource(7)),
		Now:  func() time.Time { return testNow },
	}
}

// setupTest creates an authority hosted by alice on a memory hub.
func setupTest(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()
	hub := transport.NewHub()
	j := &memJournal{}
	opts := testOptions()
	opts.Journal = j
	for _, m := range mutate {
		m(&opts)
	}
	host, err := NewAuthority("alice", hub.Endpoint("host"), opts)
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	t.Cleanup(func() { host.Close() })
	return &testEnv{hub: hub, host: host, journal: j}
}

func peerID(name string) string {
	return "peer-" + name
}

// join links a follower named name to the host and runs the handshake.
func (env *testEnv) join(t *testing.T, name string) *Follower {
	t.Helper()
	f, err := NewFollower(name, "host", env.hub.Endpoint(peerID(name)), testOptions())
	if err != nil {
		t.Fatalf("new follower: %v", err)
	}
	env.hub.Connect("host", peerID(name))
	env.hub.Pump()
	return f
}

// inject delivers a raw message from peer to the host.
func (env *testEnv) inject(t *testing.T, from string, m protocol.Message) {
	t.Helper()
	ep := env.hub.Endpoint(from)
	if err := ep.Send(context.Background(), "host", protocol.MustEncode(m, testNow)); err != nil {
		t.Fatalf("inject %s: %v", m.Type(), err)
	}
	env.hub.Pump()
}

// startWithBob seats bob as a follower and starts the game.
func (env *testEnv) startWithBob(t *testing.T) *Follower {
	t.Helper()
	bob := env.join(t, "bob")
	if err := env.host.StartGame(context.Background()); err != nil {
		t.Fatalf("start game: %v", err)
	}
	env.hub.Pump()
	return bob
}

// selectAll completes side deck selection for alice and bob.
func (env *testEnv) selectAll(t *testing.T, bob *Follower) {
	t.Helper()
	ctx := context.Background()
	s, _ := env.host.Snapshot()
	if err := env.host.SelectSideDeck(ctx, deckFor(s, "alice")); err != nil {
		t.Fatalf("alice select: %v", err)
	}
	if err := bob.SelectSideDeck(ctx, deckFor(s, "bob")); err != nil {
		t.Fatalf("bob select: %v", err)
	}
	env.hub.Pump()
}

// deckFor picks the first ten cards of a player's pool.
func deckFor(s *pazaak.MatchState, name string) []string {
	var ids []string
	for _, sc := range s.Player(name).SideCardPool[:10] {
		ids = append(ids, sc.ID)
	}
	return ids
}

// --- Assertions ---

// expectError drains errs until one matching target appears.
func expectError(t *testing.T, errs <-chan error, target error) error {
	t.Helper()
	for {
		select {
		case err := <-errs:
			if errors.Is(err, target) {
				return err
			}
		default:
			t.Fatalf("no %v reported", target)
			return nil
		}
	}
}

func expectNoError(t *testing.T, errs <-chan error) {
	t.Helper()
	select {
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	default:
	}
}

func sameSnapshot(t *testing.T, a, b *pazaak.MatchState) {
	t.Helper()
	ja, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	jb, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(ja) != string(jb) {
		t.Fatalf("snapshots differ:\n%s\n%s", ja, jb)
	}
}
