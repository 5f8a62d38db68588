package bot

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"pazaak/internal/game"
	"pazaak/internal/game/pazaak"
	"pazaak/internal/strategy"
)

// table is a Submitter that applies requests straight to an engine and
// feeds the result back to every driver.
type table struct {
	mu      sync.Mutex
	engine  *pazaak.Engine
	state   *pazaak.MatchState
	drivers []*Driver
}

type seat struct {
	t    *table
	name string
}

func (s seat) SubmitAction(_ context.Context, a game.Action) error {
	return s.t.apply(func(e *pazaak.Engine, st *pazaak.MatchState) (*pazaak.MatchState, error) {
		return e.Apply(st, s.name, a)
	})
}

func (s seat) SelectSideDeck(_ context.Context, ids []string) error {
	return s.t.apply(func(e *pazaak.Engine, st *pazaak.MatchState) (*pazaak.MatchState, error) {
		return e.SelectSideDeck(st, s.name, ids)
	})
}

func (t *table) apply(fn func(*pazaak.Engine, *pazaak.MatchState) (*pazaak.MatchState, error)) error {
	t.mu.Lock()
	next, err := fn(t.engine, t.state)
	t.state = next
	drivers := t.drivers
	t.mu.Unlock()
	if err != nil {
		return err
	}
	for _, d := range drivers {
		d.Observe(next)
	}
	return nil
}

func (t *table) snapshot() *pazaak.MatchState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func newTable(t *testing.T, names ...string) *table {
	t.Helper()
	e := pazaak.NewEngine(rand.New(rand.NewSource(3)), nil)
	seats := make([]pazaak.Seat, len(names))
	for i, n := range names {
		seats[i] = pazaak.Seat{ID: n}
	}
	s, err := e.NewMatch(seats)
	if err != nil {
		t.Fatalf("new match: %v", err)
	}
	return &table{engine: e, state: s}
}

func TestStepSelectsSideDeck(t *testing.T) {
	tb := newTable(t, "bot", "human")
	d := New("bot", strategy.NewThreshold(strategy.Medium, rand.New(rand.NewSource(1))), seat{tb, "bot"})

	if err := d.Step(context.Background(), tb.snapshot()); err != nil {
		t.Fatalf("step: %v", err)
	}
	if !tb.snapshot().Player("bot").HasSelected() {
		t.Fatal("expected bot side deck to be selected")
	}
	if d.Actionable(tb.snapshot()) {
		t.Fatal("bot should wait once its deck is selected")
	}
}

func TestActionable(t *testing.T) {
	tb := newTable(t, "bot", "human")
	for _, n := range []string{"bot", "human"} {
		st := tb.snapshot()
		ids := strategy.NewThreshold(strategy.Easy, rand.New(rand.NewSource(1))).ChooseSideDeck(st.Player(n).SideCardPool)
		if err := (seat{tb, n}).SelectSideDeck(context.Background(), ids); err != nil {
			t.Fatalf("select: %v", err)
		}
	}
	s := tb.snapshot()
	d := New("bot", strategy.NewThreshold(strategy.Easy, rand.New(rand.NewSource(1))), seat{tb, "bot"})
	if got, want := d.Actionable(s), s.IsCurrent("bot"); got != want {
		t.Fatalf("Actionable() = %v, want %v", got, want)
	}
	if d.Actionable(nil) {
		t.Fatal("nil snapshot is never actionable")
	}
	ended := s.Clone()
	ended.Phase = pazaak.PhaseRoundEnd
	if d.Actionable(ended) {
		t.Fatal("round end is actionable only with round advance")
	}
	if !New("bot", nil, nil, WithRoundAdvance()).Actionable(ended) {
		t.Fatal("round advance driver should act on round end")
	}
	stranger := New("ghost", nil, nil)
	if stranger.Actionable(s) {
		t.Fatal("a seat outside the match never acts")
	}
}

func TestObserveKeepsLatest(t *testing.T) {
	d := New("bot", nil, nil)
	a := &pazaak.MatchState{RoundNumber: 1}
	b := &pazaak.MatchState{RoundNumber: 2}
	d.Observe(a)
	d.Observe(b)
	if got := <-d.updates; got != b {
		t.Fatalf("got round %d, want 2", got.RoundNumber)
	}
}

func TestDriversPlayMatchToEnd(t *testing.T) {
	tb := newTable(t, "a", "b")
	a := New("a", strategy.NewThreshold(strategy.Hard, rand.New(rand.NewSource(1))), seat{tb, "a"}, WithRoundAdvance())
	b := New("b", strategy.NewThreshold(strategy.Easy, rand.New(rand.NewSource(2))), seat{tb, "b"}, WithThink(time.Millisecond))
	tb.drivers = []*Driver{a, b}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	for _, d := range tb.drivers {
		wg.Add(1)
		go func(d *Driver) {
			defer wg.Done()
			d.Run(ctx)
		}(d)
	}
	start := tb.snapshot()
	a.Observe(start)
	b.Observe(start)

	deadline := time.After(10 * time.Second)
	for tb.snapshot().Phase != pazaak.PhaseGameEnd {
		select {
		case <-deadline:
			t.Fatalf("match stuck in %s round %d", tb.snapshot().Phase, tb.snapshot().RoundNumber)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	wg.Wait()
	if w := tb.snapshot().Winner; w != "a" && w != "b" {
		t.Fatalf("winner = %q", w)
	}
}
