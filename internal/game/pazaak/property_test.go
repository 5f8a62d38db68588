package pazaak

import (
	"encoding/json"
	"math/rand"
	"reflect"
	"testing"

	"pazaak/internal/card"
	"pazaak/internal/game"
)

func checkInvariants(t *testing.T, s *MatchState) {
	t.Helper()
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		t.Fatalf("current player index %d out of range", s.CurrentPlayerIndex)
	}
	someoneWon := false
	for _, p := range s.Players {
		if !p.Forfeited && p.Score != card.Sum(p.BoardHand) {
			t.Fatalf("%s score %d != board sum %d", p.ID, p.Score, card.Sum(p.BoardHand))
		}
		if len(p.BoardHand) > MaxBoardSize {
			t.Fatalf("%s has %d board cards", p.ID, len(p.BoardHand))
		}
		if p.SetsWon >= SetsToWin {
			someoneWon = true
		}
	}
	if (s.Phase == PhaseGameEnd) != someoneWon {
		t.Fatalf("phase %s but someone won = %v", s.Phase, someoneWon)
	}
	for _, r := range s.RoundHistory {
		under := 0
		for _, score := range r.PerPlayerScore {
			if score <= TargetScore {
				under++
			}
		}
		if under == 0 && !r.IsVoid {
			t.Fatalf("round %d has a winner although everyone busted", r.RoundNumber)
		}
		if r.IsVoid == (r.WinnerID != "") {
			t.Fatalf("round %d void=%v winner=%q", r.RoundNumber, r.IsVoid, r.WinnerID)
		}
	}
}

func randomAction(rng *rand.Rand, s *MatchState) game.Action {
	p := s.CurrentPlayer()
	switch rng.Intn(5) {
	case 0, 1:
		return game.Action{Kind: game.ActionDraw}
	case 2:
		return game.Action{Kind: game.ActionStand}
	case 3:
		return game.Action{Kind: game.ActionEndTurn}
	}
	if len(p.DealtSideHand) == 0 {
		return game.Action{Kind: game.ActionDraw}
	}
	sc := p.DealtSideHand[rng.Intn(len(p.DealtSideHand))]
	pol := []game.Polarity{game.PolarityNone, game.PolarityPositive, game.PolarityNegative}[rng.Intn(3)]
	return game.Action{Kind: game.ActionUseSideCard, CardID: sc.ID, Polarity: pol}
}

func TestRandomPlayKeepsInvariants(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		e := newTestEngine(seed)
		s, err := e.NewMatch([]Seat{{ID: "a"}, {ID: "b"}, {ID: "c"}})
		if err != nil {
			t.Fatalf("new match: %v", err)
		}
		for _, p := range []string{"a", "b", "c"} {
			ids := make([]string, 10)
			for i := range ids {
				ids[i] = s.Players[0].SideCardPool[rng.Intn(4)+i*4].ID
			}
			if s, err = e.SelectSideDeck(s, p, ids); err != nil {
				t.Fatalf("select %s: %v", p, err)
			}
		}

		for step := 0; step < 3000 && s.Phase != PhaseGameEnd; step++ {
			before := s.Clone()
			var next *MatchState
			switch s.Phase {
			case PhaseRoundEnd:
				next, err = e.StartNextRound(s)
			case PhasePlaying:
				next, err = e.Apply(s, s.CurrentPlayer().ID, randomAction(rng, s))
			default:
				t.Fatalf("unexpected phase %s", s.Phase)
			}
			if !reflect.DeepEqual(before, s) {
				t.Fatalf("seed %d step %d: input snapshot mutated", seed, step)
			}
			if err != nil && next != s {
				t.Fatalf("seed %d step %d: rejected op returned a new snapshot", seed, step)
			}
			checkInvariants(t, next)
			s = next
		}
	}
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	e := newTestEngine(77)
	s, _ := e.NewMatch([]Seat{{ID: "alice"}, {ID: "bob"}})
	s, _ = e.SelectSideDeck(s, "alice", poolIDs(10))
	s, _ = e.SelectSideDeck(s, "bob", poolIDs(10))
	s, _ = e.Draw(s, s.CurrentPlayer().ID)
	s = s.Clone()
	s.RoundHistory = append(s.RoundHistory, RoundResult{
		RoundNumber: 1, IsVoid: true, PerPlayerScore: map[string]int{"alice": 22, "bob": 23},
	})

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got MatchState
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(&got, s) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, *s)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := playingState([]int{5, 2}, []int{4})
	s.Players[0].DealtSideHand = []card.SideCard{sideCard("f", card.Flip24, 0)}
	s.RoundHistory = []RoundResult{{RoundNumber: 1, PerPlayerScore: map[string]int{"p1": 7}}}

	cp := s.Clone()
	cp.Players[0].BoardHand[0].Value = 9
	cp.Players[0].DealtSideHand[0].FlipTargets[0] = 7
	cp.RoundHistory[0].PerPlayerScore["p1"] = 1
	cp.SharedDeck[0].Value = 99

	if s.Players[0].BoardHand[0].Value != 5 ||
		s.Players[0].DealtSideHand[0].FlipTargets[0] != 2 ||
		s.RoundHistory[0].PerPlayerScore["p1"] != 7 ||
		s.SharedDeck[0].Value == 99 {
		t.Fatal("clone shares memory with the original")
	}
}
