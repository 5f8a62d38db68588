package strategy

import (
	"math/rand"
	"sort"
	"sync"

	"pazaak/internal/card"
	"pazaak/internal/game"
	"pazaak/internal/game/pazaak"
)

// Threshold is the built-in heuristic opponent. It fixes busts when it can,
// takes an exact 20, and otherwise stands or draws on score bands tuned by
// its Profile. It is not optimal.
type Threshold struct {
	profile Profile

	mu  sync.Mutex
	rng *rand.Rand
}

// NewThreshold creates a threshold policy.
func NewThreshold(profile Profile, rng *rand.Rand) *Threshold {
	return &Threshold{profile: profile, rng: rng}
}

// Profile returns the tuning in use.
func (t *Threshold) Profile() Profile {
	return t.profile
}

func (t *Threshold) roll(p float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rng.Float64() < p
}

type candidate struct {
	decision Decision
	score    int
}

// candidates lists every legal non-flip side card play and the score it
// leads to.
func candidates(p *pazaak.Player, s *pazaak.MatchState) []candidate {
	if s.TurnUsedSideCard || p.BoardFull() {
		return nil
	}
	var out []candidate
	for _, sc := range p.DealtSideHand {
		if sc.IsUsed || sc.Variant.IsFlip() {
			continue
		}
		polarities := []game.Polarity{game.PolarityNone}
		if sc.Variant.NeedsPolarity() {
			polarities = []game.Polarity{game.PolarityPositive, game.PolarityNegative}
		}
		for _, pol := range polarities {
			v, ok := pazaak.DerivedValue(p, sc, pol)
			if !ok {
				continue
			}
			out = append(out, candidate{
				decision: Decision{Kind: UseSideCard, CardID: sc.ID, Polarity: pol},
				score:    p.Score + v,
			})
		}
	}
	return out
}

// best returns the candidate with the highest score inside [lo, hi].
func best(cands []candidate, lo, hi int) (Decision, bool) {
	found := false
	var pick candidate
	for _, c := range cands {
		if c.score < lo || c.score > hi {
			continue
		}
		if !found || c.score > pick.score {
			pick, found = c, true
		}
	}
	return pick.decision, found
}

// opponentAhead reports whether a standing opponent already beats score.
func opponentAhead(p *pazaak.Player, s *pazaak.MatchState) bool {
	for i := range s.Players {
		o := &s.Players[i]
		if o.ID == p.ID || !o.IsStanding || o.IsBusted() || o.Forfeited {
			continue
		}
		if o.Score > p.Score {
			return true
		}
	}
	return false
}

func (t *Threshold) Decide(p *pazaak.Player, s *pazaak.MatchState) Decision {
	if !s.TurnHasDrawn {
		if len(s.SharedDeck) > 0 && !p.BoardFull() {
			return Decision{Kind: Draw}
		}
		return Decision{Kind: Stand}
	}

	cands := candidates(p, s)
	// The engine ends the turn on a drawn bust, so only hand-built
	// states reach this.
	if p.Score > pazaak.TargetScore {
		if d, ok := best(cands, -1<<31, pazaak.TargetScore); ok {
			return d
		}
		return Decision{Kind: Stand}
	}
	if d, ok := best(cands, pazaak.TargetScore, pazaak.TargetScore); ok && t.roll(t.profile.SideCardRate) {
		return d
	}

	threshold := t.profile.StandThreshold
	if p.Score >= threshold {
		if p.Score < pazaak.TargetScore && opponentAhead(p, s) && t.roll(t.profile.OptimalPlayRate) {
			if d, ok := best(cands, p.Score+1, pazaak.TargetScore); ok {
				return d
			}
			return Decision{Kind: EndTurn}
		}
		return Decision{Kind: Stand}
	}
	if d, ok := best(cands, threshold, pazaak.TargetScore-1); ok && !opponentAhead(p, s) && t.roll(t.profile.SideCardRate) {
		return d
	}
	if p.Score >= threshold-2 && !t.roll(t.profile.OptimalPlayRate) && !opponentAhead(p, s) {
		return Decision{Kind: Stand}
	}
	return Decision{Kind: EndTurn}
}

// sideCardRank orders the pool by how useful a card is to this policy.
func sideCardRank(sc card.SideCard) int {
	v := sc.Value
	if v < 0 {
		v = -v
	}
	switch sc.Variant {
	case card.Tiebreaker:
		return 0
	case card.Variable:
		return 1
	case card.Dual:
		return 2 + v
	case card.Negative:
		return 8 + v
	case card.Positive:
		return 14 + v
	case card.Double:
		return 21
	default:
		return 30
	}
}

// ChooseSideDeck favours sign-choosing cards, then small negatives, then
// small positives.
func (t *Threshold) ChooseSideDeck(pool []card.SideCard) []string {
	ranked := append([]card.SideCard(nil), pool...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return sideCardRank(ranked[i]) < sideCardRank(ranked[j])
	})
	n := card.SideDeckSize
	if n > len(ranked) {
		n = len(ranked)
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = ranked[i].ID
	}
	return ids
}
