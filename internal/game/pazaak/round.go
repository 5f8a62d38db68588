package pazaak

import (
	"go.uber.org/zap"

	"pazaak/internal/card"
	"pazaak/internal/game"
)

// StartNextRound opens the round after a RoundEnd. A void round is replayed
// under the same number.
func (e *Engine) StartNextRound(s *MatchState) (*MatchState, error) {
	if s.Phase != PhaseRoundEnd {
		return e.reject(s, "startNextRound", "", game.Illegal("phase is %s", s.Phase))
	}
	next := s.Clone()
	if last, ok := next.LastRound(); !ok || !last.IsVoid {
		next.RoundNumber++
	}
	for i := range next.Players {
		p := &next.Players[i]
		p.BoardHand = []card.Card{}
		p.HasPlayedTiebreaker = false
		if p.Forfeited {
			p.stand(StandForfeit)
		} else {
			p.IsStanding = false
			p.StandReason = StandNone
		}
		p.recomputeScore()
	}
	next.SharedDeck = card.BuildMainDeck(e.rng)
	next.StartingPlayerIndex = (next.StartingPlayerIndex + 1) % len(next.Players)
	next.CurrentPlayerIndex = next.StartingPlayerIndex
	e.openRound(next)
	switch {
	case next.allResolved():
		e.resolveRound(next)
	case !next.CurrentPlayer().Active():
		e.advanceTurn(next)
	}
	return next, nil
}

// openRound deals the free opening card to every player and hands the turn
// to the current player.
func (e *Engine) openRound(s *MatchState) {
	for i := range s.Players {
		p := &s.Players[i]
		p.BoardHand = []card.Card{}
		if len(s.SharedDeck) > 0 {
			p.BoardHand = append(p.BoardHand, s.SharedDeck[0])
			s.SharedDeck = s.SharedDeck[1:]
		}
		p.recomputeScore()
	}
	s.Phase = PhasePlaying
	s.TurnHasDrawn = false
	s.TurnUsedSideCard = false
}

// advanceTurn moves the turn on. A lone active player keeps the turn; when
// nobody is left to act the round is resolved.
func (e *Engine) advanceTurn(s *MatchState) {
	s.TurnHasDrawn = false
	s.TurnUsedSideCard = false

	cur := s.CurrentPlayerIndex
	othersResolved := true
	for i := range s.Players {
		if i != cur && s.Players[i].Active() {
			othersResolved = false
			break
		}
	}
	if othersResolved && s.Players[cur].Active() {
		return
	}

	n := len(s.Players)
	for step := 1; step <= n; step++ {
		i := (cur + step) % n
		if s.Players[i].Active() {
			s.CurrentPlayerIndex = i
			return
		}
	}
	e.resolveRound(s)
}

// resolveRound scores the round among players at or under the target. A
// tie goes to the only tied player who played a tiebreaker; any other tie,
// or a round where everyone busted, is void.
func (e *Engine) resolveRound(s *MatchState) {
	result := RoundResult{
		RoundNumber:    s.RoundNumber,
		PerPlayerScore: make(map[string]int, len(s.Players)),
	}
	best := 0
	var contenders []int
	for i := range s.Players {
		p := &s.Players[i]
		result.PerPlayerScore[p.ID] = p.Score
		if p.Score > TargetScore {
			continue
		}
		switch {
		case len(contenders) == 0 || p.Score > best:
			best = p.Score
			contenders = []int{i}
		case p.Score == best:
			contenders = append(contenders, i)
		}
	}

	winner := -1
	switch len(contenders) {
	case 0:
	case 1:
		winner = contenders[0]
	default:
		for _, i := range contenders {
			if !s.Players[i].HasPlayedTiebreaker {
				continue
			}
			if winner >= 0 {
				winner = -1
				break
			}
			winner = i
		}
	}

	if winner < 0 {
		result.IsVoid = true
	} else {
		w := &s.Players[winner]
		w.SetsWon++
		result.WinnerID = w.ID
	}
	s.RoundHistory = append(s.RoundHistory, result)
	s.TurnHasDrawn = false
	s.TurnUsedSideCard = false

	s.Phase = PhaseRoundEnd
	if winner >= 0 && s.Players[winner].SetsWon >= SetsToWin {
		s.Phase = PhaseGameEnd
		s.Winner = s.Players[winner].ID
	}
	e.logger.Debug("round resolved",
		zap.Int("round", result.RoundNumber),
		zap.String("winner", result.WinnerID),
		zap.Bool("void", result.IsVoid),
		zap.String("phase", string(s.Phase)),
	)
}
