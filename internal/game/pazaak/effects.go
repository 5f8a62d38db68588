package pazaak

import (
	"pazaak/internal/card"
	"pazaak/internal/game"
)

// PlaySideCard plays one card from the current player's dealt side hand.
// Dual and variable cards need an explicit polarity; a tiebreaker without
// one counts as +1.
func (e *Engine) PlaySideCard(s *MatchState, playerID, cardID string, polarity game.Polarity) (*MatchState, error) {
	const op = "playSideCard"
	if err := checkTurn(s, playerID); err != nil {
		return e.reject(s, op, playerID, err)
	}
	if s.TurnUsedSideCard {
		return e.reject(s, op, playerID, game.Illegal("side card already played this turn"))
	}
	p := s.CurrentPlayer()
	ci := p.dealtIndex(cardID)
	if ci < 0 {
		return e.reject(s, op, playerID, game.Illegal("card %q not in dealt hand", cardID))
	}
	sc := p.DealtSideHand[ci]
	if sc.IsUsed {
		return e.reject(s, op, playerID, game.Illegal("card %q already used", cardID))
	}
	if p.BoardFull() && !sc.Variant.IsFlip() {
		return e.reject(s, op, playerID, game.Illegal("board is full"))
	}
	if (sc.Variant == card.Dual || sc.Variant == card.Variable) && polarity == game.PolarityNone {
		return e.reject(s, op, playerID, game.Illegal("%s card needs a polarity", sc.Variant))
	}

	next := s.Clone()
	p = next.CurrentPlayer()
	p.DealtSideHand[ci].IsUsed = true
	next.TurnUsedSideCard = true

	if sc.Variant.IsFlip() {
		e.flipAll(next, sc.FlipTargets)
		switch {
		case p.IsBusted():
			e.resolveRound(next)
		case p.IsStanding:
			e.advanceTurn(next)
		}
		return next, nil
	}

	if c, ok := derivedCard(p, sc, polarity); ok {
		p.BoardHand = append(p.BoardHand, c)
	}
	if sc.Variant == card.Tiebreaker {
		p.HasPlayedTiebreaker = true
	}
	p.recomputeScore()

	switch {
	case p.Score > TargetScore:
		p.stand(StandBust)
		e.resolveRound(next)
	case p.Score == TargetScore:
		p.stand(StandTwenty)
		e.advanceTurn(next)
	case p.BoardFull():
		p.stand(StandFull)
		e.advanceTurn(next)
	}
	return next, nil
}

// derivedCard computes the board card a non-flip side card adds.
func derivedCard(p *Player, sc card.SideCard, polarity game.Polarity) (card.Card, bool) {
	value := 0
	switch sc.Variant {
	case card.Positive:
		value = abs(sc.Value)
	case card.Negative:
		value = -abs(sc.Value)
	case card.Dual, card.Tiebreaker:
		value = polarity.Sign() * abs(sc.Value)
	case card.Variable:
		value = polarity.Sign() * sc.AlternateValue
	case card.Double:
		last, ok := lastMainDeckCard(p.BoardHand)
		if !ok {
			return card.Card{}, false
		}
		value = last.Value
	default:
		return card.Card{}, false
	}
	return card.Card{ID: "derived-" + sc.ID, Value: value}, true
}

// DerivedValue returns the value a non-flip side card would add to p's board.
func DerivedValue(p *Player, sc card.SideCard, polarity game.Polarity) (int, bool) {
	c, ok := derivedCard(p, sc, polarity)
	return c.Value, ok
}

func lastMainDeckCard(board []card.Card) (card.Card, bool) {
	for i := len(board) - 1; i >= 0; i-- {
		if board[i].IsMainDeck {
			return board[i], true
		}
	}
	return card.Card{}, false
}

// applyFlip returns a new board with the sign of every card whose absolute
// value is one of targets inverted.
func applyFlip(board []card.Card, targets []int) []card.Card {
	out := card.CloneCards(board)
	for i := range out {
		v := abs(out[i].Value)
		for _, t := range targets {
			if v == t {
				out[i].Value = -out[i].Value
				break
			}
		}
	}
	return out
}

// flipAll flips every board in s and re-evaluates stands. A bust that the
// flip brings back under the target reopens the player.
func (e *Engine) flipAll(s *MatchState, targets []int) {
	for i := range s.Players {
		p := &s.Players[i]
		p.BoardHand = applyFlip(p.BoardHand, targets)
		p.recomputeScore()
		if p.Forfeited {
			continue
		}
		switch {
		case p.Score > TargetScore:
			p.stand(StandBust)
		case p.Score == TargetScore:
			if !p.IsStanding || p.StandReason == StandBust {
				p.stand(StandTwenty)
			}
		case p.IsStanding && p.StandReason == StandBust:
			p.IsStanding = false
			p.StandReason = StandNone
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
