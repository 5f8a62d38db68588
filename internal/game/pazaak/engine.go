package pazaak

import (
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"

	"go.uber.org/zap"

	"pazaak/internal/card"
	"pazaak/internal/game"
)

const maxPlayers = 4

// Seat describes a player joining a new match.
type Seat struct {
	ID   string
	Name string
}

// Engine applies the rules of Pazaak to MatchState snapshots. It holds no
// match state of its own; the only mutable thing it owns is the random
// source used for shuffling and dealing, so a single Engine must not be
// shared between goroutines without external locking.
type Engine struct {
	rng      *rand.Rand
	logger   *zap.Logger
	rejected atomic.Int64
}

// NewEngine creates an engine. A nil logger disables logging.
func NewEngine(rng *rand.Rand, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{rng: rng, logger: logger}
}

// Rejected returns how many operations were refused as illegal.
func (e *Engine) Rejected() int64 {
	return e.rejected.Load()
}

// NewMatch creates a match in the side deck selection phase.
func (e *Engine) NewMatch(seats []Seat) (*MatchState, error) {
	if len(seats) == 0 {
		return nil, errors.New("new match: no players")
	}
	if len(seats) > maxPlayers {
		return nil, fmt.Errorf("new match: %d players, at most %d allowed", len(seats), maxPlayers)
	}
	s := &MatchState{
		Players:      make([]Player, 0, len(seats)),
		SharedDeck:   card.BuildMainDeck(e.rng),
		Phase:        PhaseSideDeckSelection,
		RoundNumber:  1,
		RoundHistory: []RoundResult{},
	}
	seen := make(map[string]bool, len(seats))
	for _, seat := range seats {
		if seat.ID == "" {
			return nil, errors.New("new match: empty player id")
		}
		if seen[seat.ID] {
			return nil, fmt.Errorf("new match: duplicate player id %q", seat.ID)
		}
		seen[seat.ID] = true
		name := seat.Name
		if name == "" {
			name = seat.ID
		}
		s.Players = append(s.Players, Player{
			ID:           seat.ID,
			Name:         name,
			BoardHand:    []card.Card{},
			SideCardPool: card.BuildSideCardPool(),
		})
	}
	return s, nil
}

func (e *Engine) reject(s *MatchState, op, playerID string, err error) (*MatchState, error) {
	e.rejected.Add(1)
	e.logger.Debug("operation rejected",
		zap.String("op", op),
		zap.String("player", playerID),
		zap.Error(err),
	)
	return s, err
}

// SelectSideDeck records a player's ten chosen side cards. When the last
// player completes their selection every player is dealt four of their ten
// and the first round opens.
func (e *Engine) SelectSideDeck(s *MatchState, playerID string, cardIDs []string) (*MatchState, error) {
	const op = "selectSideDeck"
	if s.Phase != PhaseSideDeckSelection {
		return e.reject(s, op, playerID, game.Illegal("phase is %s", s.Phase))
	}
	idx := s.indexOf(playerID)
	if idx < 0 {
		return e.reject(s, op, playerID, game.Illegal("unknown player"))
	}
	if len(cardIDs) != card.SideDeckSize {
		return e.reject(s, op, playerID, fmt.Errorf("%w: got %d cards, want %d",
			game.ErrInvalidSelection, len(cardIDs), card.SideDeckSize))
	}

	pool := s.Players[idx].SideCardPool
	byID := make(map[string]card.SideCard, len(pool))
	for _, sc := range pool {
		byID[sc.ID] = sc
	}
	selected := make([]card.SideCard, 0, len(cardIDs))
	picked := make(map[string]bool, len(cardIDs))
	for _, id := range cardIDs {
		sc, ok := byID[id]
		if !ok {
			return e.reject(s, op, playerID, fmt.Errorf("%w: card %q not in pool", game.ErrInvalidSelection, id))
		}
		if picked[id] {
			return e.reject(s, op, playerID, fmt.Errorf("%w: card %q selected twice", game.ErrInvalidSelection, id))
		}
		picked[id] = true
		sc = sc.Clone()
		sc.IsUsed = false
		selected = append(selected, sc)
	}

	next := s.Clone()
	next.Players[idx].SelectedSideDeck = selected
	for i := range next.Players {
		if !next.Players[i].HasSelected() {
			return next, nil
		}
	}

	for i := range next.Players {
		p := &next.Players[i]
		p.DealtSideHand = card.CloneSideCards(card.Sample(e.rng, p.SelectedSideDeck, card.SideHandSize))
	}
	next.CurrentPlayerIndex = next.StartingPlayerIndex
	e.openRound(next)
	e.logger.Debug("side decks complete, first round open", zap.Int("players", len(next.Players)))
	return next, nil
}

// Draw takes the top card of the shared deck for the current player.
func (e *Engine) Draw(s *MatchState, playerID string) (*MatchState, error) {
	const op = "draw"
	if err := checkTurn(s, playerID); err != nil {
		return e.reject(s, op, playerID, err)
	}
	p := s.CurrentPlayer()
	switch {
	case s.TurnHasDrawn:
		return e.reject(s, op, playerID, game.Illegal("already drew this turn"))
	case p.BoardFull():
		return e.reject(s, op, playerID, game.Illegal("board is full"))
	case len(s.SharedDeck) == 0:
		return e.reject(s, op, playerID, game.Illegal("shared deck is empty"))
	}

	next := s.Clone()
	p = next.CurrentPlayer()
	drawn := next.SharedDeck[0]
	next.SharedDeck = next.SharedDeck[1:]
	p.BoardHand = append(p.BoardHand, drawn)
	p.recomputeScore()
	next.TurnHasDrawn = true

	switch {
	case p.Score == TargetScore:
		p.stand(StandTwenty)
		e.advanceTurn(next)
	case p.Score > TargetScore:
		p.stand(StandBust)
		e.advanceTurn(next)
	case p.BoardFull():
		p.stand(StandFull)
		e.advanceTurn(next)
	}
	return next, nil
}

// Stand locks in the current player's score for the rest of the round.
func (e *Engine) Stand(s *MatchState, playerID string) (*MatchState, error) {
	if err := checkTurn(s, playerID); err != nil {
		return e.reject(s, "stand", playerID, err)
	}
	next := s.Clone()
	next.CurrentPlayer().stand(StandVoluntary)
	e.advanceTurn(next)
	return next, nil
}

// EndTurn passes the turn. The player must have drawn first.
func (e *Engine) EndTurn(s *MatchState, playerID string) (*MatchState, error) {
	const op = "endTurn"
	if err := checkTurn(s, playerID); err != nil {
		return e.reject(s, op, playerID, err)
	}
	if !s.TurnHasDrawn {
		return e.reject(s, op, playerID, game.Illegal("must draw before ending the turn"))
	}
	next := s.Clone()
	e.advanceTurn(next)
	return next, nil
}

// Forfeit concedes the round: the player stands with a score that always
// loses. A forfeited player stays out of every later round of the match.
func (e *Engine) Forfeit(s *MatchState, playerID string) (*MatchState, error) {
	const op = "forfeit"
	if s.Phase != PhasePlaying {
		return e.reject(s, op, playerID, game.Illegal("phase is %s", s.Phase))
	}
	idx := s.indexOf(playerID)
	if idx < 0 {
		return e.reject(s, op, playerID, game.Illegal("unknown player"))
	}
	if s.Players[idx].Forfeited {
		return e.reject(s, op, playerID, game.Illegal("already forfeited"))
	}

	next := s.Clone()
	p := &next.Players[idx]
	p.Forfeited = true
	p.stand(StandForfeit)
	p.recomputeScore()
	switch {
	case next.allResolved():
		e.resolveRound(next)
	case idx == next.CurrentPlayerIndex:
		e.advanceTurn(next)
	}
	return next, nil
}

// Apply dispatches a wire action onto the matching operation.
func (e *Engine) Apply(s *MatchState, playerID string, a game.Action) (*MatchState, error) {
	switch a.Kind {
	case game.ActionDraw:
		return e.Draw(s, playerID)
	case game.ActionStand:
		return e.Stand(s, playerID)
	case game.ActionEndTurn:
		return e.EndTurn(s, playerID)
	case game.ActionUseSideCard:
		return e.PlaySideCard(s, playerID, a.CardID, a.Polarity)
	case game.ActionNextRound:
		return e.StartNextRound(s)
	case game.ActionForfeit:
		return e.Forfeit(s, playerID)
	default:
		return e.reject(s, string(a.Kind), playerID, game.Illegal("unknown action %q", a.Kind))
	}
}

func checkTurn(s *MatchState, playerID string) error {
	if s.Phase != PhasePlaying {
		return game.Illegal("phase is %s", s.Phase)
	}
	if !s.IsCurrent(playerID) {
		return game.Illegal("not %s's turn", playerID)
	}
	if s.CurrentPlayer().IsStanding {
		return game.Illegal("player is standing")
	}
	return nil
}
