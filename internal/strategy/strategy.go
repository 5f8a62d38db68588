// Package strategy holds the decision policies that drive computer-controlled
// seats. A strategy never touches the engine; it returns a Decision that a
// driving loop submits exactly as a human input would be.
package strategy

import (
	"pazaak/internal/card"
	"pazaak/internal/game"
	"pazaak/internal/game/pazaak"
)

// Kind is the type of a decision.
type Kind string

const (
	Draw        Kind = "draw"
	Stand       Kind = "stand"
	EndTurn     Kind = "endTurn"
	UseSideCard Kind = "useSideCard"
)

// Decision is what a strategy wants to do with its turn opportunity.
type Decision struct {
	Kind     Kind
	CardID   string
	Polarity game.Polarity
}

// Action converts the decision into the wire action.
func (d Decision) Action() game.Action {
	switch d.Kind {
	case Draw:
		return game.Action{Kind: game.ActionDraw}
	case EndTurn:
		return game.Action{Kind: game.ActionEndTurn}
	case UseSideCard:
		return game.Action{Kind: game.ActionUseSideCard, CardID: d.CardID, Polarity: d.Polarity}
	default:
		return game.Action{Kind: game.ActionStand}
	}
}

// Strategy chooses actions for one seat.
type Strategy interface {
	// Decide is consulted once per turn opportunity of player, who must be
	// the current player of snapshot.
	Decide(player *pazaak.Player, snapshot *pazaak.MatchState) Decision
	// ChooseSideDeck picks the ten side cards to play the match with.
	ChooseSideDeck(pool []card.SideCard) []string
}
