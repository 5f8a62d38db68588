package game

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalAction is returned when an operation's preconditions do
	// not hold. The state is left unchanged.
	ErrIllegalAction = errors.New("illegal action")
	// ErrInvalidSelection is returned for a side-deck selection with the
	// wrong number of cards or an id outside the player's pool.
	ErrInvalidSelection = errors.New("invalid side deck selection")
)

// Illegal wraps ErrIllegalAction with a reason.
func Illegal(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalAction, fmt.Sprintf(format, args...))
}

// ActionKind names a move a player can request.
type ActionKind string

const (
	ActionDraw        ActionKind = "draw"
	ActionStand       ActionKind = "stand"
	ActionEndTurn     ActionKind = "endTurn"
	ActionUseSideCard ActionKind = "useSideCard"
	ActionNextRound   ActionKind = "nextRound"
	ActionForfeit     ActionKind = "forfeit"
)

// TurnBound reports whether the action may only be taken by the current
// player.
func (k ActionKind) TurnBound() bool {
	switch k {
	case ActionNextRound, ActionForfeit:
		return false
	}
	return true
}

// Polarity is the sign chosen for dual, variable and tiebreaker cards.
type Polarity string

const (
	PolarityNone     Polarity = ""
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
)

// Sign returns +1 or -1; PolarityNone counts as positive.
func (p Polarity) Sign() int {
	if p == PolarityNegative {
		return -1
	}
	return 1
}

// Action represents a move a player can make.
type Action struct {
	Kind     ActionKind `json:"kind"`
	CardID   string     `json:"cardId,omitempty"`
	Polarity Polarity   `json:"polarity,omitempty"`
}

func (a Action) String() string {
	if a.Kind == ActionUseSideCard {
		return fmt.Sprintf("%s(%s%s)", a.Kind, a.CardID, polaritySuffix(a.Polarity))
	}
	return string(a.Kind)
}

func polaritySuffix(p Polarity) string {
	switch p {
	case PolarityPositive:
		return ",+"
	case PolarityNegative:
		return ",-"
	}
	return ""
}
