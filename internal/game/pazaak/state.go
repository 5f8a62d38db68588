package pazaak

import (
	"pazaak/internal/card"
)

// Phase is the lifecycle stage of a match.
type Phase string

const (
	PhaseSideDeckSelection Phase = "SideDeckSelection"
	PhasePlaying           Phase = "Playing"
	PhaseRoundEnd          Phase = "RoundEnd"
	PhaseGameEnd           Phase = "GameEnd"
)

const (
	TargetScore  = 20
	MaxBoardSize = 9
	SetsToWin    = 3
	// ForfeitScore is pinned on a forfeited player so they always lose the round.
	ForfeitScore = 21
)

// StandReason records why a player is standing. A flip may only reopen a
// stand that was forced by a bust.
type StandReason string

const (
	StandNone      StandReason = ""
	StandVoluntary StandReason = "voluntary"
	StandTwenty    StandReason = "twenty"
	StandBust      StandReason = "bust"
	StandFull      StandReason = "full"
	StandForfeit   StandReason = "forfeit"
)

// Player holds one seat's state.
type Player struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	BoardHand           []card.Card     `json:"boardHand"`
	SideCardPool        []card.SideCard `json:"sideCardPool"`
	SelectedSideDeck    []card.SideCard `json:"selectedSideDeck"`
	DealtSideHand       []card.SideCard `json:"dealtSideHand"`
	Score               int             `json:"score"`
	SetsWon             int             `json:"setsWon"`
	IsStanding          bool            `json:"isStanding"`
	StandReason         StandReason     `json:"standReason,omitempty"`
	HasPlayedTiebreaker bool            `json:"hasPlayedTiebreaker"`
	Forfeited           bool            `json:"forfeited,omitempty"`
}

// IsBusted reports whether the player's score exceeds the target.
func (p *Player) IsBusted() bool {
	return p.Score > TargetScore
}

// Active reports whether the player may still act this round.
func (p *Player) Active() bool {
	return !p.IsStanding
}

// BoardFull reports whether the board has no slot left.
func (p *Player) BoardFull() bool {
	return len(p.BoardHand) >= MaxBoardSize
}

// HasSelected reports whether the player has locked in a full side deck.
func (p *Player) HasSelected() bool {
	return len(p.SelectedSideDeck) == card.SideDeckSize
}

func (p *Player) dealtIndex(id string) int {
	for i, sc := range p.DealtSideHand {
		if sc.ID == id {
			return i
		}
	}
	return -1
}

func (p *Player) recomputeScore() {
	if p.Forfeited {
		p.Score = ForfeitScore
		return
	}
	p.Score = card.Sum(p.BoardHand)
}

func (p *Player) stand(reason StandReason) {
	p.IsStanding = true
	p.StandReason = reason
}

func (p *Player) clone() Player {
	cp := *p
	cp.BoardHand = card.CloneCards(p.BoardHand)
	cp.SideCardPool = card.CloneSideCards(p.SideCardPool)
	cp.SelectedSideDeck = card.CloneSideCards(p.SelectedSideDeck)
	cp.DealtSideHand = card.CloneSideCards(p.DealtSideHand)
	return cp
}

// RoundResult is recorded once per resolved round and never changed.
type RoundResult struct {
	RoundNumber    int            `json:"roundNumber"`
	WinnerID       string         `json:"winnerId,omitempty"`
	IsVoid         bool           `json:"isVoid"`
	PerPlayerScore map[string]int `json:"perPlayerScore"`
}

// MatchState is an immutable snapshot of a match. Engine operations never
// modify their input; they return a new snapshot.
type MatchState struct {
	Players             []Player      `json:"players"`
	CurrentPlayerIndex  int           `json:"currentPlayerIndex"`
	StartingPlayerIndex int           `json:"startingPlayerIndex"`
	SharedDeck          []card.Card   `json:"sharedDeck"`
	Phase               Phase         `json:"phase"`
	RoundNumber         int           `json:"roundNumber"`
	RoundHistory        []RoundResult `json:"roundHistory"`
	TurnHasDrawn        bool          `json:"turnHasDrawn"`
	TurnUsedSideCard    bool          `json:"turnUsedSideCard"`
	Winner              string        `json:"winner,omitempty"`
}

// Clone returns a deep copy of s.
func (s *MatchState) Clone() *MatchState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Players = make([]Player, len(s.Players))
	for i := range s.Players {
		cp.Players[i] = s.Players[i].clone()
	}
	cp.SharedDeck = card.CloneCards(s.SharedDeck)
	if s.RoundHistory != nil {
		cp.RoundHistory = make([]RoundResult, len(s.RoundHistory))
		for i, r := range s.RoundHistory {
			scores := make(map[string]int, len(r.PerPlayerScore))
			for k, v := range r.PerPlayerScore {
				scores[k] = v
			}
			r.PerPlayerScore = scores
			cp.RoundHistory[i] = r
		}
	}
	return &cp
}

// CurrentPlayer returns the player whose turn it is.
func (s *MatchState) CurrentPlayer() *Player {
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return nil
	}
	return &s.Players[s.CurrentPlayerIndex]
}

// Player looks up a player by id.
func (s *MatchState) Player(id string) *Player {
	if i := s.indexOf(id); i >= 0 {
		return &s.Players[i]
	}
	return nil
}

func (s *MatchState) indexOf(id string) int {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return i
		}
	}
	return -1
}

// IsCurrent reports whether id holds the turn.
func (s *MatchState) IsCurrent(id string) bool {
	p := s.CurrentPlayer()
	return p != nil && p.ID == id
}

// Completion maps each player id to whether their side deck is selected.
func (s *MatchState) Completion() map[string]bool {
	out := make(map[string]bool, len(s.Players))
	for i := range s.Players {
		out[s.Players[i].ID] = s.Players[i].HasSelected()
	}
	return out
}

// LastRound returns the most recent round result, if any.
func (s *MatchState) LastRound() (RoundResult, bool) {
	if len(s.RoundHistory) == 0 {
		return RoundResult{}, false
	}
	return s.RoundHistory[len(s.RoundHistory)-1], true
}

func (s *MatchState) allResolved() bool {
	for i := range s.Players {
		if s.Players[i].Active() {
			return false
		}
	}
	return true
}
