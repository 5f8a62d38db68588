package card

// Variant identifies the behaviour of a side card.
type Variant string

const (
	Positive   Variant = "positive"
	Negative   Variant = "negative"
	Dual       Variant = "dual"
	Flip24     Variant = "flip_2_4"
	Flip36     Variant = "flip_3_6"
	Double     Variant = "double"
	Tiebreaker Variant = "tiebreaker"
	Variable   Variant = "variable"
)

// IsFlip reports whether the variant flips board cards instead of adding one.
func (v Variant) IsFlip() bool {
	return v == Flip24 || v == Flip36
}

// NeedsPolarity reports whether playing the variant requires a sign choice.
func (v Variant) NeedsPolarity() bool {
	return v == Dual || v == Variable || v == Tiebreaker
}

// Card is a card on a player's board. Main-deck cards come from the shared
// deck; derived cards are produced by side-card effects.
type Card struct {
	ID         string `json:"id"`
	Value      int    `json:"value"`
	IsMainDeck bool   `json:"isMainDeck"`
}

// SideCard is one card of a player's side deck.
type SideCard struct {
	ID             string  `json:"id"`
	Value          int     `json:"value"`
	Variant        Variant `json:"variant"`
	IsUsed         bool    `json:"isUsed"`
	AlternateValue int     `json:"alternateValue,omitempty"`
	FlipTargets    []int   `json:"flipTargets,omitempty"`
}

// Clone returns a copy that shares no memory with sc.
func (sc SideCard) Clone() SideCard {
	if sc.FlipTargets != nil {
		sc.FlipTargets = append([]int(nil), sc.FlipTargets...)
	}
	return sc
}

// Sum adds up the values of cards.
func Sum(cards []Card) int {
	total := 0
	for _, c := range cards {
		total += c.Value
	}
	return total
}

// CloneCards copies a board.
func CloneCards(cards []Card) []Card {
	if cards == nil {
		return nil
	}
	out := make([]Card, len(cards))
	copy(out, cards)
	return out
}

// CloneSideCards deep-copies a slice of side cards.
func CloneSideCards(cards []SideCard) []SideCard {
	if cards == nil {
		return nil
	}
	out := make([]SideCard, len(cards))
	for i, c := range cards {
		out[i] = c.Clone()
	}
	return out
}
