package card

import (
	"fmt"
	"math/rand"
)

const (
	MainDeckSize   = 40
	SidePoolSize   = 43
	SideDeckSize   = 10
	SideHandSize   = 4
	maxCardValue   = 10
	copiesPerValue = 4
	maxSideValue   = 6
)

// BuildMainDeck returns the 40-card shared deck (1..10, four copies each)
// shuffled with rng. Ids follow creation order.
func BuildMainDeck(rng *rand.Rand) []Card {
	deck := make([]Card, 0, MainDeckSize)
	for v := 1; v <= maxCardValue; v++ {
		for c := 0; c < copiesPerValue; c++ {
			deck = append(deck, Card{
				ID:         fmt.Sprintf("main-%02d", len(deck)),
				Value:      v,
				IsMainDeck: true,
			})
		}
	}
	Shuffle(rng, deck)
	return deck
}

// BuildSideCardPool returns the fixed 43-card side pool. The order, and so
// every id, is identical on every peer.
func BuildSideCardPool() []SideCard {
	pool := make([]SideCard, 0, SidePoolSize)
	add := func(sc SideCard) {
		sc.ID = fmt.Sprintf("side-%02d", len(pool))
		pool = append(pool, sc)
	}
	for _, variant := range []Variant{Positive, Negative, Dual} {
		for copyN := 0; copyN < 2; copyN++ {
			for v := 1; v <= maxSideValue; v++ {
				value := v
				if variant == Negative {
					value = -v
				}
				add(SideCard{Value: value, Variant: variant})
			}
		}
	}
	for i := 0; i < 2; i++ {
		add(SideCard{Variant: Flip24, FlipTargets: []int{2, 4}})
	}
	for i := 0; i < 2; i++ {
		add(SideCard{Variant: Flip36, FlipTargets: []int{3, 6}})
	}
	add(SideCard{Variant: Double})
	add(SideCard{Value: 1, Variant: Tiebreaker})
	add(SideCard{Value: 1, Variant: Variable, AlternateValue: 2})
	return pool
}

// Shuffle permutes items in place using Fisher–Yates.
func Shuffle[T any](rng *rand.Rand, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// Sample returns n items drawn without replacement from items. The input
// is not modified. If n exceeds len(items) every item is returned.
func Sample[T any](rng *rand.Rand, items []T, n int) []T {
	tmp := append([]T(nil), items...)
	Shuffle(rng, tmp)
	if n > len(tmp) {
		n = len(tmp)
	}
	return tmp[:n]
}
