package main

import (
	"testing"

	"pazaak/internal/card"
	"pazaak/internal/game/pazaak"
)

func TestSideLabel(t *testing.T) {
	tests := []struct {
		card card.SideCard
		want string
	}{
		{card.SideCard{Value: 3, Variant: card.Positive}, "+3"},
		{card.SideCard{Value: 5, Variant: card.Negative}, "-5"},
		{card.SideCard{Value: 2, Variant: card.Dual}, "±2"},
		{card.SideCard{Variant: card.Flip24}, "2&4"},
		{card.SideCard{Variant: card.Flip36}, "3&6"},
		{card.SideCard{Variant: card.Double}, "D"},
		{card.SideCard{Value: 1, Variant: card.Tiebreaker}, "±1T"},
		{card.SideCard{Value: 1, AlternateValue: 2, Variant: card.Variable}, "±1/2"},
	}
	for _, tt := range tests {
		if got := sideLabel(tt.card); got != tt.want {
			t.Errorf("sideLabel(%s) = %q, want %q", tt.card.Variant, got, tt.want)
		}
	}
}

func TestNumberedSkipsUsedCards(t *testing.T) {
	hand := []card.SideCard{
		{Value: 1, Variant: card.Positive},
		{Value: 2, Variant: card.Negative, IsUsed: true},
		{Value: 3, Variant: card.Dual},
	}
	if got := numbered(hand); got != "1)+1 3)±3" {
		t.Fatalf("numbered = %q", got)
	}
}

func TestRoundSummary(t *testing.T) {
	tests := []struct {
		r    pazaak.RoundResult
		want string
	}{
		{pazaak.RoundResult{RoundNumber: 1, WinnerID: "bob"}, "1st round won by bob"},
		{pazaak.RoundResult{RoundNumber: 3, IsVoid: true}, "3rd round is void and will be replayed"},
	}
	for _, tt := range tests {
		if got := roundSummary(tt.r); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestBoardTable(t *testing.T) {
	s := &pazaak.MatchState{
		CurrentPlayerIndex: 1,
		Players: []pazaak.Player{
			{ID: "alice", BoardHand: []card.Card{{Value: 10}, {Value: 9}, {Value: 4}}, Score: 23, IsStanding: true, StandReason: pazaak.StandBust},
			{ID: "bob", BoardHand: []card.Card{{Value: 7}}, Score: 7, SetsWon: 2},
		},
	}
	data := boardTable(s)
	if len(data) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(data))
	}
	if got := data[1]; got[2] != "10 9 4" || got[5] != "bust" || got[0] != "" {
		t.Fatalf("alice row = %v", got)
	}
	if got := data[2]; got[0] != ">" || got[4] != "2" || got[5] != "" {
		t.Fatalf("bob row = %v", got)
	}
}
