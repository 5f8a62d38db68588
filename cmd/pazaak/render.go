package main

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"pazaak/internal/card"
	"pazaak/internal/game/pazaak"
)

// view prints snapshots for the local player. Hooks may fire from several
// goroutines, so output is serialised.
type view struct {
	name string

	mu      sync.Mutex
	version uint64
	rounds  int
	phase   pazaak.Phase
	names   string
}

func newView(name string) *view {
	return &view{name: name}
}

func (v *view) roster(names []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	joined := strings.Join(names, ", ")
	if joined == v.names {
		return
	}
	v.names = joined
	pterm.Info.Printfln("players: %s", joined)
}

func (v *view) render(s *pazaak.MatchState, version uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if version <= v.version {
		return
	}
	// a new match restarts the history
	if len(s.RoundHistory) < v.rounds {
		v.rounds = 0
	}
	v.version = version

	for _, r := range s.RoundHistory[v.rounds:] {
		pterm.Info.Println(roundSummary(r))
		pterm.DefaultTable.WithHasHeader().WithData(scoreTable(s, r)).Render()
	}
	v.rounds = len(s.RoundHistory)

	entered := s.Phase != v.phase
	v.phase = s.Phase
	me := s.Player(v.name)

	switch s.Phase {
	case pazaak.PhaseSideDeckSelection:
		if entered && me != nil {
			pterm.DefaultSection.Println("Choose your side deck")
			fmt.Println(numbered(me.SideCardPool))
		}
	case pazaak.PhasePlaying:
		pterm.DefaultTable.WithHasHeader().WithData(boardTable(s)).Render()
		if me != nil && len(me.DealtSideHand) > 0 {
			fmt.Println("your hand: " + numbered(me.DealtSideHand))
		}
	case pazaak.PhaseGameEnd:
		if entered {
			pterm.Success.Printfln("%s wins the match after %d rounds", s.Winner, len(s.RoundHistory))
		}
	}
}

func roundSummary(r pazaak.RoundResult) string {
	label := humanize.Ordinal(r.RoundNumber) + " round"
	if r.IsVoid {
		return label + " is void and will be replayed"
	}
	return fmt.Sprintf("%s won by %s", label, r.WinnerID)
}

func scoreTable(s *pazaak.MatchState, r pazaak.RoundResult) pterm.TableData {
	data := pterm.TableData{{"Player", "Score", "Sets"}}
	for _, p := range s.Players {
		data = append(data, []string{p.ID, strconv.Itoa(r.PerPlayerScore[p.ID]), strconv.Itoa(p.SetsWon)})
	}
	return data
}

func boardTable(s *pazaak.MatchState) pterm.TableData {
	data := pterm.TableData{{"", "Player", "Board", "Score", "Sets", "Status"}}
	for i, p := range s.Players {
		marker := ""
		if i == s.CurrentPlayerIndex {
			marker = ">"
		}
		data = append(data, []string{
			marker, p.ID, board(p.BoardHand), strconv.Itoa(p.Score), strconv.Itoa(p.SetsWon), status(&p),
		})
	}
	return data
}

func board(cards []card.Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = strconv.Itoa(c.Value)
	}
	return strings.Join(parts, " ")
}

func status(p *pazaak.Player) string {
	switch {
	case p.Forfeited:
		return "forfeited"
	case p.IsBusted():
		return "bust"
	case p.IsStanding:
		return "stands"
	}
	return ""
}

// sideLabel is the short face of a side card, e.g. "+3", "±2", "2&4".
func sideLabel(sc card.SideCard) string {
	switch sc.Variant {
	case card.Positive:
		return "+" + strconv.Itoa(sc.Value)
	case card.Negative:
		return "-" + strconv.Itoa(sc.Value)
	case card.Dual:
		return "±" + strconv.Itoa(sc.Value)
	case card.Flip24:
		return "2&4"
	case card.Flip36:
		return "3&6"
	case card.Double:
		return "D"
	case card.Tiebreaker:
		return "±" + strconv.Itoa(sc.Value) + "T"
	case card.Variable:
		return fmt.Sprintf("±%d/%d", sc.Value, sc.AlternateValue)
	}
	return string(sc.Variant)
}

func numbered(cards []card.SideCard) string {
	parts := make([]string, 0, len(cards))
	for i, sc := range cards {
		if sc.IsUsed {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d)%s", i+1, sideLabel(sc)))
	}
	return strings.Join(parts, " ")
}
