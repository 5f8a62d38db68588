package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"pazaak/internal/card"
	"pazaak/internal/game"
	"pazaak/internal/game/pazaak"
	"pazaak/internal/strategy"
)

var errQuit = errors.New("quit")

const help = `commands:
  draw | stand | end | forfeit | next
  play N [+|-]     play the Nth card of your side hand
  deck auto        let the computer choose your side deck
  deck N N ...     choose ten cards of your pool by number
  ready | unready
  start | new      (host only)
  quit`

// seat is what a console player can ask of any session.
type seat interface {
	SubmitAction(ctx context.Context, a game.Action) error
	SelectSideDeck(ctx context.Context, cardIDs []string) error
	SetReady(ctx context.Context, ready bool) error
}

// control is the authority-only part of the console.
type control interface {
	StartGame(ctx context.Context) error
	NewGame(ctx context.Context) error
}

type console struct {
	name     string
	seat     seat
	control  control // nil on followers
	snapshot func() (*pazaak.MatchState, uint64)
	picker   strategy.Strategy
}

type commandKind int

const (
	cmdAction commandKind = iota
	cmdDeck
	cmdReady
	cmdStart
	cmdNewGame
	cmdHelp
	cmdQuit
)

type command struct {
	kind   commandKind
	action game.Action
	deck   []string
	ready  bool
}

func (c *console) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	pterm.Info.Println(`type "help" for commands`)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		s, _ := c.snapshot()
		var me *pazaak.Player
		if s != nil {
			me = s.Player(c.name)
		}
		cmd, err := parseCommand(line, me, c.picker)
		if err != nil {
			pterm.Warning.Println(err)
			continue
		}
		if err := c.exec(ctx, cmd); err != nil {
			if errors.Is(err, errQuit) {
				return err
			}
			pterm.Warning.Println(err)
		}
	}
	return sc.Err()
}

func (c *console) exec(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdAction:
		return c.seat.SubmitAction(ctx, cmd.action)
	case cmdDeck:
		return c.seat.SelectSideDeck(ctx, cmd.deck)
	case cmdReady:
		return c.seat.SetReady(ctx, cmd.ready)
	case cmdStart, cmdNewGame:
		if c.control == nil {
			return errors.New("only the host can do that")
		}
		if cmd.kind == cmdStart {
			return c.control.StartGame(ctx)
		}
		return c.control.NewGame(ctx)
	case cmdHelp:
		fmt.Println(help)
		return nil
	case cmdQuit:
		return errQuit
	}
	return nil
}

// parseCommand turns a console line into a request. me is the local
// player in the latest snapshot, nil before a match exists.
func parseCommand(line string, me *pazaak.Player, picker strategy.Strategy) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{}, errors.New("empty command")
	}
	act := func(k game.ActionKind) (command, error) {
		return command{kind: cmdAction, action: game.Action{Kind: k}}, nil
	}
	switch fields[0] {
	case "draw", "d":
		return act(game.ActionDraw)
	case "stand", "s":
		return act(game.ActionStand)
	case "end", "e":
		return act(game.ActionEndTurn)
	case "forfeit":
		return act(game.ActionForfeit)
	case "next", "n":
		return act(game.ActionNextRound)
	case "ready":
		return command{kind: cmdReady, ready: true}, nil
	case "unready":
		return command{kind: cmdReady}, nil
	case "start":
		return command{kind: cmdStart}, nil
	case "new":
		return command{kind: cmdNewGame}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	case "play", "p":
		return parsePlay(fields[1:], me)
	case "deck":
		return parseDeck(fields[1:], me, picker)
	}
	return command{}, fmt.Errorf("unknown command %q", fields[0])
}

func parsePlay(args []string, me *pazaak.Player) (command, error) {
	if me == nil {
		return command{}, errors.New("no match in progress")
	}
	if len(args) == 0 || len(args) > 2 {
		return command{}, errors.New("usage: play N [+|-]")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(me.DealtSideHand) {
		return command{}, fmt.Errorf("pick a card between 1 and %d", len(me.DealtSideHand))
	}
	a := game.Action{Kind: game.ActionUseSideCard, CardID: me.DealtSideHand[n-1].ID}
	if len(args) == 2 {
		switch args[1] {
		case "+":
			a.Polarity = game.PolarityPositive
		case "-":
			a.Polarity = game.PolarityNegative
		default:
			return command{}, fmt.Errorf("polarity must be + or -, got %q", args[1])
		}
	}
	return command{kind: cmdAction, action: a}, nil
}

func parseDeck(args []string, me *pazaak.Player, picker strategy.Strategy) (command, error) {
	if me == nil {
		return command{}, errors.New("no match in progress")
	}
	if len(args) == 1 && args[0] == "auto" {
		return command{kind: cmdDeck, deck: picker.ChooseSideDeck(me.SideCardPool)}, nil
	}
	if len(args) != card.SideDeckSize {
		return command{}, fmt.Errorf("choose exactly %d cards", card.SideDeckSize)
	}
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(me.SideCardPool) {
			return command{}, fmt.Errorf("card %q is not between 1 and %d", arg, len(me.SideCardPool))
		}
		ids = append(ids, me.SideCardPool[n-1].ID)
	}
	return command{kind: cmdDeck, deck: ids}, nil
}
