// Package bot drives a seat with a strategy. A Driver watches snapshots
// from a session and submits one request per actionable snapshot.
package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pazaak/internal/game"
	"pazaak/internal/game/pazaak"
	"pazaak/internal/strategy"
)

// Submitter sends requests for one seat. Both a follower session and a local
// seat on the authority satisfy it.
type Submitter interface {
	SubmitAction(ctx context.Context, a game.Action) error
	SelectSideDeck(ctx context.Context, cardIDs []string) error
}

// Option configures a Driver.
type Option func(*Driver)

// WithThink delays every request by d.
func WithThink(d time.Duration) Option {
	return func(dr *Driver) { dr.think = d }
}

// WithLogger sets the driver's logger.
func WithLogger(l *zap.Logger) Option {
	return func(dr *Driver) { dr.logger = l }
}

// WithRoundAdvance lets the driver request the next round when one ends.
// Only one seat per match should have this set.
func WithRoundAdvance() Option {
	return func(dr *Driver) { dr.advance = true }
}

// Driver plays the seat Name using a Strategy.
type Driver struct {
	name     string
	strategy strategy.Strategy
	sub      Submitter
	think    time.Duration
	advance  bool
	logger   *zap.Logger

	updates chan *pazaak.MatchState
}

// New creates a driver for the seat name.
func New(name string, s strategy.Strategy, sub Submitter, opts ...Option) *Driver {
	d := &Driver{
		name:     name,
		strategy: s,
		sub:      sub,
		logger:   zap.NewNop(),
		updates:  make(chan *pazaak.MatchState, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("seat", name))
	return d
}

// Name returns the seat the driver plays.
func (d *Driver) Name() string {
	return d.name
}

// Observe hands the driver a new snapshot. It never blocks; an unconsumed
// older snapshot is replaced.
func (d *Driver) Observe(s *pazaak.MatchState) {
	for {
		select {
		case d.updates <- s:
			return
		default:
		}
		select {
		case <-d.updates:
		default:
		}
	}
}

// Run consumes snapshots until ctx is canceled.
func (d *Driver) Run(ctx context.Context) error {
	for {
		var s *pazaak.MatchState
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s = <-d.updates:
		}
		if !d.Actionable(s) {
			continue
		}
		if d.think > 0 {
			t := time.NewTimer(d.think)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		select {
		case newer := <-d.updates:
			s = newer
		default:
		}
		if err := d.Step(ctx, s); err != nil {
			d.logger.Warn("request refused", zap.Error(err))
		}
	}
}

// Actionable reports whether s calls for a request from this seat.
func (d *Driver) Actionable(s *pazaak.MatchState) bool {
	if s == nil {
		return false
	}
	me := s.Player(d.name)
	if me == nil {
		return false
	}
	switch s.Phase {
	case pazaak.PhaseSideDeckSelection:
		return !me.HasSelected()
	case pazaak.PhasePlaying:
		return s.IsCurrent(d.name) && !me.IsStanding
	case pazaak.PhaseRoundEnd:
		return d.advance
	}
	return false
}

// Step submits at most one request for s.
func (d *Driver) Step(ctx context.Context, s *pazaak.MatchState) error {
	if !d.Actionable(s) {
		return nil
	}
	me := s.Player(d.name)
	switch s.Phase {
	case pazaak.PhaseSideDeckSelection:
		ids := d.strategy.ChooseSideDeck(me.SideCardPool)
		d.logger.Debug("selecting side deck", zap.Strings("cards", ids))
		if err := d.sub.SelectSideDeck(ctx, ids); err != nil {
			return fmt.Errorf("select side deck: %w", err)
		}
	case pazaak.PhasePlaying:
		decision := d.strategy.Decide(me, s)
		a := decision.Action()
		d.logger.Debug("acting", zap.Stringer("action", a), zap.Int("score", me.Score))
		if err := d.sub.SubmitAction(ctx, a); err != nil {
			return fmt.Errorf("submit %s: %w", a, err)
		}
	case pazaak.PhaseRoundEnd:
		if err := d.sub.SubmitAction(ctx, game.Action{Kind: game.ActionNextRound}); err != nil {
			return fmt.Errorf("next round: %w", err)
		}
	}
	return nil
}
