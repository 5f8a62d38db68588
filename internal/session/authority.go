package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pazaak/internal/game"
	"pazaak/internal/game/pazaak"
	"pazaak/internal/protocol"
	"pazaak/internal/transport"
)

// Info summarises an authority for status views.
type Info struct {
	MatchID  string          `json:"matchId,omitempty"`
	Host     string          `json:"host"`
	Players  []string        `json:"players"`
	Ready    map[string]bool `json:"ready"`
	Phase    pazaak.Phase    `json:"phase,omitempty"`
	Round    int             `json:"round,omitempty"`
	Version  uint64          `json:"version"`
	Rejected int64           `json:"rejected"`
}

type outbound struct {
	peer string // empty broadcasts
	msg  protocol.Message
}

// effects collects what an operation produced while the lock was held.
// commit performs it once the lock is released.
type effects struct {
	out     []outbound
	state   *pazaak.MatchState
	version uint64
	roster  []string
	journal []func(ctx context.Context, j Journal) error
}

func (fx *effects) broadcast(m protocol.Message) {
	fx.out = append(fx.out, outbound{msg: m})
}

func (fx *effects) sendTo(peerID string, m protocol.Message) {
	fx.out = append(fx.out, outbound{peer: peerID, msg: m})
}

// Authority is the host side of a session. It owns the engine and the live
// snapshot, applies every request in arrival order and broadcasts each
// resulting snapshot with a new version.
type Authority struct {
	base
	name string

	mu       sync.Mutex
	engine   *pazaak.Engine
	state    *pazaak.MatchState
	version  uint64
	matchID  string
	roster   []string
	peers    map[string]string // peer id -> player name
	local    map[string]bool
	ready    map[string]bool
	recorded int
	ended    bool

	// emitMu orders state hook delivery by version. Whoever finds no
	// delivery in progress drains pending; only the newest pending
	// snapshot is kept.
	emitMu     sync.Mutex
	delivering bool
	pending    *pazaak.MatchState
	latest     uint64

	hbMu   sync.Mutex
	hbStop chan struct{}
	hbDone chan struct{}

	closeOnce sync.Once
}

// NewAuthority creates the authority for a session hosted by the player
// name and starts listening on tr.
func NewAuthority(name string, tr transport.Transport, opts Options) (*Authority, error) {
	if name == "" {
		return nil, errors.New("new authority: empty host name")
	}
	a := &Authority{
		name:   name,
		roster: []string{name},
		peers:  make(map[string]string),
		local:  map[string]bool{name: true},
		ready:  make(map[string]bool),
	}
	a.init(tr, opts, "authority")
	tr.OnMessage(a.handleMessage)
	tr.OnPeerConnected(func(peerID string) {
		a.logger.Debug("peer linked", zap.String("peer", peerID))
	})
	tr.OnPeerDisconnected(a.handleDisconnect)
	return a, nil
}

// Name returns the host player's name.
func (a *Authority) Name() string {
	return a.name
}

// Snapshot returns the live snapshot and its version. The snapshot is nil
// before the game starts and must not be modified.
func (a *Authority) Snapshot() (*pazaak.MatchState, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, a.version
}

// Roster returns the player names in join order.
func (a *Authority) Roster() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.roster)
}

func (a *Authority) Info() Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	info := Info{
		MatchID: a.matchID,
		Host:    a.name,
		Players: slices.Clone(a.roster),
		Ready:   copyReady(a.ready),
		Version: a.version,
	}
	if a.state != nil {
		info.Phase = a.state.Phase
		info.Round = a.state.RoundNumber
	}
	if a.engine != nil {
		info.Rejected = a.engine.Rejected()
	}
	return info
}

func (a *Authority) commit(ctx context.Context, fx *effects) {
	for _, o := range fx.out {
		if o.peer == "" {
			a.broadcast(ctx, o.msg)
		} else {
			a.send(ctx, o.peer, o.msg)
		}
	}
	if j := a.opts.Journal; j != nil {
		for _, record := range fx.journal {
			if err := record(ctx, j); err != nil {
				a.report(fmt.Errorf("journal: %w", err))
			}
		}
	}
	if fx.roster != nil {
		a.emitRoster(fx.roster)
	}
	if fx.state != nil {
		a.deliverState(fx.state, fx.version)
	}
}

// deliverState runs the state hooks for version unless a newer snapshot
// has already been handed out. Concurrent commits never reach a hook out
// of order; a hook that triggers another operation has that snapshot
// delivered after it returns.
func (a *Authority) deliverState(s *pazaak.MatchState, version uint64) {
	a.emitMu.Lock()
	if version <= a.latest {
		a.emitMu.Unlock()
		return
	}
	a.pending, a.latest = s, version
	if a.delivering {
		a.emitMu.Unlock()
		return
	}
	a.delivering = true
	for a.pending != nil {
		next, v := a.pending, a.latest
		a.pending = nil
		a.emitMu.Unlock()
		a.emitState(next, v)
		a.emitMu.Lock()
	}
	a.delivering = false
	a.emitMu.Unlock()
}

// adoptLocked makes next the live snapshot under a new version.
func (a *Authority) adoptLocked(next *pazaak.MatchState, fx *effects) {
	prev := a.state
	a.state = next
	a.version++
	fx.broadcast(protocol.StateSync{Snapshot: next, Version: a.version})
	if next.Phase == pazaak.PhasePlaying && (prev == nil || prev.Phase != pazaak.PhasePlaying) {
		fx.broadcast(protocol.PhaseTransition{Phase: next.Phase})
	}
	fx.state, fx.version = next, a.version

	matchID := a.matchID
	for a.recorded < len(next.RoundHistory) {
		r := next.RoundHistory[a.recorded]
		a.recorded++
		fx.journal = append(fx.journal, func(ctx context.Context, j Journal) error {
			return j.RecordRound(ctx, matchID, r)
		})
	}
	if next.Phase == pazaak.PhaseGameEnd && !a.ended {
		a.ended = true
		winner, at := next.Winner, a.opts.Now()
		a.logger.Info("match over", zap.String("match", matchID), zap.String("winner", winner))
		fx.journal = append(fx.journal, func(ctx context.Context, j Journal) error {
			return j.RecordMatchEnd(ctx, matchID, winner, at)
		})
	}
}

// newMatchLocked builds a fresh engine and match from the roster.
func (a *Authority) newMatchLocked(fx *effects) error {
	if len(a.roster) < minPlayers {
		return game.Illegal("need at least %d players, have %d", minPlayers, len(a.roster))
	}
	seats := make([]pazaak.Seat, len(a.roster))
	for i, name := range a.roster {
		seats[i] = pazaak.Seat{ID: name, Name: name}
	}
	engine := pazaak.NewEngine(a.opts.Rand, a.logger)
	s, err := engine.NewMatch(seats)
	if err != nil {
		return err
	}
	a.engine = engine
	a.matchID = uuid.NewString()
	a.recorded = 0
	a.ended = false

	matchID, players, at := a.matchID, slices.Clone(a.roster), a.opts.Now()
	fx.journal = append(fx.journal, func(ctx context.Context, j Journal) error {
		return j.RecordMatchStart(ctx, matchID, players, at)
	})
	a.logger.Info("match created", zap.String("match", matchID), zap.Strings("players", players))
	a.adoptLocked(s, fx)
	return nil
}

// StartGame creates the engine and moves every peer to side deck selection.
func (a *Authority) StartGame(ctx context.Context) error {
	a.mu.Lock()
	if a.state != nil {
		a.mu.Unlock()
		return game.Illegal("game already started")
	}
	fx := &effects{}
	fx.broadcast(protocol.GameStart{})
	if err := a.newMatchLocked(fx); err != nil {
		a.mu.Unlock()
		return err
	}
	a.mu.Unlock()
	a.commit(ctx, fx)
	return nil
}

// NewGame replaces the running match with a fresh one for the current
// roster.
func (a *Authority) NewGame(ctx context.Context) error {
	a.mu.Lock()
	if a.state == nil {
		a.mu.Unlock()
		return game.Illegal("no game to replace")
	}
	fx := &effects{}
	fx.broadcast(protocol.NewGame{})
	if err := a.newMatchLocked(fx); err != nil {
		a.mu.Unlock()
		return err
	}
	a.mu.Unlock()
	a.commit(ctx, fx)
	return nil
}

type engineOp func(*pazaak.Engine, *pazaak.MatchState) (*pazaak.MatchState, error)

// apply runs op against the live snapshot. Messages in before are
// broadcast ahead of the resulting StateSync.
func (a *Authority) apply(ctx context.Context, op engineOp, before ...protocol.Message) error {
	a.mu.Lock()
	if a.state == nil {
		a.mu.Unlock()
		return game.Illegal("no game in progress")
	}
	next, err := op(a.engine, a.state)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	fx := &effects{}
	for _, m := range before {
		fx.broadcast(m)
	}
	a.adoptLocked(next, fx)
	a.mu.Unlock()
	a.commit(ctx, fx)
	return nil
}

func (a *Authority) isLocal(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.local[name]
}

// SubmitAs applies an action for a seat hosted in this process.
func (a *Authority) SubmitAs(ctx context.Context, name string, act game.Action) error {
	if !a.isLocal(name) {
		return game.Illegal("%s is not a local seat", name)
	}
	return a.submit(ctx, name, act)
}

func (a *Authority) submit(ctx context.Context, name string, act game.Action) error {
	return a.apply(ctx, func(e *pazaak.Engine, s *pazaak.MatchState) (*pazaak.MatchState, error) {
		return e.Apply(s, name, act)
	})
}

// SelectSideDeckAs records a local seat's side deck.
func (a *Authority) SelectSideDeckAs(ctx context.Context, name string, cardIDs []string) error {
	if !a.isLocal(name) {
		return game.Illegal("%s is not a local seat", name)
	}
	return a.selectSideDeck(ctx, name, cardIDs)
}

func (a *Authority) selectSideDeck(ctx context.Context, name string, cardIDs []string) error {
	ids := slices.Clone(cardIDs)
	return a.apply(ctx, func(e *pazaak.Engine, s *pazaak.MatchState) (*pazaak.MatchState, error) {
		return e.SelectSideDeck(s, name, ids)
	}, protocol.SideDeckSelected{PlayerID: name, CardIDs: ids})
}

// SetReadyAs records a local seat's lobby ready flag.
func (a *Authority) SetReadyAs(ctx context.Context, name string, ready bool) error {
	if !a.isLocal(name) {
		return game.Illegal("%s is not a local seat", name)
	}
	return a.setReady(ctx, name, ready)
}

func (a *Authority) setReady(ctx context.Context, name string, ready bool) error {
	a.mu.Lock()
	if !slices.Contains(a.roster, name) {
		a.mu.Unlock()
		return game.Illegal("%s is not in the roster", name)
	}
	a.ready[name] = ready
	fx := &effects{}
	fx.broadcast(protocol.PlayerReady{PlayerID: name, Ready: ready})
	a.mu.Unlock()
	a.commit(ctx, fx)
	return nil
}

// SubmitAction applies an action for the host.
func (a *Authority) SubmitAction(ctx context.Context, act game.Action) error {
	return a.SubmitAs(ctx, a.name, act)
}

// SelectSideDeck records the host's side deck.
func (a *Authority) SelectSideDeck(ctx context.Context, cardIDs []string) error {
	return a.SelectSideDeckAs(ctx, a.name, cardIDs)
}

// SetReady records the host's ready flag.
func (a *Authority) SetReady(ctx context.Context, ready bool) error {
	return a.SetReadyAs(ctx, a.name, ready)
}

// joinRefusalLocked explains why name cannot join, or returns "".
func (a *Authority) joinRefusalLocked(name string) string {
	switch {
	case name == "":
		return "empty player name"
	case slices.Contains(a.roster, name):
		return fmt.Sprintf("name %q is taken", name)
	case a.state != nil:
		return "game already in progress"
	case len(a.roster) >= a.opts.MaxPlayers:
		return "session is full"
	}
	return ""
}

// AddLocalPlayer seats another player in this process, typically a bot.
func (a *Authority) AddLocalPlayer(ctx context.Context, name string) error {
	a.mu.Lock()
	if reason := a.joinRefusalLocked(name); reason != "" {
		a.mu.Unlock()
		return game.Illegal("add %q: %s", name, reason)
	}
	a.local[name] = true
	a.roster = append(a.roster, name)
	fx := &effects{roster: slices.Clone(a.roster)}
	fx.broadcast(protocol.PlayerListSync{Names: slices.Clone(a.roster)})
	a.mu.Unlock()
	a.commit(ctx, fx)
	return nil
}

// Seat returns a handle for submitting on behalf of a local seat.
func (a *Authority) Seat(name string) *LocalSeat {
	return &LocalSeat{a: a, name: name}
}

func (a *Authority) handleMessage(peerID string, data []byte) {
	m, ok := a.decode(peerID, data)
	if !ok {
		return
	}
	ctx := a.ctx
	if join, ok := m.(protocol.PlayerJoined); ok {
		a.join(ctx, peerID, join.Name)
		return
	}

	a.mu.Lock()
	name, joined := a.peers[peerID]
	a.mu.Unlock()
	if !joined {
		a.violation(peerID, "%s before joining", m.Type())
		return
	}

	switch m := m.(type) {
	case protocol.PlayerReady:
		if m.PlayerID != name {
			a.violation(peerID, "ready flag for %s sent by %s", m.PlayerID, name)
			return
		}
		a.setReady(ctx, name, m.Ready)
	case protocol.SideDeckSelected:
		if m.PlayerID != name {
			a.violation(peerID, "side deck for %s sent by %s", m.PlayerID, name)
			return
		}
		if err := a.selectSideDeck(ctx, name, m.CardIDs); err != nil {
			a.logger.Debug("side deck refused", zap.String("player", name), zap.Error(err))
		}
	case protocol.ClientAction:
		if m.PlayerName != name {
			a.violation(peerID, "action tagged %s sent by %s", m.PlayerName, name)
			return
		}
		if m.Action.Kind.TurnBound() && !a.isCurrent(name) {
			a.violation(peerID, "%s requested %s out of turn", name, m.Action)
			return
		}
		if err := a.submit(ctx, name, m.Action); err != nil {
			a.logger.Debug("client action refused", zap.String("player", name), zap.Stringer("action", m.Action), zap.Error(err))
		}
	default:
		a.unhandled(peerID, m)
	}
}

func (a *Authority) isCurrent(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state != nil && a.state.IsCurrent(name)
}

func (a *Authority) join(ctx context.Context, peerID, name string) {
	a.mu.Lock()
	reason := a.joinRefusalLocked(name)
	if _, ok := a.peers[peerID]; ok {
		reason = "peer already joined"
	}
	if reason != "" {
		a.mu.Unlock()
		a.logger.Info("join refused", zap.String("peer", peerID), zap.String("name", name), zap.String("reason", reason))
		a.send(ctx, peerID, protocol.Error{Message: reason})
		return
	}
	a.peers[peerID] = name
	a.roster = append(a.roster, name)
	fx := &effects{roster: slices.Clone(a.roster)}
	fx.broadcast(protocol.PlayerListSync{Names: slices.Clone(a.roster)})
	names := make([]string, 0, len(a.ready))
	for n := range a.ready {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fx.sendTo(peerID, protocol.PlayerReady{PlayerID: n, Ready: a.ready[n]})
	}
	a.mu.Unlock()
	a.logger.Info("player joined", zap.String("peer", peerID), zap.String("name", name))
	a.commit(ctx, fx)
}

// handleDisconnect drops the peer's player from the roster. A match in
// progress keeps the player's seat.
func (a *Authority) handleDisconnect(peerID string) {
	a.mu.Lock()
	name, ok := a.peers[peerID]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.peers, peerID)
	delete(a.ready, name)
	a.roster = slices.DeleteFunc(a.roster, func(n string) bool { return n == name })
	fx := &effects{roster: slices.Clone(a.roster)}
	fx.broadcast(protocol.PlayerListSync{Names: slices.Clone(a.roster)})
	a.mu.Unlock()
	a.logger.Info("player left", zap.String("peer", peerID), zap.String("name", name))
	a.commit(a.ctx, fx)
}

// Beat broadcasts one heartbeat.
func (a *Authority) Beat(ctx context.Context) {
	a.mu.Lock()
	hb := protocol.Heartbeat{Version: a.version, Completion: map[string]bool{}}
	if a.state != nil {
		hb.Phase = a.state.Phase
		hb.Completion = a.state.Completion()
	}
	a.mu.Unlock()
	a.broadcast(ctx, hb)
}

// StartHeartbeat broadcasts a heartbeat every Options.Heartbeat until
// StopHeartbeat or Close.
func (a *Authority) StartHeartbeat() {
	a.hbMu.Lock()
	defer a.hbMu.Unlock()
	if a.hbStop != nil {
		return
	}
	stop, done := make(chan struct{}), make(chan struct{})
	a.hbStop, a.hbDone = stop, done
	interval := a.opts.Heartbeat
	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				a.Beat(a.ctx)
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat and waits for it to finish.
func (a *Authority) StopHeartbeat() {
	a.hbMu.Lock()
	defer a.hbMu.Unlock()
	if a.hbStop == nil {
		return
	}
	close(a.hbStop)
	<-a.hbDone
	a.hbStop, a.hbDone = nil, nil
}

// Close stops the heartbeat and closes the transport.
func (a *Authority) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.StopHeartbeat()
		a.cancel()
		err = a.tr.Close()
	})
	return err
}

// LocalSeat submits on behalf of one player seated in the authority's
// process.
type LocalSeat struct {
	a    *Authority
	name string
}

func (s *LocalSeat) Name() string {
	return s.name
}

func (s *LocalSeat) SubmitAction(ctx context.Context, act game.Action) error {
	return s.a.SubmitAs(ctx, s.name, act)
}

func (s *LocalSeat) SelectSideDeck(ctx context.Context, cardIDs []string) error {
	return s.a.SelectSideDeckAs(ctx, s.name, cardIDs)
}

func (s *LocalSeat) SetReady(ctx context.Context, ready bool) error {
	return s.a.SetReadyAs(ctx, s.name, ready)
}
