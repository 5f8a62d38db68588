package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"pazaak/internal/game"
	"pazaak/internal/game/pazaak"
	"pazaak/internal/protocol"
	"pazaak/internal/transport"
)

// Follower mirrors the authority's snapshots. It never runs the engine;
// every local request is sent to the authority and takes effect when the
// resulting StateSync arrives.
type Follower struct {
	base
	name string
	host string

	mu            sync.Mutex
	state         *pazaak.MatchState
	version       uint64
	roster        []string
	ready         map[string]bool
	phase         pazaak.Phase
	hostVersion   uint64
	lastHeartbeat time.Time
	joined        bool

	closeOnce sync.Once
}

// NewFollower creates a follower for the player name. hostPeer is the
// transport peer id of the authority; PlayerJoined is sent as soon as the
// link to it opens.
func NewFollower(name, hostPeer string, tr transport.Transport, opts Options) (*Follower, error) {
	if name == "" {
		return nil, errors.New("new follower: empty player name")
	}
	f := &Follower{
		name:  name,
		host:  hostPeer,
		ready: make(map[string]bool),
	}
	f.init(tr, opts, "follower")
	f.logger = f.logger.With(zap.String("player", name))
	tr.OnMessage(f.handleMessage)
	tr.OnPeerConnected(f.handleConnected)
	tr.OnPeerDisconnected(f.handleDisconnect)
	return f, nil
}

// Name returns the follower's player name.
func (f *Follower) Name() string {
	return f.name
}

// Snapshot returns the last applied snapshot and its version.
func (f *Follower) Snapshot() (*pazaak.MatchState, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.version
}

// Roster returns the last roster received from the authority.
func (f *Follower) Roster() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.roster)
}

// Ready returns the lobby ready flags received so far.
func (f *Follower) Ready() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyReady(f.ready)
}

// Phase returns the phase last confirmed by a snapshot, transition or
// heartbeat.
func (f *Follower) Phase() pazaak.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// Lag reports how many versions the follower is behind the authority's
// last heartbeat.
func (f *Follower) Lag() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hostVersion <= f.version {
		return 0
	}
	return f.hostVersion - f.version
}

// Connected reports whether the link to the authority is open.
func (f *Follower) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joined
}

// LastHeartbeat returns when the last heartbeat arrived.
func (f *Follower) LastHeartbeat() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastHeartbeat
}

func (f *Follower) handleConnected(peerID string) {
	if peerID != f.host {
		return
	}
	f.mu.Lock()
	f.joined = true
	f.mu.Unlock()
	f.logger.Debug("linked to authority, joining")
	f.send(f.ctx, f.host, protocol.PlayerJoined{Name: f.name})
}

func (f *Follower) handleDisconnect(peerID string) {
	if peerID != f.host {
		return
	}
	f.mu.Lock()
	f.joined = false
	f.mu.Unlock()
	f.report(fmt.Errorf("%w: authority %s disconnected", transport.ErrTransport, peerID))
}

func (f *Follower) handleMessage(peerID string, data []byte) {
	if peerID != f.host {
		f.violation(peerID, "message from a peer that is not the authority")
		return
	}
	m, ok := f.decode(peerID, data)
	if !ok {
		return
	}
	switch m := m.(type) {
	case protocol.StateSync:
		f.applyStateSync(peerID, m)
	case protocol.PlayerListSync:
		f.mu.Lock()
		if slices.Equal(f.roster, m.Names) && f.roster != nil {
			f.mu.Unlock()
			return
		}
		f.roster = slices.Clone(m.Names)
		if f.roster == nil {
			f.roster = []string{}
		}
		for name := range f.ready {
			if !slices.Contains(f.roster, name) {
				delete(f.ready, name)
			}
		}
		roster := slices.Clone(f.roster)
		f.mu.Unlock()
		f.emitRoster(roster)
	case protocol.PlayerReady:
		f.mu.Lock()
		f.ready[m.PlayerID] = m.Ready
		f.mu.Unlock()
	case protocol.GameStart:
		f.setPhase(pazaak.PhaseSideDeckSelection)
		f.logger.Info("game started")
	case protocol.NewGame:
		f.setPhase(pazaak.PhaseSideDeckSelection)
		f.logger.Info("new game")
	case protocol.SideDeckSelected:
		f.logger.Debug("side deck confirmed", zap.String("for", m.PlayerID))
	case protocol.PhaseTransition:
		f.setPhase(m.Phase)
	case protocol.Heartbeat:
		f.mu.Lock()
		f.lastHeartbeat = f.opts.Now()
		if m.Version > f.hostVersion {
			f.hostVersion = m.Version
		}
		if m.Phase != "" && m.Version == f.version {
			f.phase = m.Phase
		}
		behind := m.Version > f.version
		local := f.version
		f.mu.Unlock()
		if behind {
			f.logger.Debug("behind authority", zap.Uint64("local", local), zap.Uint64("authority", m.Version))
		}
	case protocol.Error:
		f.report(fmt.Errorf("%w: %s", ErrRejected, m.Message))
	default:
		f.unhandled(peerID, m)
	}
}

// applyStateSync adopts a snapshot only if it is newer than the last one
// applied.
func (f *Follower) applyStateSync(peerID string, m protocol.StateSync) {
	f.mu.Lock()
	if m.Version <= f.version {
		last := f.version
		f.mu.Unlock()
		f.violation(peerID, "stale snapshot version %d, have %d", m.Version, last)
		return
	}
	if m.Snapshot == nil {
		f.mu.Unlock()
		f.violation(peerID, "snapshot version %d has no state", m.Version)
		return
	}
	f.state = m.Snapshot
	f.version = m.Version
	f.phase = m.Snapshot.Phase
	f.mu.Unlock()
	f.emitState(m.Snapshot, m.Version)
}

func (f *Follower) setPhase(p pazaak.Phase) {
	f.mu.Lock()
	f.phase = p
	f.mu.Unlock()
}

// SubmitAction asks the authority to apply act for this player.
func (f *Follower) SubmitAction(ctx context.Context, act game.Action) error {
	return f.send(ctx, f.host, protocol.ClientAction{Action: act, PlayerName: f.name})
}

// SelectSideDeck sends this player's side deck to the authority.
func (f *Follower) SelectSideDeck(ctx context.Context, cardIDs []string) error {
	return f.send(ctx, f.host, protocol.SideDeckSelected{PlayerID: f.name, CardIDs: slices.Clone(cardIDs)})
}

// SetReady sends this player's lobby ready flag to the authority.
func (f *Follower) SetReady(ctx context.Context, ready bool) error {
	return f.send(ctx, f.host, protocol.PlayerReady{PlayerID: f.name, Ready: ready})
}

// Close closes the transport.
func (f *Follower) Close() error {
	var err error
	f.closeOnce.Do(func() {
		f.cancel()
		err = f.tr.Close()
	})
	return err
}
