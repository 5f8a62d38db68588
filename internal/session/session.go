// Package session replicates a Pazaak match between one authority and any
// number of followers. The authority owns the only engine; followers mirror
// the snapshots it broadcasts and forward their players' requests to it.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"pazaak/internal/game/pazaak"
	"pazaak/internal/protocol"
	"pazaak/internal/transport"
)

var (
	// ErrProtocolViolation is reported for a message that breaks the
	// protocol: a request from the wrong player, a stale snapshot, a
	// message sent in the wrong direction. The message is dropped.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrRejected is reported when the authority refuses a follower's
	// request with an Error notice.
	ErrRejected = errors.New("rejected by authority")
)

const (
	defaultHeartbeat  = 2 * time.Second
	defaultMaxPlayers = 4
	minPlayers        = 2
)

// Journal receives a record of finished rounds and matches.
type Journal interface {
	RecordMatchStart(ctx context.Context, matchID string, players []string, at time.Time) error
	RecordRound(ctx context.Context, matchID string, r pazaak.RoundResult) error
	RecordMatchEnd(ctx context.Context, matchID, winner string, at time.Time) error
}

// Options configures a session.
type Options struct {
	Logger *zap.Logger
	// Strict panics on a message type the receiving role does not handle.
	Strict bool
	// Heartbeat is the authority's heartbeat interval.
	Heartbeat time.Duration
	// MaxPlayers caps the roster.
	MaxPlayers int
	// Rand seeds the authority's engines.
	Rand    *rand.Rand
	Journal Journal
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = defaultHeartbeat
	}
	if o.MaxPlayers <= 0 || o.MaxPlayers > defaultMaxPlayers {
		o.MaxPlayers = defaultMaxPlayers
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// StateHook is called with every snapshot a session adopts.
type StateHook func(state *pazaak.MatchState, version uint64)

// RosterHook is called with the full roster whenever it changes.
type RosterHook func(names []string)

// base holds what the authority and follower share: the transport, the
// error channel and the presentation hooks.
type base struct {
	opts   Options
	logger *zap.Logger
	tr     transport.Transport
	errs   chan error

	// ctx bounds sends made from transport callbacks and timers. It is
	// canceled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	hookMu      sync.RWMutex
	stateHooks  []StateHook
	rosterHooks []RosterHook
}

func (b *base) init(tr transport.Transport, opts Options, role string) {
	b.opts = opts.withDefaults()
	b.logger = b.opts.Logger.With(zap.String("role", role))
	b.tr = tr
	b.errs = make(chan error, 64)
	b.ctx, b.cancel = context.WithCancel(context.Background())
}

// Errors delivers protocol and transport errors. Errors are dropped when
// nobody drains the channel.
func (b *base) Errors() <-chan error {
	return b.errs
}

// OnStateChange registers a hook for adopted snapshots.
func (b *base) OnStateChange(h StateHook) {
	b.hookMu.Lock()
	b.stateHooks = append(b.stateHooks, h)
	b.hookMu.Unlock()
}

// OnRosterChange registers a hook for roster replacements.
func (b *base) OnRosterChange(h RosterHook) {
	b.hookMu.Lock()
	b.rosterHooks = append(b.rosterHooks, h)
	b.hookMu.Unlock()
}

func (b *base) emitState(s *pazaak.MatchState, version uint64) {
	b.hookMu.RLock()
	hooks := b.stateHooks
	b.hookMu.RUnlock()
	for _, h := range hooks {
		h(s, version)
	}
}

func (b *base) emitRoster(names []string) {
	b.hookMu.RLock()
	hooks := b.rosterHooks
	b.hookMu.RUnlock()
	for _, h := range hooks {
		h(append([]string(nil), names...))
	}
}

func (b *base) report(err error) {
	b.logger.Warn("session error", zap.Error(err))
	select {
	case b.errs <- err:
	default:
	}
}

func (b *base) violation(peerID, format string, args ...any) {
	b.report(fmt.Errorf("%w: peer %s: %s", ErrProtocolViolation, peerID, fmt.Sprintf(format, args...)))
}

// unhandled drops a message the role has no case for.
func (b *base) unhandled(peerID string, m protocol.Message) {
	if b.opts.Strict {
		panic(fmt.Sprintf("session: unhandled %s message from %s", m.Type(), peerID))
	}
	b.violation(peerID, "unexpected %s message", m.Type())
}

// decode parses data, reporting and dropping anything malformed.
func (b *base) decode(peerID string, data []byte) (protocol.Message, bool) {
	_, m, err := protocol.Decode(data)
	if err != nil {
		if b.opts.Strict && errors.Is(err, protocol.ErrUnknownType) {
			panic(fmt.Sprintf("session: %v from %s", err, peerID))
		}
		b.report(fmt.Errorf("%w: peer %s: %w", ErrProtocolViolation, peerID, err))
		return nil, false
	}
	return m, true
}

func (b *base) send(ctx context.Context, peerID string, m protocol.Message) error {
	data, err := protocol.Encode(m, b.opts.Now())
	if err != nil {
		return err
	}
	if err := b.tr.Send(ctx, peerID, data); err != nil {
		b.report(err)
		return err
	}
	return nil
}

func (b *base) broadcast(ctx context.Context, m protocol.Message) error {
	data, err := protocol.Encode(m, b.opts.Now())
	if err != nil {
		return err
	}
	if err := b.tr.Broadcast(ctx, data); err != nil {
		b.report(err)
		return err
	}
	return nil
}

func copyReady(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
