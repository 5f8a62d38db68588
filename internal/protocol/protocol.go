// Package protocol defines the messages exchanged between the authority and
// its followers and their JSON wire encoding.
//
// Every message travels inside an Envelope carrying a type discriminator and
// the producer's clock in epoch milliseconds. The set of message types is
// closed: Decode rejects any type it does not know.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pazaak/internal/game"
	"pazaak/internal/game/pazaak"
)

// Type is the discriminator carried by every envelope.
type Type string

const (
	TypePlayerJoined     Type = "playerJoined"
	TypePlayerListSync   Type = "playerListSync"
	TypePlayerReady      Type = "playerReady"
	TypeGameStart        Type = "gameStart"
	TypeSideDeckSelected Type = "sideDeckSelected"
	TypeClientAction     Type = "clientAction"
	TypeStateSync        Type = "stateSync"
	TypeNewGame          Type = "newGame"
	TypeHeartbeat        Type = "heartbeat"
	TypePhaseTransition  Type = "phaseTransition"
	TypeError            Type = "error"
)

var (
	// ErrMalformed is returned for bytes that are not a valid envelope or
	// whose payload does not match its type.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for an envelope whose type is not part of
	// the protocol.
	ErrUnknownType = errors.New("unknown message type")
)

// Envelope is the JSON frame around every message.
type Envelope struct {
	Type      Type            `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Message is implemented by every protocol message.
type Message interface {
	Type() Type
}

// PlayerJoined is sent by a follower right after its link opens.
type PlayerJoined struct {
	Name string `json:"name"`
}

// PlayerListSync replaces the whole roster on every peer.
type PlayerListSync struct {
	Names []string `json:"names"`
}

// PlayerReady toggles a player's ready flag in the lobby.
type PlayerReady struct {
	PlayerID string `json:"playerId"`
	Ready    bool   `json:"ready"`
}

// GameStart moves every peer into side deck selection.
type GameStart struct{}

// SideDeckSelected carries one player's ten chosen side card ids.
type SideDeckSelected struct {
	PlayerID string   `json:"playerId"`
	CardIDs  []string `json:"cardIds"`
}

// ClientAction asks the authority to apply an action for PlayerName.
type ClientAction struct {
	Action     game.Action `json:"action"`
	PlayerName string      `json:"playerName"`
}

// StateSync carries a full snapshot. Version strictly increases per
// authority.
type StateSync struct {
	Snapshot *pazaak.MatchState `json:"snapshot"`
	Version  uint64             `json:"version"`
}

// NewGame resets every peer to side deck selection with a fresh match.
type NewGame struct{}

// Heartbeat is broadcast periodically by the authority.
type Heartbeat struct {
	Phase      pazaak.Phase    `json:"phase"`
	Completion map[string]bool `json:"completion"`
	Version    uint64          `json:"version"`
}

// PhaseTransition confirms a phase change alongside the StateSync that
// caused it.
type PhaseTransition struct {
	Phase pazaak.Phase `json:"phase"`
}

// Error tells a peer why its request was refused.
type Error struct {
	Message string `json:"message"`
}

func (PlayerJoined) Type() Type     { return TypePlayerJoined }
func (PlayerListSync) Type() Type   { return TypePlayerListSync }
func (PlayerReady) Type() Type      { return TypePlayerReady }
func (GameStart) Type() Type        { return TypeGameStart }
func (SideDeckSelected) Type() Type { return TypeSideDeckSelected }
func (ClientAction) Type() Type     { return TypeClientAction }
func (StateSync) Type() Type        { return TypeStateSync }
func (NewGame) Type() Type          { return TypeNewGame }
func (Heartbeat) Type() Type        { return TypeHeartbeat }
func (PhaseTransition) Type() Type  { return TypePhaseTransition }
func (Error) Type() Type            { return TypeError }

// Encode wraps m in an envelope stamped with now.
func Encode(m Message, now time.Time) ([]byte, error) {
	p, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	data, err := json.Marshal(Envelope{Type: m.Type(), Timestamp: now.UnixMilli(), Payload: p})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", m.Type(), err)
	}
	return data, nil
}

// MustEncode is Encode for messages that cannot fail to marshal.
func MustEncode(m Message, now time.Time) []byte {
	data, err := Encode(m, now)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode parses an envelope and its payload.
func Decode(data []byte) (Envelope, Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m, err := newMessage(env.Type)
	if err != nil {
		return env, nil, err
	}
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, m); err != nil {
			return env, nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
		}
	}
	return env, deref(m), nil
}

func newMessage(t Type) (any, error) {
	switch t {
	case TypePlayerJoined:
		return &PlayerJoined{}, nil
	case TypePlayerListSync:
		return &PlayerListSync{}, nil
	case TypePlayerReady:
		return &PlayerReady{}, nil
	case TypeGameStart:
		return &GameStart{}, nil
	case TypeSideDeckSelected:
		return &SideDeckSelected{}, nil
	case TypeClientAction:
		return &ClientAction{}, nil
	case TypeStateSync:
		return &StateSync{}, nil
	case TypeNewGame:
		return &NewGame{}, nil
	case TypeHeartbeat:
		return &Heartbeat{}, nil
	case TypePhaseTransition:
		return &PhaseTransition{}, nil
	case TypeError:
		return &Error{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// deref turns the decode target back into the value type handlers switch on.
func deref(m any) Message {
	switch v := m.(type) {
	case *PlayerJoined:
		return *v
	case *PlayerListSync:
		return *v
	case *PlayerReady:
		return *v
	case *GameStart:
		return *v
	case *SideDeckSelected:
		return *v
	case *ClientAction:
		return *v
	case *StateSync:
		return *v
	case *NewGame:
		return *v
	case *Heartbeat:
		return *v
	case *PhaseTransition:
		return *v
	case *Error:
		return *v
	}
	panic(fmt.Sprintf("protocol: no value type for %T", m))
}
