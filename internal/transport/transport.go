// Package transport moves opaque message bytes between peers. The session
// layer only depends on the Transport interface; Hub provides in-process
// links for tests and local play, WebSocket provides network links.
package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrTransport wraps every failure reported by a transport.
var ErrTransport = errors.New("transport failure")

// Handler receives a message from a peer.
type Handler func(peerID string, data []byte)

// PeerHandler is notified when a peer link opens or closes.
type PeerHandler func(peerID string)

// Transport is the link layer consumed by the session package.
type Transport interface {
	// Send delivers data to one peer. Sends to a peer whose link is still
	// opening are queued and flushed once it opens.
	Send(ctx context.Context, peerID string, data []byte) error
	// Broadcast delivers data to every open peer.
	Broadcast(ctx context.Context, data []byte) error
	OnMessage(h Handler)
	OnPeerConnected(h PeerHandler)
	OnPeerDisconnected(h PeerHandler)
	// Close tears down every link. Disconnect handlers fire for each peer.
	Close() error
}

// handlers is the callback registry shared by the implementations.
type handlers struct {
	mu           sync.RWMutex
	message      []Handler
	connected    []PeerHandler
	disconnected []PeerHandler
}

func (h *handlers) OnMessage(fn Handler) {
	h.mu.Lock()
	h.message = append(h.message, fn)
	h.mu.Unlock()
}

func (h *handlers) OnPeerConnected(fn PeerHandler) {
	h.mu.Lock()
	h.connected = append(h.connected, fn)
	h.mu.Unlock()
}

func (h *handlers) OnPeerDisconnected(fn PeerHandler) {
	h.mu.Lock()
	h.disconnected = append(h.disconnected, fn)
	h.mu.Unlock()
}

func (h *handlers) emitMessage(peerID string, data []byte) {
	h.mu.RLock()
	fns := h.message
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(peerID, data)
	}
}

func (h *handlers) emitConnected(peerID string) {
	h.mu.RLock()
	fns := h.connected
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(peerID)
	}
}

func (h *handlers) emitDisconnected(peerID string) {
	h.mu.RLock()
	fns := h.disconnected
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(peerID)
	}
}
