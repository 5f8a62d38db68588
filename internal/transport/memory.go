package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Hub connects in-process endpoints. Deliveries are queued and only run
// when Pump is called, so tests control interleaving exactly.
type Hub struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
	links     map[[2]string]bool
	queue     []func()
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		endpoints: make(map[string]*Endpoint),
		links:     make(map[[2]string]bool),
	}
}

// Endpoint returns the endpoint for id, creating it on first use.
func (h *Hub) Endpoint(id string) *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.endpoints[id]; ok {
		return e
	}
	e := &Endpoint{id: id, hub: h}
	h.endpoints[id] = e
	return e
}

func linkKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Connect opens a link between a and b. Both sides see a connected event on
// the next Pump.
func (h *Hub) Connect(a, b string) {
	ea, eb := h.Endpoint(a), h.Endpoint(b)
	h.mu.Lock()
	defer h.mu.Unlock()
	k := linkKey(a, b)
	if h.links[k] {
		return
	}
	h.links[k] = true
	h.queue = append(h.queue,
		func() { ea.emitConnected(b) },
		func() { eb.emitConnected(a) },
	)
}

// Disconnect closes the link between a and b. Messages already queued on
// the link are still delivered.
func (h *Hub) Disconnect(a, b string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectLocked(a, b)
}

func (h *Hub) disconnectLocked(a, b string) {
	k := linkKey(a, b)
	if !h.links[k] {
		return
	}
	delete(h.links, k)
	ea, eb := h.endpoints[a], h.endpoints[b]
	h.queue = append(h.queue,
		func() { ea.emitDisconnected(b) },
		func() { eb.emitDisconnected(a) },
	)
}

// Pump runs queued deliveries, including any they enqueue, until the queue
// is empty. It returns the number of deliveries run.
func (h *Hub) Pump() int {
	n := 0
	for {
		h.mu.Lock()
		if len(h.queue) == 0 {
			h.mu.Unlock()
			return n
		}
		next := h.queue[0]
		h.queue = h.queue[1:]
		h.mu.Unlock()
		next()
		n++
	}
}

// peersLocked lists the ids linked to id in a stable order.
func (h *Hub) peersLocked(id string) []string {
	var out []string
	for k := range h.links {
		switch id {
		case k[0]:
			out = append(out, k[1])
		case k[1]:
			out = append(out, k[0])
		}
	}
	sort.Strings(out)
	return out
}

// Endpoint is one peer's view of a Hub. It implements Transport.
type Endpoint struct {
	handlers
	id     string
	hub    *Hub
	closed bool
}

var _ Transport = (*Endpoint)(nil)

// ID returns the endpoint's peer id.
func (e *Endpoint) ID() string {
	return e.id
}

// Peers lists the endpoints currently linked to e.
func (e *Endpoint) Peers() []string {
	e.hub.mu.Lock()
	defer e.hub.mu.Unlock()
	return e.hub.peersLocked(e.id)
}

func (e *Endpoint) Send(ctx context.Context, peerID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: send to %s: %v", ErrTransport, peerID, err)
	}
	h := e.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if e.closed {
		return fmt.Errorf("%w: endpoint %s closed", ErrTransport, e.id)
	}
	if !h.links[linkKey(e.id, peerID)] {
		return fmt.Errorf("%w: no link from %s to %s", ErrTransport, e.id, peerID)
	}
	e.enqueueLocked(peerID, data)
	return nil
}

func (e *Endpoint) Broadcast(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: broadcast: %v", ErrTransport, err)
	}
	h := e.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if e.closed {
		return fmt.Errorf("%w: endpoint %s closed", ErrTransport, e.id)
	}
	for _, peer := range h.peersLocked(e.id) {
		e.enqueueLocked(peer, data)
	}
	return nil
}

func (e *Endpoint) enqueueLocked(peerID string, data []byte) {
	dst := e.hub.endpoints[peerID]
	from := e.id
	cp := append([]byte(nil), data...)
	e.hub.queue = append(e.hub.queue, func() { dst.emitMessage(from, cp) })
}

func (e *Endpoint) Close() error {
	h := e.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	for _, peer := range h.peersLocked(e.id) {
		h.disconnectLocked(e.id, peer)
	}
	return nil
}
