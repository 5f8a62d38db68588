package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// maxMessageSize bounds a single frame. A four-player snapshot with full
// side card pools is a few tens of kilobytes.
const maxMessageSize = 1 << 20

// WebSocket links peers over websocket connections. Inbound peers are
// accepted through ServeHTTP and get a random id; outbound peers are
// opened with Dial under a caller-chosen id.
type WebSocket struct {
	handlers
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	peers   map[string]*wsPeer
	pending *outbox
	closed  bool
}

var _ Transport = (*WebSocket)(nil)

type wsPeer struct {
	id      string
	conn    *websocket.Conn
	backlog [][]byte
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

// NewWebSocket creates a websocket transport. A nil logger disables logging.
func NewWebSocket(logger *zap.Logger) *WebSocket {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocket{
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		peers:   make(map[string]*wsPeer),
		pending: newOutbox(),
	}
}

// ServeHTTP upgrades the request and serves the peer until its link closes.
func (w *WebSocket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		http.Error(rw, "transport closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(rw, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // peers are other game clients, not browsers
	})
	if err != nil {
		w.logger.Warn("websocket accept", zap.Error(err))
		return
	}
	id := uuid.NewString()
	p, err := w.attach(id, conn, false)
	if err != nil {
		conn.Close(websocket.StatusGoingAway, "transport closed")
		return
	}
	w.serve(p)
}

// Dial opens an outbound link to url under peerID. Messages sent to peerID
// while the dial is in flight are delivered once it succeeds and dropped if
// it fails.
func (w *WebSocket) Dial(ctx context.Context, peerID, url string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("%w: transport closed", ErrTransport)
	}
	if _, ok := w.peers[peerID]; ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: peer %s already connected", ErrTransport, peerID)
	}
	w.pending.expect(peerID)
	w.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		w.mu.Lock()
		lost := w.pending.drop(peerID)
		w.mu.Unlock()
		w.logger.Warn("dial failed", zap.String("peer", peerID), zap.Int("dropped", lost), zap.Error(err))
		return fmt.Errorf("%w: dial %s: %v", ErrTransport, url, err)
	}
	p, err := w.attach(peerID, conn, true)
	if err != nil {
		conn.Close(websocket.StatusGoingAway, "transport closed")
		return err
	}
	go func() {
		defer w.wg.Done()
		w.serve(p)
	}()
	return nil
}

// attach registers an open connection and takes over anything queued for
// it. Goroutines for the peer are counted here, under the lock that Close
// takes before waiting.
func (w *WebSocket) attach(id string, conn *websocket.Conn, outbound bool) (*wsPeer, error) {
	conn.SetReadLimit(maxMessageSize)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.pending.drop(id)
		return nil, fmt.Errorf("%w: transport closed", ErrTransport)
	}
	p := &wsPeer{
		id:      id,
		conn:    conn,
		backlog: w.pending.take(id),
		send:    make(chan []byte, 64),
		done:    make(chan struct{}),
	}
	w.peers[id] = p
	w.wg.Add(1)
	if outbound {
		w.wg.Add(1)
	}
	return p, nil
}

// serve runs the writer, announces the peer and reads until the link drops.
func (w *WebSocket) serve(p *wsPeer) {
	go func() {
		defer w.wg.Done()
		w.writeLoop(p)
	}()

	w.logger.Debug("peer connected", zap.String("peer", p.id))
	w.emitConnected(p.id)

	for {
		_, data, err := p.conn.Read(w.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				w.logger.Debug("read failed", zap.String("peer", p.id), zap.Error(err))
			}
			break
		}
		w.emitMessage(p.id, data)
	}
	w.detach(p, websocket.StatusNormalClosure)
}

func (w *WebSocket) writeLoop(p *wsPeer) {
	for _, data := range p.backlog {
		if err := p.conn.Write(w.ctx, websocket.MessageText, data); err != nil {
			w.detach(p, websocket.StatusInternalError)
			return
		}
	}
	p.backlog = nil
	for {
		select {
		case data := <-p.send:
			if err := p.conn.Write(w.ctx, websocket.MessageText, data); err != nil {
				w.logger.Debug("write failed", zap.String("peer", p.id), zap.Error(err))
				w.detach(p, websocket.StatusInternalError)
				return
			}
		case <-p.done:
			return
		}
	}
}

// detach removes p and fires the disconnect handlers exactly once.
func (w *WebSocket) detach(p *wsPeer, code websocket.StatusCode) {
	p.once.Do(func() {
		w.mu.Lock()
		if w.peers[p.id] == p {
			delete(w.peers, p.id)
		}
		w.mu.Unlock()
		close(p.done)
		p.conn.Close(code, "")
		w.logger.Debug("peer disconnected", zap.String("peer", p.id))
		w.emitDisconnected(p.id)
	})
}

func (w *WebSocket) Send(ctx context.Context, peerID string, data []byte) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("%w: transport closed", ErrTransport)
	}
	if w.pending.push(peerID, data) {
		w.mu.Unlock()
		return nil
	}
	p, ok := w.peers[peerID]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown peer %s", ErrTransport, peerID)
	}
	return w.enqueue(ctx, p, data)
}

func (w *WebSocket) enqueue(ctx context.Context, p *wsPeer, data []byte) error {
	select {
	case p.send <- data:
		return nil
	case <-p.done:
		return fmt.Errorf("%w: peer %s disconnected", ErrTransport, p.id)
	case <-ctx.Done():
		return fmt.Errorf("%w: send to %s: %v", ErrTransport, p.id, ctx.Err())
	}
}

func (w *WebSocket) Broadcast(ctx context.Context, data []byte) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("%w: transport closed", ErrTransport)
	}
	peers := make([]*wsPeer, 0, len(w.peers))
	for _, p := range w.peers {
		peers = append(peers, p)
	}
	w.mu.Unlock()

	var errs []error
	for _, p := range peers {
		if err := w.enqueue(ctx, p, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Peers returns the ids of the open links.
func (w *WebSocket) Peers() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.peers))
	for id := range w.peers {
		ids = append(ids, id)
	}
	return ids
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	peers := make([]*wsPeer, 0, len(w.peers))
	for _, p := range w.peers {
		peers = append(peers, p)
	}
	w.mu.Unlock()

	for _, p := range peers {
		w.detach(p, websocket.StatusGoingAway)
	}
	w.cancel()
	w.wg.Wait()
	return nil
}
