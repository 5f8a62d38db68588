package transport

// outbox holds messages for peers whose link is still opening. It is not
// safe for concurrent use; the owning transport guards it.
type outbox struct {
	queues map[string][][]byte
}

func newOutbox() *outbox {
	return &outbox{queues: make(map[string][][]byte)}
}

// expect marks peerID as opening so sends to it are queued.
func (o *outbox) expect(peerID string) {
	if _, ok := o.queues[peerID]; !ok {
		o.queues[peerID] = nil
	}
}

func (o *outbox) opening(peerID string) bool {
	_, ok := o.queues[peerID]
	return ok
}

// push queues data for an opening peer. It reports false if the peer is not
// opening.
func (o *outbox) push(peerID string, data []byte) bool {
	q, ok := o.queues[peerID]
	if !ok {
		return false
	}
	o.queues[peerID] = append(q, append([]byte(nil), data...))
	return true
}

// take returns the queued messages in send order and stops queueing for
// peerID.
func (o *outbox) take(peerID string) [][]byte {
	q := o.queues[peerID]
	delete(o.queues, peerID)
	return q
}

// drop discards everything queued for peerID and returns how many messages
// were lost.
func (o *outbox) drop(peerID string) int {
	n := len(o.queues[peerID])
	delete(o.queues, peerID)
	return n
}
