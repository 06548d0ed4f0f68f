package runtime

import (
	"sync"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
)

// Outbox is the FIFO of messages a session produced and nobody polled yet.
type Outbox struct {
	mu    sync.Mutex
	queue []domain.Message
	seq   uint64
	clock func() time.Time
}

// NewOutbox creates an empty queue.
func NewOutbox() *Outbox {
	return &Outbox{clock: time.Now}
}

// Push appends a message and returns it with its sequence number assigned.
func (o *Outbox) Push(kind domain.MessageKind, step, text string) domain.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	msg := domain.Message{Seq: o.seq, Kind: kind, Step: step, Text: text, At: o.clock()}
	o.queue = append(o.queue, msg)
	return msg
}

// Poll pops the oldest message. ok is false when the queue is empty.
func (o *Outbox) Poll() (msg domain.Message, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return domain.Message{}, false
	}
	msg = o.queue[0]
	o.queue[0] = domain.Message{}
	o.queue = o.queue[1:]
	if len(o.queue) == 0 {
		o.queue = nil
	}
	return msg, true
}

// Drain pops every queued message, oldest first.
func (o *Outbox) Drain() []domain.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.queue
	o.queue = nil
	return out
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}
