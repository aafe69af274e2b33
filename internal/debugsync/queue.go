package debugsync

import (
	"context"
	"sync"
	"time"
)

// Queue is a thread safe FIFO message queue. Any number of goroutines may
// put and get messages concurrently. A request blocks the sender until a
// reply for the request message is posted with RespondTo.
type Queue struct {
	mu     sync.Mutex
	items  []Message
	closed bool
	signal chan struct{} // has a pending token while items may be available
	done   chan struct{}

	replyMu sync.Mutex
	replies map[uint64]*Queue
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		replies: map[uint64]*Queue{},
	}
}

// Put appends a message. Messages put after Close are dropped.
func (q *Queue) Put(msg Message) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	q.notify()
}

// Get removes and returns the oldest message. A zero timeout returns
// immediately, a negative timeout waits without limit. If no message
// arrives in time a message of kind KindTimeout is returned. Once the queue
// is closed and drained a KindShutdown message is returned.
func (q *Queue) Get(timeout time.Duration) Message {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if msg, ok := q.pop(); ok {
			return msg
		}
		if q.isClosed() {
			return Message{Kind: KindShutdown}
		}
		if timeout == 0 {
			return Message{Kind: KindTimeout}
		}

		select {
		case <-q.signal:
		case <-q.done:
		case <-expired:
			if msg, ok := q.pop(); ok {
				return msg
			}
			return Message{Kind: KindTimeout}
		}
	}
}

// GetContext removes and returns the oldest message, waiting until one is
// available, the queue is closed or the context is done.
func (q *Queue) GetContext(ctx context.Context) (Message, error) {
	for {
		if msg, ok := q.pop(); ok {
			return msg, nil
		}
		if q.isClosed() {
			return Message{Kind: KindShutdown}, nil
		}

		select {
		case <-q.signal:
		case <-q.done:
		case <-ctx.Done():
			return Message{Kind: KindTimeout}, ctx.Err()
		}
	}
}

// Request puts msg and blocks until a reply to it is posted with RespondTo
// or the queue is closed, in which case a KindShutdown message is returned.
func (q *Queue) Request(msg Message) Message {
	reply, ok := q.prepareRequest(&msg)
	if !ok {
		return Message{Kind: KindShutdown}
	}
	defer q.removeReply(msg.ID)

	q.Put(msg)
	return reply.Get(-1)
}

// RequestContext is like Request but gives up when the context is done.
func (q *Queue) RequestContext(ctx context.Context, msg Message) (Message, error) {
	reply, ok := q.prepareRequest(&msg)
	if !ok {
		return Message{Kind: KindShutdown}, nil
	}
	defer q.removeReply(msg.ID)

	q.Put(msg)
	return reply.GetContext(ctx)
}

// RespondTo posts a reply to the request with the given message ID. Replies
// to unknown or already answered requests are dropped.
func (q *Queue) RespondTo(id uint64, reply Message) {
	q.replyMu.Lock()
	r, ok := q.replies[id]
	q.replyMu.Unlock()

	if ok {
		r.Put(reply)
	}
}

// Close wakes all waiters. Pending messages can still be received, after
// that every receive returns a KindShutdown message. Pending requests are
// answered with KindShutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.replyMu.Lock()
	for _, r := range q.replies {
		r.Close()
	}
	q.replyMu.Unlock()
}

// Done returns a channel that is closed when the queue is closed.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) prepareRequest(msg *Message) (*Queue, bool) {
	if msg.ID == 0 {
		msg.ID = nextID.Add(1)
	}

	reply := New()
	q.replyMu.Lock()
	defer q.replyMu.Unlock()
	if q.isClosed() {
		return nil, false
	}
	q.replies[msg.ID] = reply
	return reply, true
}

func (q *Queue) removeReply(id uint64) {
	q.replyMu.Lock()
	delete(q.replies, id)
	q.replyMu.Unlock()
}

func (q *Queue) pop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Message{}, false
	}
	msg := q.items[0]
	q.items[0] = Message{}
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.notify()
	}
	return msg, true
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
