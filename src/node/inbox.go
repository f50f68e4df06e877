package node

import (
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"

	"github.com/mosaicnetworks/dsm/src/net"
)

// Inbox is an unbounded FIFO of received messages. The receiving goroutine
// pushes into it without ever blocking, so that two nodes sending to each
// other never wait on each other's control loop.
type Inbox struct {
	l       sync.Mutex
	queue   *linkedlistqueue.Queue
	readyCh chan struct{}
}

// NewInbox creates an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{
		queue:   linkedlistqueue.New(),
		readyCh: make(chan struct{}, 1),
	}
}

// Push appends a message and signals the Ready channel.
func (i *Inbox) Push(msg net.Message) {
	i.l.Lock()
	i.queue.Enqueue(msg)
	i.l.Unlock()

	select {
	case i.readyCh <- struct{}{}:
	default:
	}
}

// Pop removes the oldest message.
func (i *Inbox) Pop() (net.Message, bool) {
	i.l.Lock()
	defer i.l.Unlock()

	v, ok := i.queue.Dequeue()
	if !ok {
		return nil, false
	}
	return v.(net.Message), true
}

// Ready receives a value after one or more Push. Consumers must Pop until the
// Inbox is empty after each receive.
func (i *Inbox) Ready() <-chan struct{} {
	return i.readyCh
}

// Len returns the number of queued messages.
func (i *Inbox) Len() int {
	i.l.Lock()
	defer i.l.Unlock()
	return i.queue.Size()
}
