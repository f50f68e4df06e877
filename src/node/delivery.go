package node

import (
	"github.com/emirpasic/gods/queues/priorityqueue"

	"github.com/mosaicnetworks/dsm/src/store"
)

// Bound is the ordering key of an operation: its timestamp, with ties broken
// by origin and then by sequence number.
type Bound struct {
	Timestamp uint64
	Origin    uint32
	Seq       uint64
}

// Compare returns -1, 0, or 1 if b orders before, with, or after o.
func (b Bound) Compare(o Bound) int {
	switch {
	case b.Timestamp != o.Timestamp:
		return cmpUint64(b.Timestamp, o.Timestamp)
	case b.Origin != o.Origin:
		return cmpUint64(uint64(b.Origin), uint64(o.Origin))
	default:
		return cmpUint64(b.Seq, o.Seq)
	}
}

// Less returns true if b orders strictly before o.
func (b Bound) Less(o Bound) bool {
	return b.Compare(o) < 0
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func entryBound(e store.LogEntry) Bound {
	return Bound{
		Timestamp: e.Timestamp,
		Origin:    e.Origin,
		Seq:       e.Seq,
	}
}

// DeliveryQueue holds committed operations until they can be applied to the
// local replica without overtaking an operation still in flight. Entries are
// ordered by Bound.
//
// The head is deliverable when it orders before every in-flight bound. In-flight
// bounds are the open prepares (their recorded timestamp is a lower bound of
// the final timestamp, since it is the response this node gave) and this
// node's own uncommitted operations. Any operation this node has not heard of
// yet will get a final timestamp larger than every timestamp this node has
// observed, so it cannot order before a queued entry. The local log is
// therefore sorted by Bound, and two peers apply the operations on the
// variables they share in the same order.
type DeliveryQueue struct {
	pq      *priorityqueue.Queue
	pending map[string]bool
}

// NewDeliveryQueue creates an empty DeliveryQueue.
func NewDeliveryQueue() *DeliveryQueue {
	return &DeliveryQueue{
		pq: priorityqueue.NewWith(func(a, b interface{}) int {
			return entryBound(a.(store.LogEntry)).Compare(entryBound(b.(store.LogEntry)))
		}),
		pending: make(map[string]bool),
	}
}

// Push adds a committed entry. It returns false if the same operation is
// already queued.
func (d *DeliveryQueue) Push(entry store.LogEntry) bool {
	if d.pending[entry.Key()] {
		return false
	}
	d.pq.Enqueue(entry)
	d.pending[entry.Key()] = true
	return true
}

// Contains returns true if operation seq from origin is queued.
func (d *DeliveryQueue) Contains(origin uint32, seq uint64) bool {
	return d.pending[store.OpKey(origin, seq)]
}

// Len returns the number of queued entries.
func (d *DeliveryQueue) Len() int {
	return len(d.pending)
}

// Pop removes and returns the deliverable entries, in order.
func (d *DeliveryQueue) Pop(inflight []Bound) []store.LogEntry {
	res := []store.LogEntry{}

	for {
		head, ok := d.pq.Peek()
		if !ok {
			break
		}
		entry := head.(store.LogEntry)
		if !deliverable(entryBound(entry), inflight) {
			break
		}
		d.pq.Dequeue()
		delete(d.pending, entry.Key())
		res = append(res, entry)
	}

	return res
}

func deliverable(head Bound, inflight []Bound) bool {
	for _, b := range inflight {
		if !head.Less(b) {
			return false
		}
	}
	return true
}
