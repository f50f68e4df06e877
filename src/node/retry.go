package node

import (
	"sort"

	"github.com/emirpasic/gods/queues/priorityqueue"
)

// RetryQueue holds the operations that were denied by the commit-safety rule,
// ordered by final timestamp. It is re-evaluated every time a NOTIFY closes an
// open prepare.
type RetryQueue struct {
	pq *priorityqueue.Queue
}

// NewRetryQueue creates an empty RetryQueue.
func NewRetryQueue() *RetryQueue {
	return &RetryQueue{
		pq: priorityqueue.NewWith(func(a, b interface{}) int {
			return a.(*Operation).bound().Compare(b.(*Operation).bound())
		}),
	}
}

// Push defers an operation.
func (r *RetryQueue) Push(op *Operation) {
	r.pq.Enqueue(op)
}

// Len returns the number of deferred operations.
func (r *RetryQueue) Len() int {
	return r.pq.Size()
}

// Run pops every deferred operation in timestamp order and asks decide whether
// it can now be committed. It returns the accepted operations, in order, and
// keeps the others.
func (r *RetryQueue) Run(decide func(op *Operation) bool) []*Operation {
	accepted := []*Operation{}
	stillBlocked := []*Operation{}

	for !r.pq.Empty() {
		v, _ := r.pq.Dequeue()
		op := v.(*Operation)
		if decide(op) {
			accepted = append(accepted, op)
		} else {
			stillBlocked = append(stillBlocked, op)
		}
	}

	for _, op := range stillBlocked {
		r.pq.Enqueue(op)
	}

	return accepted
}

// Operations returns the deferred operations in timestamp order.
func (r *RetryQueue) Operations() []*Operation {
	res := []*Operation{}
	for _, v := range r.pq.Values() {
		res = append(res, v.(*Operation))
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].bound().Less(res[j].bound())
	})
	return res
}
