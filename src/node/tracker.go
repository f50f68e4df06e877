package node

import (
	"sort"
)

// OpenPrepare records a PREPARE received from another peer whose NOTIFY has
// not arrived yet. Timestamp is this node's clock after observing the PREPARE,
// which is also the timestamp it replied with.
type OpenPrepare struct {
	Variable  string
	Timestamp uint64
	Sender    uint32
	Seq       uint64
	Open      bool
}

type prepareKey struct {
	variable string
	sender   uint32
}

// Tracker keeps the bookkeeping of the two-phase exchange: the PREPAREs this
// node sent for its own in-flight operations and the responses they got, and
// the PREPAREs it received from other peers that are still open.
//
// A peer has at most one operation in flight per variable, so open prepares
// are keyed by (variable, sender) and outstanding prepares by variable.
type Tracker struct {
	sent      map[string]map[uint32]uint64 // variable => destination => ts
	responses map[string]map[uint32]uint64 // variable => responder => ts
	open      map[prepareKey]*OpenPrepare
	self      uint32
}

// NewTracker creates an empty Tracker for node self.
func NewTracker(self uint32) *Tracker {
	return &Tracker{
		sent:      make(map[string]map[uint32]uint64),
		responses: make(map[string]map[uint32]uint64),
		open:      make(map[prepareKey]*OpenPrepare),
		self:      self,
	}
}

// Begin starts tracking a new operation on variable, registering the implicit
// response of this node at the tentative timestamp.
func (t *Tracker) Begin(variable string, tentative uint64) {
	t.sent[variable] = make(map[uint32]uint64)
	t.responses[variable] = map[uint32]uint64{t.self: tentative}
}

// RecordPrepareSent registers that a PREPARE with timestamp ts was sent to
// dest for the operation on variable.
func (t *Tracker) RecordPrepareSent(variable string, dest uint32, ts uint64) {
	if _, ok := t.sent[variable]; !ok {
		t.sent[variable] = make(map[uint32]uint64)
	}
	t.sent[variable][dest] = ts
}

// RecordResponse registers a PREPARE_RESPONSE. It returns false if no PREPARE
// was sent to sender for variable, or if sender already responded.
func (t *Tracker) RecordResponse(variable string, sender uint32, ts uint64) bool {
	if _, ok := t.sent[variable][sender]; !ok {
		return false
	}
	if _, ok := t.responses[variable][sender]; ok {
		return false
	}
	t.responses[variable][sender] = ts
	return true
}

// AllResponsesReceived returns true when every destination of a PREPARE for
// variable has responded. The implicit response of this node is not counted.
func (t *Tracker) AllResponsesReceived(variable string) bool {
	received := len(t.responses[variable])
	if _, ok := t.responses[variable][t.self]; ok {
		received--
	}
	return received == len(t.sent[variable])
}

// MaxResponse returns the largest timestamp among the responses collected for
// variable, the implicit one included. This is the final timestamp of the
// operation once AllResponsesReceived.
func (t *Tracker) MaxResponse(variable string) uint64 {
	var max uint64
	for _, ts := range t.responses[variable] {
		if ts > max {
			max = ts
		}
	}
	return max
}

// Forget drops the outstanding prepares and responses of variable.
func (t *Tracker) Forget(variable string) {
	delete(t.sent, variable)
	delete(t.responses, variable)
}

// RecordOpenPrepare registers a PREPARE received from another peer.
func (t *Tracker) RecordOpenPrepare(p OpenPrepare) {
	p.Open = true
	t.open[prepareKey{p.Variable, p.Sender}] = &p
}

// OpenPrepareFrom returns the open prepare of sender on variable, if any.
func (t *Tracker) OpenPrepareFrom(variable string, sender uint32) (*OpenPrepare, bool) {
	p, ok := t.open[prepareKey{variable, sender}]
	return p, ok
}

// ClosePrepare closes the open prepare of sender on variable if it belongs to
// operation seq. It returns the closed prepare.
func (t *Tracker) ClosePrepare(variable string, sender uint32, seq uint64) (*OpenPrepare, bool) {
	key := prepareKey{variable, sender}
	p, ok := t.open[key]
	if !ok || p.Seq != seq {
		return nil, false
	}
	p.Open = false
	delete(t.open, key)
	return p, true
}

// HasSmallerOpenTimestamp implements the commit-safety rule. It returns true
// when an operation with final timestamp ts may be committed, that is when no
// open prepare, on any variable, has a timestamp strictly smaller than ts. It
// returns false when the commit must be deferred.
func (t *Tracker) HasSmallerOpenTimestamp(ts uint64) bool {
	for _, p := range t.open {
		if p.Timestamp < ts {
			return false
		}
	}
	return true
}

// Blockers returns the open prepares that prevent committing an operation with
// final timestamp ts, ordered by timestamp and sender.
func (t *Tracker) Blockers(ts uint64) []*OpenPrepare {
	res := []*OpenPrepare{}
	for _, p := range t.open {
		if p.Timestamp < ts {
			res = append(res, p)
		}
	}
	sortPrepares(res)
	return res
}

// OpenPrepares returns the open prepares, ordered by timestamp and sender.
func (t *Tracker) OpenPrepares() []*OpenPrepare {
	res := make([]*OpenPrepare, 0, len(t.open))
	for _, p := range t.open {
		res = append(res, p)
	}
	sortPrepares(res)
	return res
}

// OpenCount returns the number of open prepares.
func (t *Tracker) OpenCount() int {
	return len(t.open)
}

func sortPrepares(ps []*OpenPrepare) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Timestamp != ps[j].Timestamp {
			return ps[i].Timestamp < ps[j].Timestamp
		}
		return ps[i].Sender < ps[j].Sender
	})
}
