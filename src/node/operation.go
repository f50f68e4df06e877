package node

import (
	"fmt"

	"github.com/mosaicnetworks/dsm/src/store"
)

// OpState is the lifecycle state of an Operation driven by this node.
type OpState uint8

const (
	// Created operations have a tentative timestamp but no PREPARE was sent.
	Created OpState = iota
	// Prepared operations have fanned out their PREPAREs and are collecting
	// responses.
	Prepared
	// Finalized operations have a final timestamp and await the commit
	// decision.
	Finalized
	// Deferred operations were denied by the commit-safety rule and wait in
	// the RetryQueue.
	Deferred
	// Committed operations have been notified to every subscriber. This state
	// is terminal.
	Committed
)

// String returns the string representation of an OpState
func (s OpState) String() string {
	switch s {
	case Created:
		return "Created"
	case Prepared:
		return "Prepared"
	case Finalized:
		return "Finalized"
	case Deferred:
		return "Deferred"
	case Committed:
		return "Committed"
	default:
		return "Unknown"
	}
}

var transitions = map[OpState][]OpState{
	Created:   {Prepared},
	Prepared:  {Finalized},
	Finalized: {Committed, Deferred},
	Deferred:  {Committed},
}

// Operation is a SET submitted by this node. Origin and Seq identify it across
// the run.
type Operation struct {
	Origin    uint32
	Seq       uint64
	Variable  string
	Value     int64
	Tentative uint64
	Final     uint64
	State     OpState
}

// advance moves the operation to state to. It fails if the transition is not
// part of the lifecycle, in particular for any transition out of Committed.
func (o *Operation) advance(to OpState) error {
	for _, s := range transitions[o.State] {
		if s == to {
			o.State = to
			return nil
		}
	}
	return fmt.Errorf("operation %s: illegal transition %s -> %s", o.key(), o.State, to)
}

// bound returns the smallest timestamp the operation can still commit with:
// the final timestamp once known, the tentative one before.
func (o *Operation) bound() Bound {
	ts := o.Tentative
	if o.State >= Finalized {
		ts = o.Final
	}
	return Bound{
		Timestamp: ts,
		Origin:    o.Origin,
		Seq:       o.Seq,
	}
}

// Entry returns the log entry of a finalized operation.
func (o *Operation) Entry() store.LogEntry {
	return store.LogEntry{
		Variable:  o.Variable,
		Value:     o.Value,
		Timestamp: o.Final,
		Origin:    o.Origin,
		Seq:       o.Seq,
	}
}

func (o *Operation) key() string {
	return store.OpKey(o.Origin, o.Seq)
}

func (o *Operation) String() string {
	return fmt.Sprintf("SET(%s,%d) %s tentative=%d final=%d %s",
		o.Variable, o.Value, o.key(), o.Tentative, o.Final, o.State)
}
