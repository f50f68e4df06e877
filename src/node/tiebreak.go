package node

import "fmt"

// TieBreaker decides whether a node may commit an operation that the
// commit-safety rule denied. It resolves the circular wait where two peers
// each hold an open prepare of the other with a timestamp smaller than the
// final timestamp of their own operation.
type TieBreaker interface {
	Bypass(self uint32, blockers []*OpenPrepare) bool
}

// LowestID lets a node force its commit through when its ID is smaller than
// the ID of every peer owning a blocking open prepare.
//
// The set of blockers of a deferred operation can only shrink, since a
// PREPARE received after finalization carries a larger timestamp, and it
// shrinks only when a NOTIFY arrives, which re-runs the RetryQueue. So when
// every in-flight operation is deferred, the peer with the smallest ID among
// their owners is blocked only by peers with larger IDs, and forces its
// commit.
type LowestID struct{}

// Bypass implements the TieBreaker interface.
func (LowestID) Bypass(self uint32, blockers []*OpenPrepare) bool {
	if len(blockers) == 0 {
		return false
	}
	for _, b := range blockers {
		if b.Sender <= self {
			return false
		}
	}
	return true
}

// Strict never bypasses the commit-safety rule. Cyclic waits are not resolved.
type Strict struct{}

// Bypass implements the TieBreaker interface.
func (Strict) Bypass(self uint32, blockers []*OpenPrepare) bool {
	return false
}

// NewTieBreaker returns the TieBreaker called name. The empty name selects
// LowestID.
func NewTieBreaker(name string) (TieBreaker, error) {
	switch name {
	case "", "lowest-id":
		return LowestID{}, nil
	case "strict":
		return Strict{}, nil
	default:
		return nil, fmt.Errorf("unknown tie-break policy %q", name)
	}
}
