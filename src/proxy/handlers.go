package proxy

import (
	"github.com/mosaicnetworks/dsm/src/node/state"
	"github.com/mosaicnetworks/dsm/src/store"
)

// ProxyHandler encapsulates callbacks to be called by the InmemProxy. The
// application implements these handlers to process applied SET operations and
// state changes.
type ProxyHandler interface {
	// CommitHandler is called when a SET is applied to the local replica.
	// Entries on the same variable arrive in the same order at every peer.
	CommitHandler(entry store.LogEntry) error

	// StateChangeHandler is called by onStateChanged to notify that a dsm
	// node entered a certain state
	StateChangeHandler(state.State) error
}
