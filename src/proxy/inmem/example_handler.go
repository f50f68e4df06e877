package inmem

import (
	"sync"

	"github.com/mosaicnetworks/dsm/src/node/state"
	"github.com/mosaicnetworks/dsm/src/store"
)

// ExampleHandler implements the ProxyHandler interface. It records the
// entries applied by the node in the order they were received, and keeps
// track of the node's state.
type ExampleHandler struct {
	sync.Mutex
	entries []store.LogEntry
	state   state.State
}

// CommitHandler is called by dsm to commit a SET to the application. Entries
// on the same variable arrive in the same order at every subscribed peer.
func (h *ExampleHandler) CommitHandler(entry store.LogEntry) error {
	h.Lock()
	defer h.Unlock()
	h.entries = append(h.entries, entry)
	return nil
}

// StateChangeHandler is called by dsm to notify the application that the node
// has entered a new state.
func (h *ExampleHandler) StateChangeHandler(state state.State) error {
	h.Lock()
	defer h.Unlock()
	h.state = state
	return nil
}

// Entries returns a copy of the committed entries.
func (h *ExampleHandler) Entries() []store.LogEntry {
	h.Lock()
	defer h.Unlock()
	res := make([]store.LogEntry, len(h.entries))
	copy(res, h.entries)
	return res
}

// State returns the last state the node reported.
func (h *ExampleHandler) State() state.State {
	h.Lock()
	defer h.Unlock()
	return h.state
}
