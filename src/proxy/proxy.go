package proxy

import (
	"github.com/mosaicnetworks/dsm/src/node/state"
	"github.com/mosaicnetworks/dsm/src/store"
)

// Set is a SET operation submitted by the application.
type Set struct {
	Variable string
	Value    int64
}

// AppProxy is the interface a node uses to communicate with the application.
type AppProxy interface {
	SubmitCh() chan Set
	CommitSet(entry store.LogEntry) error
	OnStateChanged(state.State) error
}
