// Package store holds the local replica of the variables a peer is subscribed
// to, and the append-only log of the SET operations applied to them.
//
// InmemStore keeps everything in memory. BadgerStore wraps an InmemStore and
// additionally archives every applied entry in a badger database so that the
// logs of different peers can be compared after the run. The archive is never
// read back to rebuild protocol state.
package store
