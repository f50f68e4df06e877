// Package proxy defines AppProxy: the interface between a dsm node and the
// application that reads and writes the shared variables.
//
// The application submits SET operations through the channel returned by
// SubmitCh, and the node calls CommitSet for every SET it applies to its local
// replica, in the agreed order. Closing the submit channel tells the node that
// the application has no more operations to issue, which allows the node to
// terminate once its own operations have committed.
//
// InmemProxy, in the inmem package, uses native callback handlers to
// integrate dsm as a regular Go dependency.
package proxy
