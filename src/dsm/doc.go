// Package dsm wires the components of a dsm node together.
//
// DSM is the engine of a single node running over TCP, as started by the
// `dsm run` command: it loads the topology from the data directory, creates
// the store, the transport, the node and the optional HTTP service.
//
// Cluster runs every peer of a topology in the same process, over in-memory
// transports, and reports the replicas and logs of all peers once the run is
// over. It backs the `dsm simulate` command.
package dsm
