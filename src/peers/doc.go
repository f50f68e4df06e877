// Package peers defines the concept of a dsm peer and implements functions to
// manage the fixed collection of peers taking part in a run.
//
// A peer is an entity that operates a dsm node. Peers are identified by a
// numeric ID, which is also what the ordering protocol uses to break ties
// deterministically, and optionaly a moniker which is a non-unique
// user-friendly name. A peer should also specify an IP address and port where
// it can be reached by other peers when the TCP transport is used.
//
// Membership is static: the peer-set is read once from the topology file and
// never changes during a run.
package peers
