// Package node implements a peer of the distributed shared memory.
//
// Every peer keeps a replica of the variables it is subscribed to. Writes are
// SET operations, which are ordered by a Lamport clock so that all the
// subscribers of a variable apply its SETs in the same order.
//
// Ordering
//
// A SET goes through three phases, implemented by the Core:
//
//	PREPARE           the originator ticks its clock once per subscriber and
//	                  sends it a PREPARE. The receiver observes the timestamp,
//	                  records an open prepare and answers with its clock.
//	PREPARE_RESPONSE  when every subscriber has answered, the final timestamp
//	                  of the operation is the largest response, the
//	                  originator's own clock at submission included.
//	NOTIFY            if no open prepare received from another peer has a
//	                  smaller timestamp, the originator commits the operation
//	                  and sends the final timestamp to every subscriber.
//	                  Otherwise the operation waits in the RetryQueue until
//	                  the NOTIFYs of the blocking operations arrive.
//
// Two peers can each hold an open prepare of the other one with a smaller
// timestamp. The TieBreaker resolves that wait: with the default LowestID
// policy, the peer with the smallest ID commits anyway.
//
// Committed operations go through the DeliveryQueue before they reach the
// store. An entry is applied once no operation still in flight, on any
// variable, could order before it. Every log is therefore sorted by
// (timestamp, origin, seq), and two peers log the SETs of the variables they
// share in the same relative order.
//
// Node
//
// Node wraps the Core with a transport, an Inbox and a control loop. A
// dedicated goroutine acknowledges incoming messages and queues them in the
// Inbox; the control loop processes them one at a time, together with the SETs
// submitted by the application through the proxy. The Core is only accessed
// from the control loop.
//
// A node sends TERMINATE to every other peer once it has committed all of its
// own operations and the application has no more to submit. It shuts down
// after every other peer has terminated and its queues are drained.
//
// A message that is not part of the protocol stops the node with an error
// wrapping ErrProtocolViolation. The replica is left as it was.
package node
