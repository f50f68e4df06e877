// Package net implements the transports dsm peers use to exchange protocol
// messages.
//
// Every message (Prepare, PrepareResponse, Notify, Terminate) is sent with
// Transport.Send and acknowledged with an Ack as soon as the receiving peer
// has queued it. The ordering protocol relies on messages between any two
// peers being delivered in send order, which holds as long as a peer waits for
// each Send to return before issuing the next one.
//
// There are two implementations of the Transport interface:
//
// - Inmem: in-memory transport used by the simulator and by tests
//
// - TCP: communicating over plain TCP
//
// To use a TCP transport, set the following configuration options in the dsm
// Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that dsm binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other peers.
// If BindAddr is a local address not reachable by other peers, it is usefull
// to set AdvertiseAddr to the reachable public address.
package net
