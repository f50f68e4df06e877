package net

// Transport provides an interface for network transports to allow a peer to
// communicate with other peers. Messages sent by one peer to another are
// delivered in send order as long as the sender waits for each Send to
// return before issuing the next.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to
	// consume and respond to incoming messages.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Send delivers a message to the target peer and waits for its Ack.
	Send(target string, msg Message, resp *Ack) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
