package net

// RPCResponse captures both a response and a potential error.
type RPCResponse struct {
	Response *Ack
	Error    error
}

// RPC encapsulates an incoming message and provides a response mechanism.
type RPC struct {
	Command  Message
	RespChan chan<- RPCResponse
}

// Respond is used to respond with a response, error or both.
func (r *RPC) Respond(resp *Ack, err error) {
	r.RespChan <- RPCResponse{resp, err}
}
