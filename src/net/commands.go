package net

import "fmt"

// Kind identifies a message type on the wire. It is the byte that precedes
// every request body.
type Kind uint8

const (
	// KindPrepare announces a pending SET to a subscriber.
	KindPrepare Kind = iota + 1
	// KindPrepareResponse acknowledges a PREPARE with the responder's clock.
	KindPrepareResponse
	// KindNotify commits a SET with its final timestamp.
	KindNotify
	// KindTerminate signals that the sender has no more local work.
	KindTerminate
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindPrepare:
		return "PREPARE"
	case KindPrepareResponse:
		return "PREPARE_RESPONSE"
	case KindNotify:
		return "NOTIFY"
	case KindTerminate:
		return "TERMINATE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// Message is one of Prepare, PrepareResponse, Notify, Terminate, or
// UnknownKind. The set is closed: only this package can add variants.
type Message interface {
	Kind() Kind
	Sender() uint32
	message()
}

// Prepare is sent by the originator of a SET to every other subscriber of the
// variable. Seq identifies the operation among those submitted by FromID.
type Prepare struct {
	FromID    uint32
	Variable  string
	Value     int64
	Timestamp uint64
	Seq       uint64
}

// PrepareResponse carries the responder's clock after it observed the
// Prepare. Seq echoes the Prepare's Seq.
type PrepareResponse struct {
	FromID    uint32
	Variable  string
	Value     int64
	Timestamp uint64
	Seq       uint64
}

// Notify commits operation Seq of FromID with final timestamp Timestamp.
type Notify struct {
	FromID    uint32
	Variable  string
	Value     int64
	Timestamp uint64
	Seq       uint64
}

// Terminate is sent once by a peer that has committed all of its operations.
type Terminate struct {
	FromID uint32
}

// UnknownKind is produced when a request carries a kind byte that is not part
// of the protocol. Its body is never decoded.
type UnknownKind struct {
	FromID uint32
	Code   Kind
}

// Ack is the transport-level response to every message.
type Ack struct {
	FromID uint32
}

func (m *Prepare) Kind() Kind         { return KindPrepare }
func (m *PrepareResponse) Kind() Kind { return KindPrepareResponse }
func (m *Notify) Kind() Kind          { return KindNotify }
func (m *Terminate) Kind() Kind       { return KindTerminate }
func (m *UnknownKind) Kind() Kind     { return m.Code }

func (m *Prepare) Sender() uint32         { return m.FromID }
func (m *PrepareResponse) Sender() uint32 { return m.FromID }
func (m *Notify) Sender() uint32          { return m.FromID }
func (m *Terminate) Sender() uint32       { return m.FromID }
func (m *UnknownKind) Sender() uint32     { return m.FromID }

func (*Prepare) message()         {}
func (*PrepareResponse) message() {}
func (*Notify) message()          {}
func (*Terminate) message()       {}
func (*UnknownKind) message()     {}

// newMessage returns an empty message of kind k ready to be decoded into, or
// nil if k is not part of the protocol.
func newMessage(k Kind) Message {
	switch k {
	case KindPrepare:
		return &Prepare{}
	case KindPrepareResponse:
		return &PrepareResponse{}
	case KindNotify:
		return &Notify{}
	case KindTerminate:
		return &Terminate{}
	default:
		return nil
	}
}
