package node

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/dsm/src/net"
)

// processMessage dispatches a message received from another peer to the Core.
// Any message that is not part of the protocol is a protocol violation.
func (n *Node) processMessage(msg net.Message) error {
	n.logger.WithFields(logrus.Fields{
		"kind": msg.Kind().String(),
		"from": msg.Sender(),
	}).Debug("Processing message")

	if u, ok := msg.(*net.UnknownKind); ok {
		return fmt.Errorf("%w: unknown message kind %d", ErrProtocolViolation, uint8(u.Code))
	}

	if _, ok := n.peers.ByID[msg.Sender()]; !ok || msg.Sender() == n.id {
		return fmt.Errorf("%w: %s from unexpected sender %d", ErrProtocolViolation, msg.Kind(), msg.Sender())
	}

	switch m := msg.(type) {
	case *net.Prepare:
		return n.core.ProcessPrepare(m)
	case *net.PrepareResponse:
		return n.core.ProcessPrepareResponse(m)
	case *net.Notify:
		return n.core.ProcessNotify(m)
	case *net.Terminate:
		n.processTerminate(m)
		return nil
	default:
		return fmt.Errorf("%w: unexpected message %T", ErrProtocolViolation, msg)
	}
}

func (n *Node) processTerminate(m *net.Terminate) {
	n.terminatedBy[m.FromID] = true

	n.logger.WithFields(logrus.Fields{
		"from":       m.FromID,
		"terminated": len(n.terminatedBy),
	}).Debug("TERMINATE")
}
