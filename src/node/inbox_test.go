package node

import (
	"testing"

	"github.com/mosaicnetworks/dsm/src/net"
)

func TestInboxFIFO(t *testing.T) {
	inbox := NewInbox()

	if _, ok := inbox.Pop(); ok {
		t.Fatal("Pop on an empty Inbox should fail")
	}

	for i := 0; i < 100; i++ {
		inbox.Push(&net.Notify{FromID: 1, Seq: uint64(i)})
	}

	select {
	case <-inbox.Ready():
	default:
		t.Fatal("Ready should be signaled after Push")
	}

	if inbox.Len() != 100 {
		t.Fatalf("Len should be 100, not %d", inbox.Len())
	}

	for i := 0; i < 100; i++ {
		msg, ok := inbox.Pop()
		if !ok {
			t.Fatalf("Pop %d failed", i)
		}
		if seq := msg.(*net.Notify).Seq; seq != uint64(i) {
			t.Fatalf("Pop %d returned seq %d", i, seq)
		}
	}

	if inbox.Len() != 0 {
		t.Fatalf("Len should be 0, not %d", inbox.Len())
	}
}
