package topology

import (
	"errors"
	"io/ioutil"
	"os"
	"reflect"
	"testing"

	"github.com/mosaicnetworks/dsm/src/peers"
)

func fourPeerTopology() *Topology {
	return &Topology{
		Peers: []*peers.Peer{
			peers.NewPeer(1, "", "p1"),
			peers.NewPeer(2, "", "p2"),
			peers.NewPeer(3, "", "p3"),
			peers.NewPeer(4, "", "p4"),
		},
		Variables: map[string][]uint32{
			"A": {2, 1},
			"B": {1, 2},
			"C": {3, 4},
			"D": {3, 4},
			"E": {1, 2, 3, 4},
		},
		Operations: map[string][]Op{
			"1": {{"A", 5}, {"B", 4}, {"A", 6}, {"E", 7}},
			"3": {{"C", 1}, {"E", 8}},
		},
	}
}

func TestValidate(t *testing.T) {
	if err := fourPeerTopology().Validate(); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		modify func(*Topology)
	}{
		{"duplicate peer", func(topo *Topology) {
			topo.Peers = append(topo.Peers, peers.NewPeer(1, "", "dup"))
		}},
		{"empty variable", func(topo *Topology) {
			topo.Variables[""] = []uint32{1}
		}},
		{"unknown subscriber", func(topo *Topology) {
			topo.Variables["F"] = []uint32{1, 9}
		}},
		{"unknown issuer", func(topo *Topology) {
			topo.Operations["9"] = []Op{{"A", 1}}
		}},
		{"invalid issuer", func(topo *Topology) {
			topo.Operations["one"] = []Op{{"A", 1}}
		}},
		{"unknown variable", func(topo *Topology) {
			topo.Operations["2"] = []Op{{"Z", 1}}
		}},
		{"not subscribed", func(topo *Topology) {
			topo.Operations["2"] = []Op{{"C", 1}}
		}},
		{"no peers", func(topo *Topology) {
			topo.Peers = nil
		}},
	}

	for _, c := range cases {
		topo := fourPeerTopology()
		c.modify(topo)
		err := topo.Validate()
		var cerr *ConfigError
		if !errors.As(err, &cerr) {
			t.Fatalf("%s: expected ConfigError, got %v", c.name, err)
		}
	}
}

func TestDirectory(t *testing.T) {
	dir := fourPeerTopology().Directory(2)

	subs, err := dir.SubscribersOf("A")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(subs, []uint32{1}) {
		t.Fatalf("SubscribersOf(A) should be [1], not %v", subs)
	}

	all, err := dir.Subscribers("E")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(all, []uint32{1, 2, 3, 4}) {
		t.Fatalf("Subscribers(E) should be [1 2 3 4], not %v", all)
	}

	if _, err := dir.SubscribersOf("Z"); err == nil {
		t.Fatal("SubscribersOf unknown variable should fail")
	}

	if dir.IsSubscribed("C") {
		t.Fatal("peer 2 is not subscribed to C")
	}

	if !dir.HasSubscriber("A", 1) || !dir.HasSubscriber("C", 3) {
		t.Fatal("peer 1 subscribes to A and peer 3 to C")
	}
	if dir.HasSubscriber("A", 3) || dir.HasSubscriber("Z", 1) {
		t.Fatal("peer 3 does not subscribe to A, and nobody subscribes to Z")
	}

	if !reflect.DeepEqual(dir.Variables(), []string{"A", "B", "E"}) {
		t.Fatalf("Variables should be [A B E], not %v", dir.Variables())
	}
}

func TestOperationsOf(t *testing.T) {
	topo := fourPeerTopology()

	ops := topo.OperationsOf(1)
	expected := []Op{{"A", 5}, {"B", 4}, {"A", 6}, {"E", 7}}
	if !reflect.DeepEqual(ops, expected) {
		t.Fatalf("OperationsOf(1) should be %v, not %v", expected, ops)
	}

	if len(topo.OperationsOf(4)) != 0 {
		t.Fatal("peer 4 has no operations")
	}
}

func TestJSONTopology(t *testing.T) {
	dir, err := ioutil.TempDir("test_data", "dsm")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONTopology(dir)

	if err := store.Write(fourPeerTopology()); err != nil {
		t.Fatal(err)
	}

	topo, err := store.Topology()
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(topo.PeerSet().IDs(), []uint32{1, 2, 3, 4}) {
		t.Fatalf("wrong peers %v", topo.PeerSet().IDs())
	}

	if !reflect.DeepEqual(topo.OperationsOf(3), []Op{{"C", 1}, {"E", 8}}) {
		t.Fatalf("wrong operations for peer 3: %v", topo.OperationsOf(3))
	}
}

func TestDecodeInvalid(t *testing.T) {
	data := []byte(`{"peers":[{"id":1}],"variables":{"X":[1]},"operations":{"1":[{"var":"Y","value":1}]}}`)

	_, err := Decode(data)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cerr.Field != "operations" {
		t.Fatalf("expected operations field, got %s", cerr.Field)
	}

	if _, err := Decode([]byte(`{"peers": 3}`)); err == nil {
		t.Fatal("malformed topology should fail")
	}
}

func TestSample(t *testing.T) {
	for n, peerCount := range map[int]int{1: 2, 2: 4} {
		topo, err := Sample(n)
		if err != nil {
			t.Fatalf("Sample(%d): %v", n, err)
		}
		if err := topo.Validate(); err != nil {
			t.Fatalf("Sample(%d) should be valid: %v", n, err)
		}
		if len(topo.Peers) != peerCount {
			t.Fatalf("Sample(%d) should have %d peers, not %d", n, peerCount, len(topo.Peers))
		}
	}

	topo, _ := Sample(2)
	if !reflect.DeepEqual(topo.Variables["E"], []uint32{1, 2, 3, 4}) {
		t.Fatalf("E should be shared by all four peers, got %v", topo.Variables["E"])
	}
	exp := []Op{{"A", 5}, {"B", 4}, {"A", 6}, {"E", 7}}
	if !reflect.DeepEqual(topo.OperationsOf(1), exp) {
		t.Fatalf("peer 1 should submit %v, not %v", exp, topo.OperationsOf(1))
	}

	_, err := Sample(3)
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("Sample(3) should return a ConfigError, got %v", err)
	}
}
