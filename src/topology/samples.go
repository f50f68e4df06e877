package topology

import (
	"fmt"

	"github.com/mosaicnetworks/dsm/src/peers"
)

// Sample returns one of the built-in topologies:
//
//	1  two peers on {X,Y}. P1 sets X=5, P2 sets Y=7.
//	2  P1,P2 on {A,B,E} and P3,P4 on {C,D,E}, E shared by all four.
//
// Sample peers have no address; they are meant for in-memory runs.
func Sample(n int) (*Topology, error) {
	switch n {
	case 1:
		return &Topology{
			Peers: samplePeers(2),
			Variables: map[string][]uint32{
				"X": {1, 2},
				"Y": {1, 2},
			},
			Operations: map[string][]Op{
				"1": {{Variable: "X", Value: 5}},
				"2": {{Variable: "Y", Value: 7}},
			},
		}, nil
	case 2:
		groupAB := []Op{
			{Variable: "A", Value: 5},
			{Variable: "B", Value: 4},
			{Variable: "A", Value: 6},
			{Variable: "E", Value: 7},
		}
		groupCD := []Op{
			{Variable: "C", Value: 4},
			{Variable: "C", Value: 5},
			{Variable: "E", Value: 7},
		}
		return &Topology{
			Peers: samplePeers(4),
			Variables: map[string][]uint32{
				"A": {1, 2},
				"B": {1, 2},
				"C": {3, 4},
				"D": {3, 4},
				"E": {1, 2, 3, 4},
			},
			Operations: map[string][]Op{
				"1": groupAB,
				"2": append([]Op(nil), groupAB...),
				"3": groupCD,
				"4": append([]Op(nil), groupCD...),
			},
		}, nil
	}
	return nil, NewConfigError("sample", "no sample topology %d", n)
}

func samplePeers(n int) []*peers.Peer {
	res := make([]*peers.Peer, n)
	for i := range res {
		id := uint32(i + 1)
		res[i] = peers.NewPeer(id, "", fmt.Sprintf("P%d", id))
	}
	return res
}
