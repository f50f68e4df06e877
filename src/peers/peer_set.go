package peers

import (
	"fmt"
	"sort"
)

//PeerSet is the fixed set of Peers taking part in a run
type PeerSet struct {
	Peers  []*Peer          `json:"peers"`
	ByID   map[uint32]*Peer `json:"-"`
	ByAddr map[string]*Peer `json:"-"`
}

//NewPeerSet creates a new PeerSet from a list of Peers. Peers are sorted by
//ID.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByID:   make(map[uint32]*Peer),
		ByAddr: make(map[string]*Peer),
	}

	sorted := make([]*Peer, len(peers))
	copy(sorted, peers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, peer := range sorted {
		peerSet.ByID[peer.ID] = peer
		if peer.NetAddr != "" {
			peerSet.ByAddr[peer.NetAddr] = peer
		}
	}

	peerSet.Peers = sorted

	return peerSet
}

//IDs returns the PeerSet's slice of IDs in increasing order
func (peerSet *PeerSet) IDs() []uint32 {
	res := []uint32{}

	for _, peer := range peerSet.Peers {
		res = append(res, peer.ID)
	}

	return res
}

//Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.ByID)
}

//Addr returns the network address of a peer
func (peerSet *PeerSet) Addr(id uint32) (string, error) {
	peer, ok := peerSet.ByID[id]
	if !ok {
		return "", fmt.Errorf("unknown peer %d", id)
	}
	return peer.NetAddr, nil
}

//Others returns all the peers except the one with the given ID
func (peerSet *PeerSet) Others(id uint32) []*Peer {
	_, others := ExcludePeer(peerSet.Peers, id)
	return others
}
