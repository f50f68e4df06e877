package peers

import "fmt"

// Peer is a participant in the shared-memory network. Peers are identified by
// a numeric ID, fixed for the lifetime of the run, and optionaly a moniker
// which is a non-unique user-friendly name.
type Peer struct {
	ID      uint32 `json:"id"`
	NetAddr string `json:"net_addr"`
	Moniker string `json:"moniker,omitempty"`
}

// NewPeer creates a new Peer.
func NewPeer(id uint32, netAddr, moniker string) *Peer {
	return &Peer{
		ID:      id,
		NetAddr: netAddr,
		Moniker: moniker,
	}
}

// String returns the moniker if there is one, and the ID otherwise.
func (p *Peer) String() string {
	if p.Moniker != "" {
		return p.Moniker
	}
	return fmt.Sprintf("peer%d", p.ID)
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, id uint32) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.ID != id {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
