package dsm

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/dsm/src/config"
	"github.com/mosaicnetworks/dsm/src/net"
	"github.com/mosaicnetworks/dsm/src/node"
	"github.com/mosaicnetworks/dsm/src/peers"
	"github.com/mosaicnetworks/dsm/src/store"
	"github.com/mosaicnetworks/dsm/src/topology"
)

// ErrTimeout is returned by Cluster.Run when the peers did not terminate in
// time.
var ErrTimeout = errors.New("timeout waiting for peers to terminate")

// Cluster runs all the peers of a topology in one process, connected by
// in-memory transports.
type Cluster struct {
	Topology *topology.Topology
	Nodes    []*node.Node

	conf   *config.Config
	logger *logrus.Entry
}

// NewCluster creates a node per peer of the topology. When conf.Store is set,
// every peer archives its log in its own badger database under
// conf.DatabaseDir.
func NewCluster(conf *config.Config, topo *topology.Topology) (*Cluster, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}

	pirs := make([]*peers.Peer, len(topo.Peers))
	trans := make([]*net.InmemTransport, len(topo.Peers))
	for i, p := range topo.Peers {
		addr, tr := net.NewInmemTransport("")
		trans[i] = tr
		pirs[i] = peers.NewPeer(p.ID, addr, p.Moniker)
	}
	for _, a := range trans {
		for _, b := range trans {
			a.Connect(b.LocalAddr(), b)
		}
	}
	peerSet := peers.NewPeerSet(pirs)

	c := &Cluster{
		Topology: topo,
		conf:     conf,
		logger:   conf.Logger(),
	}

	for i, p := range topo.Peers {
		var st store.Store = store.NewInmemStore()
		if conf.Store {
			badgerStore, err := store.NewBadgerStore(peerDatabaseDir(conf.DatabaseDir, p.ID))
			if err != nil {
				c.close()
				return nil, err
			}
			st = badgerStore
		}

		n, err := node.NewNode(conf,
			p.ID,
			peerSet,
			topo.Directory(p.ID),
			topo.OperationsOf(p.ID),
			st,
			trans[i],
			nil)
		if err != nil {
			st.Close()
			c.close()
			return nil, err
		}

		c.Nodes = append(c.Nodes, n)
	}

	return c, nil
}

func (c *Cluster) close() {
	for _, n := range c.Nodes {
		n.Shutdown()
	}
}

// Run starts every node and waits for all of them to terminate. A timeout of
// zero waits forever. It returns the first error that stopped a node.
func (c *Cluster) Run(timeout time.Duration) error {
	start := time.Now()

	for _, n := range c.Nodes {
		n.RunAsync()
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for _, n := range c.Nodes {
		select {
		case <-n.Done():
		case <-deadline:
			for _, n := range c.Nodes {
				c.logger.WithField("stats", n.GetStats()).Error("Peer did not terminate")
			}
			c.close()
			return ErrTimeout
		}
	}

	c.logger.WithField("duration", time.Since(start).String()).Info("Cluster terminated")

	for _, n := range c.Nodes {
		if err := n.Err(); err != nil {
			return fmt.Errorf("peer %d: %w", n.ID(), err)
		}
	}

	return nil
}

// Report writes the replica and the log of every peer.
func (c *Cluster) Report(w io.Writer) {
	for _, n := range c.Nodes {
		WriteMemory(w, n.ID(), n.Snapshot())
		WriteLog(w, n.ID(), n.Log())
	}
}

// WriteMemory writes the variables of a replica, sorted by name.
func WriteMemory(w io.Writer, id uint32, snapshot map[string]store.Variable) {
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "[Variables for peer %d]\n", id)
	for _, name := range names {
		fmt.Fprintf(w, "%s=%d\n", name, snapshot[name].Value)
	}
	fmt.Fprintln(w, "[... done]")
}

// WriteLog writes the applied operations of a peer, oldest first.
func WriteLog(w io.Writer, id uint32, log []store.LogEntry) {
	fmt.Fprintf(w, "[Log for peer %d]\n", id)
	for _, e := range log {
		fmt.Fprintln(w, e.String())
	}
	fmt.Fprintln(w, "[... done]")
}

// Disagreement describes two subscribers of a variable whose replicas or logs
// differ.
type Disagreement struct {
	Variable string
	Peers    [2]uint32
	Reason   string
}

func (d Disagreement) String() string {
	return fmt.Sprintf("%s: peers %d and %d %s", d.Variable, d.Peers[0], d.Peers[1], d.Reason)
}

// CheckAgreement compares every subscriber of every variable with the first
// one: they must hold the same value and apply the operations on the variable
// in the same order.
func (c *Cluster) CheckAgreement() []Disagreement {
	byID := make(map[uint32]*node.Node, len(c.Nodes))
	for _, n := range c.Nodes {
		byID[n.ID()] = n
	}

	variables := make([]string, 0, len(c.Topology.Variables))
	for v := range c.Topology.Variables {
		variables = append(variables, v)
	}
	sort.Strings(variables)

	res := []Disagreement{}
	for _, v := range variables {
		subs := c.Topology.Variables[v]
		if len(subs) < 2 {
			continue
		}

		ref := byID[subs[0]]
		refValue := ref.Snapshot()[v]
		refLog := filterLog(ref.Log(), v)

		for _, id := range subs[1:] {
			other := byID[id]
			pair := [2]uint32{subs[0], id}
			if value := other.Snapshot()[v]; value != refValue {
				res = append(res, Disagreement{v, pair, fmt.Sprintf("hold %d and %d", refValue.Value, value.Value)})
			}
			if !reflect.DeepEqual(filterLog(other.Log(), v), refLog) {
				res = append(res, Disagreement{v, pair, "applied the operations in a different order"})
			}
		}
	}

	return res
}

// Verdict returns a one-line summary of CheckAgreement.
func Verdict(ds []Disagreement) string {
	if len(ds) == 0 {
		return "AGREEMENT: every subscriber of every variable holds the same value and log"
	}
	lines := make([]string, len(ds))
	for i, d := range ds {
		lines[i] = d.String()
	}
	return "DISAGREEMENT: " + strings.Join(lines, "; ")
}

func filterLog(entries []store.LogEntry, variable string) []store.LogEntry {
	res := []store.LogEntry{}
	for _, e := range entries {
		if e.Variable == variable {
			res = append(res, e)
		}
	}
	return res
}
