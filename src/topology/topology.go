package topology

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/mosaicnetworks/dsm/src/peers"
)

const (
	// TopologyFile is the name of the file, in the data directory, that
	// describes the run.
	TopologyFile = "topology.json"
)

// Op is a SET operation queued in the topology for a peer to submit at start.
type Op struct {
	Variable string `json:"var"`
	Value    int64  `json:"value"`
}

// Topology is the static description of a run. Operations are keyed by the
// decimal string of the issuing peer's ID, as JSON object keys must be
// strings.
type Topology struct {
	Peers      []*peers.Peer       `json:"peers"`
	Variables  map[string][]uint32 `json:"variables"`
	Operations map[string][]Op     `json:"operations"`
}

// Validate checks the topology for inconsistencies. It returns the first
// problem found as a *ConfigError.
func (t *Topology) Validate() error {
	if len(t.Peers) == 0 {
		return NewConfigError("peers", "no peers")
	}

	ids := make(map[uint32]bool, len(t.Peers))
	for _, p := range t.Peers {
		if ids[p.ID] {
			return NewConfigError("peers", "duplicate peer id %d", p.ID)
		}
		ids[p.ID] = true
	}

	for _, v := range t.sortedVariables() {
		if v == "" {
			return NewConfigError("variables", "empty variable name")
		}
		for _, id := range t.Variables[v] {
			if !ids[id] {
				return NewConfigError("variables", "variable %q lists unknown subscriber %d", v, id)
			}
		}
	}

	for key, ops := range t.Operations {
		id, err := parseID(key)
		if err != nil {
			return err
		}
		if !ids[id] {
			return NewConfigError("operations", "operations queued for unknown peer %d", id)
		}
		for _, op := range ops {
			subs, ok := t.Variables[op.Variable]
			if !ok {
				return NewConfigError("operations", "peer %d sets unknown variable %q", id, op.Variable)
			}
			if !contains(subs, id) {
				return NewConfigError("operations", "peer %d sets variable %q it is not subscribed to", id, op.Variable)
			}
		}
	}

	return nil
}

// PeerSet returns the PeerSet of the run.
func (t *Topology) PeerSet() *peers.PeerSet {
	return peers.NewPeerSet(t.Peers)
}

// Directory returns the subscription view of peer self.
func (t *Topology) Directory(self uint32) *Directory {
	return NewDirectory(self, t.Variables)
}

// OperationsOf returns the ordered queue of SET operations peer self submits at
// start.
func (t *Topology) OperationsOf(self uint32) []Op {
	ops := t.Operations[strconv.FormatUint(uint64(self), 10)]
	res := make([]Op, len(ops))
	copy(res, ops)
	return res
}

func (t *Topology) sortedVariables() []string {
	res := make([]string, 0, len(t.Variables))
	for v := range t.Variables {
		res = append(res, v)
	}
	sort.Strings(res)
	return res
}

func parseID(key string) (uint32, error) {
	id, err := strconv.ParseUint(key, 10, 32)
	if err != nil {
		return 0, NewConfigError("operations", "invalid peer id %q", key)
	}
	return uint32(id), nil
}

func contains(ids []uint32, id uint32) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}

// Decode reads a Topology from its JSON representation and validates it.
func Decode(data []byte) (*Topology, error) {
	var topo Topology

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&topo); err != nil {
		return nil, NewConfigError("file", "%v", err)
	}

	if err := topo.Validate(); err != nil {
		return nil, err
	}

	return &topo, nil
}

// JSONTopology is used to load and store a Topology in a JSON file.
type JSONTopology struct {
	l    sync.Mutex
	path string
}

// NewJSONTopology creates a JSONTopology for the topology file in base
// directory.
func NewJSONTopology(base string) *JSONTopology {
	path := filepath.Join(base, TopologyFile)
	store := &JSONTopology{
		path: path,
	}
	return store
}

// Topology reads and validates the topology file.
func (j *JSONTopology) Topology() (*Topology, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	if len(buf) == 0 {
		return nil, NewConfigError("file", "%s is empty", j.path)
	}

	return Decode(buf)
}

// Write persists a Topology to the JSON file.
func (j *JSONTopology) Write(topo *Topology) error {
	j.l.Lock()
	defer j.l.Unlock()

	if err := topo.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "	")
	if err := enc.Encode(topo); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(j.path), err)
	}

	return ioutil.WriteFile(j.path, buf.Bytes(), 0755)
}
