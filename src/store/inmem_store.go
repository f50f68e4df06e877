package store

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map"

	cm "github.com/mosaicnetworks/dsm/src/common"
)

// InmemStore implements the Store interface in memory. Values live in a
// concurrent map so that they can be read by the HTTP service while the peer
// loop writes them.
type InmemStore struct {
	values cmap.ConcurrentMap // variable => Variable

	l         sync.RWMutex
	log       []LogEntry
	applied   map[string]bool
	committed map[string]bool
}

// NewInmemStore creates an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		values:    cmap.New(),
		log:       []LogEntry{},
		applied:   make(map[string]bool),
		committed: make(map[string]bool),
	}
}

// Subscribe implements the Store interface.
func (s *InmemStore) Subscribe(variable string) {
	s.values.SetIfAbsent(variable, Variable{Value: InitialValue})
}

// Apply implements the Store interface.
func (s *InmemStore) Apply(entry LogEntry) error {
	_, err := s.apply(entry)
	return err
}

func (s *InmemStore) apply(entry LogEntry) (bool, error) {
	if !s.values.Has(entry.Variable) {
		return false, cm.NewStoreErr("Variables", cm.UnknownVariable, entry.Variable)
	}

	s.l.Lock()
	defer s.l.Unlock()

	if s.applied[entry.Key()] {
		return false, nil
	}
	s.applied[entry.Key()] = true

	s.values.Set(entry.Variable, Variable{
		Value:     entry.Value,
		Timestamp: entry.Timestamp,
		Written:   true,
	})

	return true, nil
}

// Log implements the Store interface.
func (s *InmemStore) Log(entry LogEntry) error {
	_, err := s.append(entry)
	return err
}

// append adds the entry to the log and returns its index, or -1 if the
// operation was already logged.
func (s *InmemStore) append(entry LogEntry) (int, error) {
	if !s.values.Has(entry.Variable) {
		return -1, cm.NewStoreErr("Log", cm.UnknownVariable, entry.Variable)
	}

	s.l.Lock()
	defer s.l.Unlock()

	if s.committed[entry.Key()] {
		return -1, nil
	}
	s.committed[entry.Key()] = true
	s.log = append(s.log, entry)

	return len(s.log) - 1, nil
}

// Committed implements the Store interface.
func (s *InmemStore) Committed(origin uint32, seq uint64) bool {
	s.l.RLock()
	defer s.l.RUnlock()
	return s.committed[OpKey(origin, seq)]
}

// Get returns the replica of a single variable.
func (s *InmemStore) Get(variable string) (Variable, error) {
	v, ok := s.values.Get(variable)
	if !ok {
		return Variable{}, cm.NewStoreErr("Variables", cm.KeyNotFound, variable)
	}
	return v.(Variable), nil
}

// Snapshot implements the Store interface.
func (s *InmemStore) Snapshot() map[string]Variable {
	res := make(map[string]Variable, s.values.Count())
	for k, v := range s.values.Items() {
		res[k] = v.(Variable)
	}
	return res
}

// Entries implements the Store interface.
func (s *InmemStore) Entries() []LogEntry {
	s.l.RLock()
	defer s.l.RUnlock()
	res := make([]LogEntry, len(s.log))
	copy(res, s.log)
	return res
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
