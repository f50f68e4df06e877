package store

import (
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger"

	cm "github.com/mosaicnetworks/dsm/src/common"
)

const (
	entryPrefix    = "entry"
	variablePrefix = "var"
)

// BadgerStore is an InmemStore that also archives the log and the latest
// values in a badger database.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
}

// NewBadgerStore creates a BadgerStore with a new database at path. An
// existing database at the same location is removed first, since protocol
// state is never recovered.
func NewBadgerStore(path string) (*BadgerStore, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, err
	}

	handle, err := openDB(path)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
	}, nil
}

func openDB(path string) (*badger.DB, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil
	return badger.Open(opts)
}

//==============================================================================
//Keys

func entryKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", entryPrefix, index))
}

func variableKey(variable string) []byte {
	return []byte(fmt.Sprintf("%s_%s", variablePrefix, variable))
}

//==============================================================================
//Implement the Store interface

// Subscribe implements the Store interface.
func (s *BadgerStore) Subscribe(variable string) {
	s.inmemStore.Subscribe(variable)
}

// Apply implements the Store interface.
func (s *BadgerStore) Apply(entry LogEntry) error {
	ok, err := s.inmemStore.apply(entry)
	if err != nil || !ok {
		return err
	}
	v, err := s.inmemStore.Get(entry.Variable)
	if err != nil {
		return err
	}
	return s.dbSetVariable(entry.Variable, v)
}

// Log implements the Store interface.
func (s *BadgerStore) Log(entry LogEntry) error {
	index, err := s.inmemStore.append(entry)
	if err != nil || index < 0 {
		return err
	}
	return s.dbSetEntry(index, entry)
}

// Committed implements the Store interface.
func (s *BadgerStore) Committed(origin uint32, seq uint64) bool {
	return s.inmemStore.Committed(origin, seq)
}

// Snapshot implements the Store interface.
func (s *BadgerStore) Snapshot() map[string]Variable {
	return s.inmemStore.Snapshot()
}

// Entries implements the Store interface.
func (s *BadgerStore) Entries() []LogEntry {
	return s.inmemStore.Entries()
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// StorePath returns the location of the database.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerStore) dbSetEntry(index int, entry LogEntry) error {
	val, err := entry.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(index), val)
	})
}

func (s *BadgerStore) dbSetVariable(name string, v Variable) error {
	entry := LogEntry{
		Variable:  name,
		Value:     v.Value,
		Timestamp: v.Timestamp,
	}
	val, err := entry.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(variableKey(name), val)
	})
}

func (s *BadgerStore) dbGetVariable(name string) (Variable, error) {
	var entry LogEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(variableKey(name))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return entry.Unmarshal(val)
	})
	if err != nil {
		return Variable{}, mapError(err, "Variables", name)
	}
	return Variable{
		Value:     entry.Value,
		Timestamp: entry.Timestamp,
		Written:   true,
	}, nil
}

func dbEntries(db *badger.DB) ([]LogEntry, error) {
	res := []LogEntry{}
	prefix := []byte(entryPrefix + "_")

	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var entry LogEntry
			if err := entry.Unmarshal(val); err != nil {
				return err
			}
			res = append(res, entry)
		}
		return nil
	})

	return res, err
}

// LoadEntries reads the archived log of a BadgerStore that was closed.
func LoadEntries(path string) ([]LogEntry, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	handle, err := openDB(path)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	entries, err := dbEntries(handle)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, cm.NewStoreErr("Log", cm.Empty, path)
	}
	return entries, nil
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound || strings.Contains(err.Error(), badger.ErrKeyNotFound.Error())
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
