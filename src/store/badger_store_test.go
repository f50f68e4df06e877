package store

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	cm "github.com/mosaicnetworks/dsm/src/common"
)

func initBadgerStore(t *testing.T) (*BadgerStore, string) {
	dir, err := ioutil.TempDir("test_data", "badger")
	if err != nil {
		t.Fatal(err)
	}

	store, err := NewBadgerStore(filepath.Join(dir, "db"))
	if err != nil {
		os.RemoveAll(dir)
		t.Fatal(err)
	}

	return store, dir
}

func TestBadgerArchive(t *testing.T) {
	store, dir := initBadgerStore(t)
	defer os.RemoveAll(dir)

	store.Subscribe("X")
	store.Subscribe("Y")

	entries := []LogEntry{
		{Variable: "X", Value: 5, Timestamp: 3, Origin: 1, Seq: 1},
		{Variable: "Y", Value: 7, Timestamp: 4, Origin: 2, Seq: 1},
		{Variable: "X", Value: 6, Timestamp: 9, Origin: 1, Seq: 2},
	}

	for _, e := range append(entries, entries[1]) {
		if err := store.Apply(e); err != nil {
			t.Fatal(err)
		}
		if err := store.Log(e); err != nil {
			t.Fatal(err)
		}
	}

	x, err := store.dbGetVariable("X")
	if err != nil {
		t.Fatal(err)
	}
	if x.Value != 6 || x.Timestamp != 9 {
		t.Fatalf("archived X should be 6@9, not %#v", x)
	}

	if _, err := store.dbGetVariable("Z"); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("archived Z should be KeyNotFound, not %v", err)
	}

	path := store.StorePath()
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadEntries(path)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(loaded, entries) {
		t.Fatalf("loaded entries should be %v, not %v", entries, loaded)
	}
}

func TestLoadEmptyArchive(t *testing.T) {
	store, dir := initBadgerStore(t)
	defer os.RemoveAll(dir)

	path := store.StorePath()
	store.Close()

	if _, err := LoadEntries(path); !cm.IsStore(err, cm.Empty) {
		t.Fatalf("LoadEntries should return Empty, not %v", err)
	}

	if _, err := LoadEntries(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("LoadEntries of a missing path should fail")
	}
}
