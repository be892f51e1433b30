package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("a/2"), []byte("two")); err != nil {
		t.Fatalf("put: %v", err)
	}
	batch := db.NewBatch()
	batch.Put([]byte("a/1"), []byte("one"))
	batch.Put([]byte("b/1"), []byte("other"))
	if ok, _ := db.Has([]byte("a/1")); ok {
		t.Fatalf("batch write visible before Write")
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("batch write: %v", err)
	}
	got, err := db.Get([]byte("a/1"))
	if err != nil || string(got) != "one" {
		t.Fatalf("get a/1 = %q, %v", got, err)
	}

	var keys []string
	if err := db.Iterate([]byte("a/"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a/1" || keys[1] != "a/2" {
		t.Fatalf("unexpected prefix keys %v", keys)
	}

	var first []string
	_ = db.Iterate(nil, func(key, value []byte) bool {
		first = append(first, string(key))
		return false
	})
	if len(first) != 1 {
		t.Fatalf("iteration did not stop: %v", first)
	}
}

func TestMemDB(t *testing.T) {
	exerciseDatabase(t, NewMemDB())
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}
