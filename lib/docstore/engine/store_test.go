package engine_test

import (
	"testing"

	"github.com/ValentinKolb/dAudit/lib/docstore/engine"
	storetesting "github.com/ValentinKolb/dAudit/lib/docstore/engine/testing"
)

func TestMemoryStore(t *testing.T) {
	storetesting.RunStoreTests(t, "MemoryStore", func(t testing.TB) engine.Store {
		return engine.NewMemoryStore()
	})
}

func TestPebbleStore(t *testing.T) {
	storetesting.RunStoreTests(t, "PebbleStore", func(t testing.TB) engine.Store {
		s, err := engine.OpenPebbleStore(t.TempDir(), false)
		if err != nil {
			t.Fatalf("OpenPebbleStore failed: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestPebbleStoreReopen(t *testing.T) {
	dir := t.TempDir()
	loc := engine.Location{Database: "db", Collection: "coll", PartitionKey: "1-1"}

	s, err := engine.OpenPebbleStore(dir, true)
	if err != nil {
		t.Fatalf("OpenPebbleStore failed: %v", err)
	}
	if err := s.Create(loc, engine.Document{ID: "a", ETag: "e1", TS: 7, Body: []byte(`{"id":"a"}`)}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = engine.OpenPebbleStore(dir, true)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	d, err := s.Read(loc, "a")
	if err != nil {
		t.Fatalf("Read after reopen failed: %v", err)
	}
	if d.ETag != "e1" || d.TS != 7 || string(d.Body) != `{"id":"a"}` {
		t.Errorf("Read after reopen returned %+v", d)
	}
}
