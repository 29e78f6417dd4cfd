package testing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dAudit/lib/docstore/engine"
)

// StoreFactory creates a new, empty Store. It may use t for cleanup and temp directories.
type StoreFactory func(t testing.TB) engine.Store

// RunStoreTests runs the shared test suite against a Store implementation
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Create&Read", func(t *testing.T) {
			testCreateRead(t, factory(t))
		})

		t.Run("Upsert", func(t *testing.T) {
			testUpsert(t, factory(t))
		})

		t.Run("Replace", func(t *testing.T) {
			testReplace(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("PartitionIsolation", func(t *testing.T) {
			testPartitionIsolation(t, factory(t))
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, factory(t))
		})

		t.Run("ConcurrentReplace", func(t *testing.T) {
			testConcurrentReplace(t, factory(t))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

var loc = engine.Location{Database: "db", Collection: "coll", PartitionKey: "1-1"}

func doc(id, etag, body string) engine.Document {
	return engine.Document{ID: id, ETag: etag, TS: 1, Body: []byte(body)}
}

func mustRead(t *testing.T, s engine.Store, l engine.Location, id string) engine.Document {
	t.Helper()
	d, err := s.Read(l, id)
	if err != nil {
		t.Fatalf("Read(%s) failed: %v", id, err)
	}
	return d
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testCreateRead(t *testing.T, s engine.Store) {
	defer s.Close()

	if err := s.Create(loc, doc("a", "e1", `{"id":"a"}`)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(loc, doc("a", "e2", `{"id":"a","v":2}`)); !errors.Is(err, engine.ErrExists) {
		t.Fatalf("second Create = %v, want ErrExists", err)
	}

	d := mustRead(t, s, loc, "a")
	if d.ID != "a" || d.ETag != "e1" || string(d.Body) != `{"id":"a"}` || d.TS != 1 {
		t.Errorf("Read returned %+v", d)
	}

	if _, err := s.Read(loc, "missing"); !errors.Is(err, engine.ErrNotExists) {
		t.Errorf("Read(missing) = %v, want ErrNotExists", err)
	}
}

func testUpsert(t *testing.T, s engine.Store) {
	defer s.Close()

	if err := s.Upsert(loc, doc("a", "e1", `{"id":"a"}`)); err != nil {
		t.Fatalf("Upsert (insert) failed: %v", err)
	}
	if err := s.Upsert(loc, doc("a", "e2", `{"id":"a","v":2}`)); err != nil {
		t.Fatalf("Upsert (overwrite) failed: %v", err)
	}
	if d := mustRead(t, s, loc, "a"); d.ETag != "e2" {
		t.Errorf("ETag = %s, want e2", d.ETag)
	}
}

func testReplace(t *testing.T, s engine.Store) {
	defer s.Close()

	if err := s.Replace(loc, doc("a", "e1", `{"id":"a"}`), ""); !errors.Is(err, engine.ErrNotExists) {
		t.Fatalf("Replace of a missing document = %v, want ErrNotExists", err)
	}
	if _, err := s.Read(loc, "a"); !errors.Is(err, engine.ErrNotExists) {
		t.Fatalf("failed Replace must not create the document, Read = %v", err)
	}

	if err := s.Create(loc, doc("a", "e1", `{"id":"a"}`)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Replace(loc, doc("a", "e2", `{"id":"a","v":2}`), "stale"); !errors.Is(err, engine.ErrETagMismatch) {
		t.Fatalf("Replace with stale etag = %v, want ErrETagMismatch", err)
	}
	if err := s.Replace(loc, doc("a", "e2", `{"id":"a","v":2}`), "e1"); err != nil {
		t.Fatalf("Replace with current etag failed: %v", err)
	}
	if err := s.Replace(loc, doc("a", "e3", `{"id":"a","v":3}`), ""); err != nil {
		t.Fatalf("unconditional Replace failed: %v", err)
	}
	if d := mustRead(t, s, loc, "a"); d.ETag != "e3" {
		t.Errorf("ETag = %s, want e3", d.ETag)
	}
}

func testDelete(t *testing.T, s engine.Store) {
	defer s.Close()

	if err := s.Delete(loc, "a"); !errors.Is(err, engine.ErrNotExists) {
		t.Fatalf("Delete of a missing document = %v, want ErrNotExists", err)
	}
	if err := s.Create(loc, doc("a", "e1", `{"id":"a"}`)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Delete(loc, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Read(loc, "a"); !errors.Is(err, engine.ErrNotExists) {
		t.Errorf("Read after Delete = %v, want ErrNotExists", err)
	}
}

func testPartitionIsolation(t *testing.T, s engine.Store) {
	defer s.Close()

	other := loc
	other.PartitionKey = "1-12"
	otherColl := loc
	otherColl.Collection = "coll2"

	if err := s.Create(loc, doc("a", "e1", `{"id":"a"}`)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// the same id in another partition or collection is a different document
	if err := s.Create(other, doc("a", "e2", `{"id":"a"}`)); err != nil {
		t.Fatalf("Create in other partition failed: %v", err)
	}
	if err := s.Create(otherColl, doc("a", "e3", `{"id":"a"}`)); err != nil {
		t.Fatalf("Create in other collection failed: %v", err)
	}

	if d := mustRead(t, s, loc, "a"); d.ETag != "e1" {
		t.Errorf("partition %s has etag %s", loc.PartitionKey, d.ETag)
	}
	if d := mustRead(t, s, other, "a"); d.ETag != "e2" {
		t.Errorf("partition %s has etag %s", other.PartitionKey, d.ETag)
	}
}

func testScan(t *testing.T, s engine.Store) {
	defer s.Close()

	p2 := loc
	p2.PartitionKey = "1-12"
	otherColl := loc
	otherColl.Collection = "coll2"

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("d%d", i)
		if err := s.Create(loc, doc(id, "e", fmt.Sprintf(`{"id":%q}`, id))); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("x%d", i)
		if err := s.Create(p2, doc(id, "e", fmt.Sprintf(`{"id":%q}`, id))); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := s.Create(otherColl, doc("y", "e", `{"id":"y"}`)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	collect := func(l engine.Location) map[string]string {
		found := map[string]string{}
		if err := s.Scan(l, func(pk string, d engine.Document) bool {
			found[d.ID] = pk
			return true
		}); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		return found
	}

	if got := collect(loc); len(got) != 5 {
		t.Errorf("partition scan found %d documents, want 5: %v", len(got), got)
	}

	all := loc
	all.PartitionKey = ""
	got := collect(all)
	if len(got) != 8 {
		t.Errorf("cross partition scan found %d documents, want 8: %v", len(got), got)
	}
	if got["x1"] != "1-12" || got["d3"] != "1-1" {
		t.Errorf("scan reported wrong partition keys: %v", got)
	}
	if _, leaked := got["y"]; leaked {
		t.Error("cross partition scan leaked a document of another collection")
	}

	// early stop
	visited := 0
	if err := s.Scan(all, func(string, engine.Document) bool {
		visited++
		return visited < 2
	}); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if visited != 2 {
		t.Errorf("scan visited %d documents after stop, want 2", visited)
	}
}

// testConcurrentReplace checks that exactly one of many writers holding the same etag wins
func testConcurrentReplace(t *testing.T, s engine.Store) {
	defer s.Close()

	if err := s.Create(loc, doc("a", "e0", `{"id":"a"}`)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const writers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	winners := make([]string, 0, 1)
	var mu sync.Mutex

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			etag := fmt.Sprintf("w%d", i)
			err := s.Replace(loc, doc("a", etag, `{"id":"a"}`), "e0")
			if err == nil {
				wins.Add(1)
				mu.Lock()
				winners = append(winners, etag)
				mu.Unlock()
			} else if !errors.Is(err, engine.ErrETagMismatch) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("%d writers won, want exactly 1", wins.Load())
	}
	sort.Strings(winners)
	if d := mustRead(t, s, loc, "a"); d.ETag != winners[0] {
		t.Errorf("stored etag %s, winner %s", d.ETag, winners[0])
	}
}

func testClosed(t *testing.T, s engine.Store) {
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Upsert(loc, doc("a", "e", `{"id":"a"}`)); !errors.Is(err, engine.ErrStoreIsClosed) {
		t.Errorf("Upsert after Close = %v, want ErrStoreIsClosed", err)
	}
	if _, err := s.Read(loc, "a"); !errors.Is(err, engine.ErrStoreIsClosed) {
		t.Errorf("Read after Close = %v, want ErrStoreIsClosed", err)
	}
}
