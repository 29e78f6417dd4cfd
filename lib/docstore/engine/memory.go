package engine

import (
	"github.com/puzpuzpuz/xsync/v3"
	"sync/atomic"
)

// partitionID is the composite key of one partition
type partitionID struct {
	database     string
	collection   string
	partitionKey string
}

// memoryStore keeps every partition in its own concurrent map.
// Single-document operations are atomic through MapOf.Compute.
type memoryStore struct {
	partitions *xsync.MapOf[partitionID, *xsync.MapOf[string, Document]]
	closed     atomic.Bool
}

// NewMemoryStore creates an empty, non persistent store
func NewMemoryStore() Store {
	return &memoryStore{
		partitions: xsync.NewMapOf[partitionID, *xsync.MapOf[string, Document]](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see engine.Store)
// --------------------------------------------------------------------------

func (s *memoryStore) Create(loc Location, doc Document) error {
	if s.closed.Load() {
		return ErrStoreIsClosed
	}
	if _, loaded := s.partition(loc, true).LoadOrStore(doc.ID, doc); loaded {
		return ErrExists
	}
	return nil
}

func (s *memoryStore) Upsert(loc Location, doc Document) error {
	if s.closed.Load() {
		return ErrStoreIsClosed
	}
	s.partition(loc, true).Store(doc.ID, doc)
	return nil
}

func (s *memoryStore) Replace(loc Location, doc Document, ifMatch string) error {
	if s.closed.Load() {
		return ErrStoreIsClosed
	}
	p := s.partition(loc, false)
	if p == nil {
		return ErrNotExists
	}

	var err error
	p.Compute(doc.ID, func(old Document, loaded bool) (Document, bool) {
		switch {
		case !loaded:
			err = ErrNotExists
			return old, true // nothing stored, keep it that way
		case ifMatch != "" && old.ETag != ifMatch:
			err = ErrETagMismatch
			return old, false
		}
		return doc, false
	})
	return err
}

func (s *memoryStore) Read(loc Location, id string) (Document, error) {
	if s.closed.Load() {
		return Document{}, ErrStoreIsClosed
	}
	p := s.partition(loc, false)
	if p == nil {
		return Document{}, ErrNotExists
	}
	doc, ok := p.Load(id)
	if !ok {
		return Document{}, ErrNotExists
	}
	return doc, nil
}

func (s *memoryStore) Delete(loc Location, id string) error {
	if s.closed.Load() {
		return ErrStoreIsClosed
	}
	p := s.partition(loc, false)
	if p == nil {
		return ErrNotExists
	}
	if _, loaded := p.LoadAndDelete(id); !loaded {
		return ErrNotExists
	}
	return nil
}

func (s *memoryStore) Scan(loc Location, fn ScanFunc) error {
	if s.closed.Load() {
		return ErrStoreIsClosed
	}

	// single partition
	if loc.PartitionKey != "" {
		p := s.partition(loc, false)
		if p == nil {
			return nil
		}
		p.Range(func(_ string, doc Document) bool {
			return fn(loc.PartitionKey, doc)
		})
		return nil
	}

	// cross partition
	s.partitions.Range(func(id partitionID, p *xsync.MapOf[string, Document]) bool {
		if id.database != loc.Database || id.collection != loc.Collection {
			return true
		}
		cont := true
		p.Range(func(_ string, doc Document) bool {
			cont = fn(id.partitionKey, doc)
			return cont
		})
		return cont
	})
	return nil
}

func (s *memoryStore) Close() error {
	s.closed.Store(true)
	s.partitions.Clear()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// partition returns the map of a partition, creating it if create is set (nil otherwise)
func (s *memoryStore) partition(loc Location, create bool) *xsync.MapOf[string, Document] {
	id := partitionID{loc.Database, loc.Collection, loc.PartitionKey}
	if !create {
		p, _ := s.partitions.Load(id)
		return p
	}
	p, _ := s.partitions.LoadOrCompute(id, func() *xsync.MapOf[string, Document] {
		return xsync.NewMapOf[string, Document]()
	})
	return p
}
