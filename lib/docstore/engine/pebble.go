package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/cockroachdb/pebble"
	"sync"
	"sync/atomic"
)

// Key layout: 'd' 0x00 database 0x00 collection 0x00 partitionKey 0x00 id
// Names must not contain 0x00, which is checked on every access.
const keySep = 0x00

// storedDocument is the value layout of a pebble entry
type storedDocument struct {
	ETag string          `json:"etag"`
	TS   int64           `json:"ts"`
	Body json.RawMessage `json:"body"`
}

// pebbleStore persists documents in a pebble LSM tree.
// Writes are serialized by a mutex so Create and Replace can check and write atomically.
type pebbleStore struct {
	db      *pebble.DB
	writeMu sync.Mutex
	sync    bool
	closed  atomic.Bool
}

// OpenPebbleStore opens (or creates) a persistent store in dir.
// With syncWrites every write is fsynced before it is acknowledged.
func OpenPebbleStore(dir string, syncWrites bool) (Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store in %s: %w", dir, err)
	}
	log.Infof("Opened pebble store in %s (sync writes: %t)", dir, syncWrites)
	return &pebbleStore{db: db, sync: syncWrites}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see engine.Store)
// --------------------------------------------------------------------------

func (s *pebbleStore) Create(loc Location, doc Document) error {
	key, err := documentKey(loc, doc.ID)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.get(key); err == nil {
		return ErrExists
	} else if !errors.Is(err, ErrNotExists) {
		return err
	}
	return s.put(key, doc)
}

func (s *pebbleStore) Upsert(loc Location, doc Document) error {
	key, err := documentKey(loc, doc.ID)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.put(key, doc)
}

func (s *pebbleStore) Replace(loc Location, doc Document, ifMatch string) error {
	key, err := documentKey(loc, doc.ID)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old, err := s.get(key)
	if err != nil {
		return err
	}
	if ifMatch != "" && old.ETag != ifMatch {
		return ErrETagMismatch
	}
	return s.put(key, doc)
}

func (s *pebbleStore) Read(loc Location, id string) (Document, error) {
	key, err := documentKey(loc, id)
	if err != nil {
		return Document{}, err
	}
	return s.get(key)
}

func (s *pebbleStore) Delete(loc Location, id string) error {
	key, err := documentKey(loc, id)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.get(key); err != nil {
		return err
	}
	return s.db.Delete(key, s.writeOptions())
}

func (s *pebbleStore) Scan(loc Location, fn ScanFunc) error {
	if s.closed.Load() {
		return ErrStoreIsClosed
	}

	var prefix []byte
	var err error
	if loc.PartitionKey != "" {
		prefix, err = encodeKey('d', loc.Database, loc.Collection, loc.PartitionKey, "")
	} else {
		prefix, err = encodeKey('d', loc.Database, loc.Collection, "")
	}
	if err != nil {
		return err
	}
	hi := append(append([]byte{}, prefix...), 0xFF)

	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: hi})
	if err != nil {
		return err
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		// the remainder after the prefix is "id" or "partitionKey 0x00 id"
		rest := it.Key()[len(prefix):]
		partitionKey := loc.PartitionKey
		id := string(rest)
		if loc.PartitionKey == "" {
			i := bytes.IndexByte(rest, keySep)
			if i < 0 {
				continue
			}
			partitionKey, id = string(rest[:i]), string(rest[i+1:])
		}

		doc, err := decodeDocument(id, it.Value())
		if err != nil {
			return err
		}
		if !fn(partitionKey, doc) {
			break
		}
	}
	return it.Error()
}

func (s *pebbleStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *pebbleStore) writeOptions() *pebble.WriteOptions {
	if s.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (s *pebbleStore) get(key []byte) (Document, error) {
	if s.closed.Load() {
		return Document{}, ErrStoreIsClosed
	}
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return Document{}, ErrNotExists
	}
	if err != nil {
		return Document{}, err
	}
	defer closer.Close()

	// the id is the last key segment
	id := key[bytes.LastIndexByte(key, keySep)+1:]
	return decodeDocument(string(id), value)
}

func (s *pebbleStore) put(key []byte, doc Document) error {
	if s.closed.Load() {
		return ErrStoreIsClosed
	}
	value, err := json.Marshal(storedDocument{ETag: doc.ETag, TS: doc.TS, Body: doc.Body})
	if err != nil {
		return err
	}
	return s.db.Set(key, value, s.writeOptions())
}

func documentKey(loc Location, id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("empty document id")
	}
	return encodeKey('d', loc.Database, loc.Collection, loc.PartitionKey, id)
}

// encodeKey joins the segments with keySep after the tag byte.
// A trailing empty segment yields a prefix ending in keySep.
func encodeKey(tag byte, segments ...string) ([]byte, error) {
	key := []byte{tag}
	for _, seg := range segments {
		if bytes.IndexByte([]byte(seg), keySep) >= 0 {
			return nil, fmt.Errorf("key segment %q contains a NUL byte", seg)
		}
		key = append(key, keySep)
		key = append(key, seg...)
	}
	return key, nil
}

func decodeDocument(id string, value []byte) (Document, error) {
	var stored storedDocument
	if err := json.Unmarshal(value, &stored); err != nil {
		return Document{}, fmt.Errorf("corrupt document %s: %w", id, err)
	}
	return Document{
		ID:   id,
		ETag: stored.ETag,
		TS:   stored.TS,
		Body: []byte(stored.Body),
	}, nil
}
