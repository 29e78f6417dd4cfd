package engine

import (
	"errors"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("engine")

var (
	ErrExists        = errors.New("document already exists")
	ErrNotExists     = errors.New("document does not exist")
	ErrETagMismatch  = errors.New("etag does not match")
	ErrStoreIsClosed = errors.New("store is closed")
)

// Document is a stored json document with its concurrency token
type Document struct {
	ID   string
	ETag string
	TS   int64 // unix seconds of the last write
	Body []byte
}

// Location addresses one partition of a collection
type Location struct {
	Database     string
	Collection   string
	PartitionKey string
}

// ScanFunc is called for every document of a scan, returning false stops the scan
type ScanFunc func(partitionKey string, doc Document) bool

// Store is the persistence layer below the Executor.
// All methods must be safe for concurrent use, Replace must compare and swap atomically.
type Store interface {
	// Create stores doc, fails with ErrExists if the id is taken in the partition
	Create(loc Location, doc Document) error
	// Upsert stores doc, overwriting an existing one
	Upsert(loc Location, doc Document) error
	// Replace overwrites an existing document. If ifMatch is not empty the stored ETag must
	// equal it, otherwise ErrETagMismatch is returned. Missing documents fail with ErrNotExists.
	Replace(loc Location, doc Document, ifMatch string) error
	// Read returns the document or ErrNotExists
	Read(loc Location, id string) (Document, error)
	// Delete removes the document or fails with ErrNotExists
	Delete(loc Location, id string) error
	// Scan visits the documents of a partition, or of every partition of the collection if
	// loc.PartitionKey is empty. The visiting order is unspecified.
	Scan(loc Location, fn ScanFunc) error
	// Close releases all resources
	Close() error
}
