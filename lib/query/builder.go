package query

import (
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"strings"
	"time"
)

// Document fields the builder filters and orders on
const (
	FieldID        = "id"
	FieldGroupKey  = "groupKey"
	FieldProfileID = "profileId"
	FieldItemID    = "itemId"
	FieldItemType  = "itemType"
	FieldSubject   = "subject"
	FieldCreated   = "created"
	FieldAddedByID = "addedById"
)

// --------------------------------------------------------------------------
// Criteria
// --------------------------------------------------------------------------

// Criteria describes an event search. Every unset field leaves the query unrestricted in
// that dimension, the zero value matches every event of the collection.
type Criteria struct {
	From *time.Time // inclusive lower bound of the creation time
	To   *time.Time // inclusive upper bound of the creation time

	Subject   string   // case-insensitive substring of the subject
	SubjectIn []string // subject must be a case-insensitive substring of these joined by "|"

	ItemType *int
	ItemID   *int

	// one key: equality and partition scope, several keys: membership, none: no predicate
	GroupKeys []string
	// substring of the group key, used when GroupKeys is empty
	GroupKeyContains string

	AddedByID *int

	// ProfileIDs is a post-fetch allow-list, empty means every profile (see FilterProfiles)
	ProfileIDs []int

	Offset   int
	PageSize int
}

// --------------------------------------------------------------------------
// Builder
// --------------------------------------------------------------------------

// Builder composes a docstore.Query. Results are always ordered by creation time, newest first.
type Builder struct {
	q docstore.Query
}

func NewBuilder() *Builder {
	return &Builder{q: docstore.Query{OrderBy: FieldCreated, Descending: true}}
}

// Partition restricts the query to a single partition
func (b *Builder) Partition(partitionKey string) *Builder {
	b.q.PartitionKey = partitionKey
	return b
}

// Where adds a predicate
func (b *Builder) Where(p docstore.Predicate) *Builder {
	b.q.Predicates = append(b.q.Predicates, p)
	return b
}

// WhereIf adds the predicate returned by p only if cond holds, otherwise the query is unchanged.
// p is not called when cond is false, so it may dereference optional criteria.
func (b *Builder) WhereIf(cond bool, p func() docstore.Predicate) *Builder {
	if cond {
		b.Where(p())
	}
	return b
}

// Query returns the composed query, later calls on the builder do not affect it
func (b *Builder) Query() docstore.Query {
	q := b.q
	q.Predicates = append([]docstore.Predicate(nil), b.q.Predicates...)
	return q
}

// Build translates search criteria into a query
func Build(c Criteria) docstore.Query {
	subject := strings.TrimSpace(c.Subject)

	b := NewBuilder().
		WhereIf(c.From != nil, func() docstore.Predicate { return docstore.Ge(FieldCreated, *c.From) }).
		WhereIf(c.To != nil, func() docstore.Predicate { return docstore.Le(FieldCreated, *c.To) }).
		WhereIf(subject != "", func() docstore.Predicate { return docstore.ContainsFold(FieldSubject, subject) }).
		WhereIf(len(c.SubjectIn) > 0, func() docstore.Predicate {
			return docstore.ContainedInFold(FieldSubject, strings.Join(c.SubjectIn, "|"))
		}).
		WhereIf(c.ItemType != nil, func() docstore.Predicate { return docstore.Eq(FieldItemType, *c.ItemType) }).
		WhereIf(c.ItemID != nil, func() docstore.Predicate { return docstore.Eq(FieldItemID, *c.ItemID) }).
		WhereIf(c.AddedByID != nil, func() docstore.Predicate { return docstore.Eq(FieldAddedByID, *c.AddedByID) })

	switch len(c.GroupKeys) {
	case 0:
		b.WhereIf(c.GroupKeyContains != "", func() docstore.Predicate {
			return docstore.ContainsFold(FieldGroupKey, c.GroupKeyContains)
		})
	case 1:
		b.Partition(c.GroupKeys[0]).Where(docstore.Eq(FieldGroupKey, c.GroupKeys[0]))
	default:
		b.Where(docstore.In(FieldGroupKey, c.GroupKeys...))
	}

	return b.Query()
}

// FilterProfiles keeps the items whose profile is in ids. An empty ids list is no restriction
// and returns items unchanged.
func FilterProfiles[T any](items []T, ids []int, profileOf func(T) int) []T {
	if len(ids) == 0 {
		return items
	}
	allowed := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if _, ok := allowed[profileOf(item)]; ok {
			out = append(out, item)
		}
	}
	return out
}

// Window returns the items in [offset, offset+size), size <= 0 means everything after offset
func Window[T any](items []T, offset, size int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if size > 0 && size < end-offset {
		end = offset + size
	}
	return items[offset:end]
}
