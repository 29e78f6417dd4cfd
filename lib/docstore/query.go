package docstore

import (
	"cmp"
	"github.com/spf13/cast"
	"sort"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Predicates
// --------------------------------------------------------------------------

// PredicateOp is the comparison a Predicate applies to a document field
type PredicateOp string

const (
	PredEq              PredicateOp = "eq"       // field == value
	PredGe              PredicateOp = "ge"       // field >= value
	PredLe              PredicateOp = "le"       // field <= value
	PredContainsFold    PredicateOp = "contains" // lower(field) contains lower(value)
	PredContainedInFold PredicateOp = "within"   // lower(value) contains lower(field)
	PredIn              PredicateOp = "in"       // field == any of values
)

// Predicate is a single filter condition on a top-level document field.
//
// Values are compared type-aware: RFC 3339 strings and time.Time compare as instants, numbers
// compare numerically regardless of their Go type, everything else compares as strings.
// A document that does not have the field never matches.
type Predicate struct {
	Field  string      `json:"field"`
	Op     PredicateOp `json:"op"`
	Value  any         `json:"value,omitempty"`
	Values []any       `json:"values,omitempty"`
}

func Eq(field string, value any) Predicate { return Predicate{Field: field, Op: PredEq, Value: value} }
func Ge(field string, value any) Predicate { return Predicate{Field: field, Op: PredGe, Value: value} }
func Le(field string, value any) Predicate { return Predicate{Field: field, Op: PredLe, Value: value} }

// ContainsFold matches documents whose field contains substr, ignoring case
func ContainsFold(field, substr string) Predicate {
	return Predicate{Field: field, Op: PredContainsFold, Value: substr}
}

// ContainedInFold matches documents whose field is a substring of s, ignoring case
func ContainedInFold(field, s string) Predicate {
	return Predicate{Field: field, Op: PredContainedInFold, Value: s}
}

// In matches documents whose field equals one of values
func In[T any](field string, values ...T) Predicate {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Predicate{Field: field, Op: PredIn, Values: vs}
}

// Matches evaluates the predicate against a decoded json document
func (p Predicate) Matches(doc map[string]any) bool {
	raw, ok := doc[p.Field]
	if !ok || raw == nil {
		return false
	}
	field := normalize(raw)

	switch p.Op {
	case PredEq:
		c, ok := compare(field, normalize(p.Value))
		return ok && c == 0
	case PredGe:
		c, ok := compare(field, normalize(p.Value))
		return ok && c >= 0
	case PredLe:
		c, ok := compare(field, normalize(p.Value))
		return ok && c <= 0
	case PredContainsFold:
		return strings.Contains(strings.ToLower(cast.ToString(raw)), strings.ToLower(cast.ToString(p.Value)))
	case PredContainedInFold:
		return strings.Contains(strings.ToLower(cast.ToString(p.Value)), strings.ToLower(cast.ToString(raw)))
	case PredIn:
		for _, v := range p.Values {
			if c, ok := compare(field, normalize(v)); ok && c == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// normalize reduces a value to time.Time, float64, bool or string
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t.UTC()
		}
		return x
	case bool:
		return x
	}
	if f, err := cast.ToFloat64E(v); err == nil {
		return f
	}
	return cast.ToString(v)
}

// compare orders two normalized values. ok is false if the types are not comparable.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		return cmp.Compare(x, y), true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok || x != y {
			return 1, ok
		}
		return 0, true
	}
	return 0, false
}

// --------------------------------------------------------------------------
// Query
// --------------------------------------------------------------------------

// Query is a conjunction of predicates with an ordering, optionally scoped to one partition
type Query struct {
	PartitionKey string      `json:"partitionKey,omitempty"`
	Predicates   []Predicate `json:"predicates,omitempty"`
	OrderBy      string      `json:"orderBy,omitempty"`
	Descending   bool        `json:"descending,omitempty"`
}

// Matches reports whether doc satisfies every predicate
func (q *Query) Matches(doc map[string]any) bool {
	for _, p := range q.Predicates {
		if !p.Matches(doc) {
			return false
		}
	}
	return true
}

// Sort orders docs by OrderBy, see Less
func (q *Query) Sort(docs []map[string]any) {
	if q.OrderBy == "" {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool { return q.Less(docs[i], docs[j]) })
}

// Less reports whether a is ordered before b. Documents missing the OrderBy field go last,
// ties are broken by id in the same direction.
func (q *Query) Less(a, b map[string]any) bool {
	if q.OrderBy == "" {
		return false
	}
	av, aok := a[q.OrderBy]
	bv, bok := b[q.OrderBy]
	if !aok || !bok {
		return aok && !bok
	}
	c, ok := compare(normalize(av), normalize(bv))
	if !ok {
		return false
	}
	if c == 0 {
		c = strings.Compare(cast.ToString(a["id"]), cast.ToString(b["id"]))
	}
	if q.Descending {
		return c > 0
	}
	return c < 0
}
