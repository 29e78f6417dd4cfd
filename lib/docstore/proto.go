package docstore

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// --------------------------------------------------------------------------
// Operation Type Definition
// --------------------------------------------------------------------------

// Op is the kind of operation a Request performs
type Op uint8

const (
	OpUnknown Op = iota
	OpCreate     // insert a new document, 409 if the id exists
	OpUpsert     // insert or overwrite a document
	OpReplace    // overwrite an existing document, honours IfMatch
	OpRead       // point read by partition key and id
	OpDelete     // delete by partition key and id
	OpQuery      // filtered, ordered and paged read
)

// String returns the string representation of an Op
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpsert:
		return "upsert"
	case OpReplace:
		return "replace"
	case OpRead:
		return "read"
	case OpDelete:
		return "delete"
	case OpQuery:
		return "query"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes an Op as its name
func (o Op) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// UnmarshalJSON decodes an Op from its name
func (o *Op) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	op, err := ParseOp(s)
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// ParseOp converts the name of an operation back to an Op
func ParseOp(s string) (Op, error) {
	switch s {
	case "create":
		return OpCreate, nil
	case "upsert":
		return OpUpsert, nil
	case "replace":
		return OpReplace, nil
	case "read":
		return OpRead, nil
	case "delete":
		return OpDelete, nil
	case "query":
		return OpQuery, nil
	default:
		return OpUnknown, fmt.Errorf("unknown operation: %s", s)
	}
}

// --------------------------------------------------------------------------
// Request / Response
// --------------------------------------------------------------------------

// Request is a single operation against one collection of the backing store.
// Which fields are used depends on Op.
type Request struct {
	Op           Op
	Database     string
	Collection   string
	PartitionKey string // empty on a query means cross partition
	ID           string // read, delete (create/upsert/replace take the id from Body)
	Body         []byte // json document for create, upsert, replace
	IfMatch      string // replace: only apply if the stored ETag still matches
	Query        *Query
	Continuation string // query: cursor returned by the previous page
	MaxItemCount int    // query: page size, <= 0 lets the backend decide
}

// Response is the backend's answer to a Request
type Response struct {
	StatusCode    int
	SubStatus     int
	ETag          string
	Body          []byte   // read, create, upsert, replace
	Items         [][]byte // query: json documents of this page
	Continuation  string   // query: empty when no more pages exist
	TotalCount    int      // query: number of matching documents over all pages
	RequestCharge float64  // request units consumed by the operation
	RetryAfterMs  int64    // 429: backend hint for the earliest retry
	Message       string   // diagnostic text for non-success responses
}

// Success reports whether the status code is in the 2xx range
func (r *Response) Success() bool {
	return r != nil && r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Decode unmarshals the response body into v
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("docstore: empty response body")
	}
	return json.Unmarshal(r.Body, v)
}
