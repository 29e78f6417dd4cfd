package common

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"math"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message, a response carries the type of its request
	MsgType MessageType `json:"msg_type"`

	// Addressing, used by all requests
	Database     string `json:"database,omitempty"`
	Collection   string `json:"collection,omitempty"`
	PartitionKey string `json:"partitionKey,omitempty"`
	ID           string `json:"id,omitempty"`      // Used for: Read, Delete
	IfMatch      string `json:"ifMatch,omitempty"` // Used for: Replace

	// Query fields
	Query        []byte `json:"query,omitempty"`        // json encoded docstore.Query
	Continuation string `json:"continuation,omitempty"` // Used for: Query (request and response)
	MaxItemCount int32  `json:"maxItemCount,omitempty"`

	// Document body, used for: Create, Upsert, Replace (request), Read and writes (response)
	Body []byte `json:"body,omitempty"`

	// Response only fields
	StatusCode    uint16   `json:"statusCode,omitempty"`
	SubStatus     uint16   `json:"subStatus,omitempty"`
	ETag          string   `json:"etag,omitempty"`
	Items         [][]byte `json:"items,omitempty"`
	TotalCount    int64    `json:"totalCount,omitempty"`
	RequestCharge float64  `json:"requestCharge,omitempty"`
	RetryAfterMs  int64    `json:"retryAfterMs,omitempty"`
	Message       string   `json:"message,omitempty"` // status message of the backend

	// Err is set if the request could not be handled at all (no status code available)
	Err string `json:"err,omitempty"`
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewRequestMessage creates the message for a docstore request
func NewRequestMessage(req *docstore.Request) (*Message, error) {
	msg := &Message{
		MsgType:      MessageTypeOf(req.Op),
		Database:     req.Database,
		Collection:   req.Collection,
		PartitionKey: req.PartitionKey,
		ID:           req.ID,
		IfMatch:      req.IfMatch,
		Continuation: req.Continuation,
		MaxItemCount: int32(max(0, min(req.MaxItemCount, math.MaxInt32))),
		Body:         req.Body,
	}
	if msg.MsgType == MsgTUnknown {
		return nil, fmt.Errorf("unsupported operation: %s", req.Op)
	}
	if req.Query != nil {
		q, err := json.Marshal(req.Query)
		if err != nil {
			return nil, fmt.Errorf("failed to encode query: %w", err)
		}
		msg.Query = q
	}
	return msg, nil
}

// ToRequest converts a request message back to a docstore request
func (m *Message) ToRequest() (*docstore.Request, error) {
	req := &docstore.Request{
		Op:           m.MsgType.Op(),
		Database:     m.Database,
		Collection:   m.Collection,
		PartitionKey: m.PartitionKey,
		ID:           m.ID,
		Body:         m.Body,
		IfMatch:      m.IfMatch,
		Continuation: m.Continuation,
		MaxItemCount: int(m.MaxItemCount),
	}
	if len(m.Query) > 0 {
		var q docstore.Query
		if err := json.Unmarshal(m.Query, &q); err != nil {
			return nil, fmt.Errorf("failed to decode query: %w", err)
		}
		req.Query = &q
	}
	return req, nil
}

// NewResponseMessage creates the response message of type t for a docstore response
func NewResponseMessage(t MessageType, resp *docstore.Response) *Message {
	return &Message{
		MsgType:       t,
		Body:          resp.Body,
		Continuation:  resp.Continuation,
		StatusCode:    uint16(resp.StatusCode),
		SubStatus:     uint16(resp.SubStatus),
		ETag:          resp.ETag,
		Items:         resp.Items,
		TotalCount:    int64(resp.TotalCount),
		RequestCharge: resp.RequestCharge,
		RetryAfterMs:  resp.RetryAfterMs,
		Message:       resp.Message,
	}
}

// ToResponse converts a response message back to a docstore response
func (m *Message) ToResponse() *docstore.Response {
	return &docstore.Response{
		StatusCode:    int(m.StatusCode),
		SubStatus:     int(m.SubStatus),
		ETag:          m.ETag,
		Body:          m.Body,
		Items:         m.Items,
		Continuation:  m.Continuation,
		TotalCount:    int(m.TotalCount),
		RequestCharge: m.RequestCharge,
		RetryAfterMs:  m.RetryAfterMs,
		Message:       m.Message,
	}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// MessageTypeOf returns the message type of a docstore operation
func MessageTypeOf(op docstore.Op) MessageType {
	switch op {
	case docstore.OpCreate:
		return MsgTCreate
	case docstore.OpUpsert:
		return MsgTUpsert
	case docstore.OpReplace:
		return MsgTReplace
	case docstore.OpRead:
		return MsgTRead
	case docstore.OpDelete:
		return MsgTDelete
	case docstore.OpQuery:
		return MsgTQuery
	default:
		return MsgTUnknown
	}
}

// Op returns the docstore operation of a request message type
func (t MessageType) Op() docstore.Op {
	switch t {
	case MsgTCreate:
		return docstore.OpCreate
	case MsgTUpsert:
		return docstore.OpUpsert
	case MsgTReplace:
		return docstore.OpReplace
	case MsgTRead:
		return docstore.OpRead
	case MsgTDelete:
		return docstore.OpDelete
	case MsgTQuery:
		return docstore.OpQuery
	default:
		return docstore.OpUnknown
	}
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTError:
		return "error"
	case MsgTUnknown:
		return "unknown"
	default:
		return t.Op().String()
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "error":
		*t = MsgTError
	case "unknown":
		*t = MsgTUnknown
	default:
		op, err := docstore.ParseOp(s)
		if err != nil {
			return fmt.Errorf("unknown message type: %s", s)
		}
		*t = MessageTypeOf(op)
	}
	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTError               // Indicates the request could not be handled

	// Document operations

	MsgTCreate  // Create a document, fails if it exists
	MsgTUpsert  // Create or overwrite a document
	MsgTReplace // Overwrite an existing document, optionally guarded by an etag
	MsgTRead    // Read a document by partition key and id
	MsgTDelete  // Delete a document
	MsgTQuery   // Read one page of a query
)
