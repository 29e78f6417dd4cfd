package serializer

import (
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"github.com/ValentinKolb/dAudit/rpc/common"
	"reflect"
	"testing"
	"time"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTRead},

		// Create request
		{
			MsgType:      common.MsgTCreate,
			Database:     "Annotations",
			Collection:   "EventsData",
			PartitionKey: "1-42",
			Body:         []byte(`{"id":"a","subject":"logged in"}`),
		},

		// Replace request guarded by an etag
		{
			MsgType:      common.MsgTReplace,
			Database:     "Annotations",
			Collection:   "EventsData",
			PartitionKey: "1-42",
			IfMatch:      "etag-1",
			Body:         []byte(`{"id":"a"}`),
		},

		// Query request
		{
			MsgType:      common.MsgTQuery,
			Database:     "Annotations",
			Collection:   "EventsData",
			Query:        []byte(`{"orderBy":"created","descending":true}`),
			Continuation: "eyJjb250aW51YXRpb25Ub2tlbiI6NDB9",
			MaxItemCount: 100,
		},

		// Query response
		{
			MsgType:       common.MsgTQuery,
			StatusCode:    200,
			Items:         [][]byte{[]byte(`{"id":"a"}`), []byte(`{"id":"b"}`)},
			Continuation:  "next",
			TotalCount:    93,
			RequestCharge: 4.75,
		},

		// Throttled response
		{
			MsgType:      common.MsgTUpsert,
			StatusCode:   429,
			RetryAfterMs: 120,
			Message:      "request rate is large",
		},

		// Concurrency conflict
		{
			MsgType:    common.MsgTReplace,
			StatusCode: 412,
			SubStatus:  docstore.SubStatusConcurrencyConflict,
			ETag:       "etag-2",
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTError; msgType <= common.MsgTQuery; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestDocstoreRoundTrip sends a docstore request and response through every serializer
func TestDocstoreRoundTrip(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	req := &docstore.Request{
		Op:           docstore.OpQuery,
		Database:     "Annotations",
		Collection:   "EventsData",
		PartitionKey: "1-7",
		Query: &docstore.Query{
			PartitionKey: "1-7",
			Predicates:   []docstore.Predicate{docstore.Ge("created", from), docstore.In("groupKey", "1-7", "1-8")},
			OrderBy:      "created",
			Descending:   true,
		},
		MaxItemCount: 25,
	}
	resp := &docstore.Response{
		StatusCode:    200,
		Items:         [][]byte{[]byte(`{"id":"a","created":"2024-05-02T00:00:00Z","groupKey":"1-7"}`)},
		TotalCount:    1,
		RequestCharge: 2.55,
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			reqMsg, err := common.NewRequestMessage(req)
			if err != nil {
				t.Fatalf("NewRequestMessage failed: %v", err)
			}
			data, err := serializer.Serialize(*reqMsg)
			if err != nil {
				t.Fatalf("Failed to serialize request: %v", err)
			}
			var decoded common.Message
			if err := serializer.Deserialize(data, &decoded); err != nil {
				t.Fatalf("Failed to deserialize request: %v", err)
			}
			got, err := decoded.ToRequest()
			if err != nil {
				t.Fatalf("ToRequest failed: %v", err)
			}
			if got.Op != req.Op || got.PartitionKey != req.PartitionKey || got.MaxItemCount != 25 || got.Query == nil {
				t.Fatalf("request changed in transit: %+v", got)
			}

			// the decoded query still matches the documents the original matches
			var doc map[string]any
			if err := (&docstore.Response{Body: resp.Items[0]}).Decode(&doc); err != nil {
				t.Fatal(err)
			}
			if !got.Query.Matches(doc) || !req.Query.Matches(doc) {
				t.Errorf("decoded query does not match the document")
			}

			respData, err := serializer.Serialize(*common.NewResponseMessage(decoded.MsgType, resp))
			if err != nil {
				t.Fatalf("Failed to serialize response: %v", err)
			}
			var respMsg common.Message
			if err := serializer.Deserialize(respData, &respMsg); err != nil {
				t.Fatalf("Failed to deserialize response: %v", err)
			}
			if back := respMsg.ToResponse(); !reflect.DeepEqual(back, resp) {
				t.Errorf("response changed in transit:\nOriginal: %+v\nResult: %+v", resp, back)
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty body slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTUpsert,
				Body:    []byte{},
			},
		},
		{
			name: "Empty item list but not nil",
			msg: common.Message{
				MsgType: common.MsgTQuery,
				Items:   [][]byte{},
			},
		},
		{
			name: "Negative counters",
			msg: common.Message{
				MsgType:      common.MsgTQuery,
				MaxItemCount: -1,
				TotalCount:   -5,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %+v\nResult: %+v", tc.msg, result)
			}
			if (tc.msg.Body == nil) != (result.Body == nil) {
				t.Errorf("Body nil/non-nil mismatch: expected %v, got %v", tc.msg.Body, result.Body)
			}
			if (tc.msg.Items == nil) != (result.Items == nil) {
				t.Errorf("Items nil/non-nil mismatch: expected %v, got %v", tc.msg.Items, result.Items)
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0, 0}, // message type and half of the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0, 0, 0},
			expectError: false,
		},
		{
			name:        "Invalid length for database",
			data:        []byte{1, 0, 0, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // claims 5 bytes, has 3
			expectError: true,
		},
		{
			name:        "Invalid length for body",
			data:        []byte{1, 0, 0, 1, 0, 0, 0, 0, 10}, // claims 10 bytes, has none
			expectError: true,
		},
		{
			name:        "Item count larger than data",
			data:        []byte{1, 0, 0, 0x10, 0, 0xff, 0xff, 0xff, 0xff},
			expectError: true,
		},
		{
			name:        "Truncated status code",
			data:        []byte{1, 0, 0, 2, 0, 1},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
