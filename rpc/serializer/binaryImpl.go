package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dAudit/rpc/common"
	"math"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: 1 byte MsgType, 4 bytes flags (big endian), then every field whose flag is set in
// flag order. Strings and byte slices are prefixed with their uint32 length, Items with the
// uint32 item count followed by the length prefixed items.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasDatabase uint32 = 1 << iota
	hasCollection
	hasPartitionKey
	hasID
	hasIfMatch
	hasQuery
	hasContinuation
	hasMaxItemCount
	hasBody
	hasStatusCode
	hasSubStatus
	hasETag
	hasItems
	hasTotalCount
	hasRequestCharge
	hasRetryAfterMs
	hasMessage
	hasErr
)

const headerSize = 5

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	if uint64(len(msg.Items)) > math.MaxUint32 {
		return nil, fmt.Errorf("too many items: %d", len(msg.Items))
	}

	// Reserve the header, the flags are written once all fields are known
	result := make([]byte, headerSize, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)
	var flags uint32

	putString := func(flag uint32, s string) {
		if s == "" {
			return
		}
		flags |= flag
		result = binary.BigEndian.AppendUint32(result, uint32(len(s)))
		result = append(result, s...)
	}

	// nil and empty byte slices are told apart, the flag marks "not nil"
	putBytes := func(flag uint32, v []byte) {
		if v == nil {
			return
		}
		flags |= flag
		result = binary.BigEndian.AppendUint32(result, uint32(len(v)))
		result = append(result, v...)
	}

	putString(hasDatabase, msg.Database)
	putString(hasCollection, msg.Collection)
	putString(hasPartitionKey, msg.PartitionKey)
	putString(hasID, msg.ID)
	putString(hasIfMatch, msg.IfMatch)
	putBytes(hasQuery, msg.Query)
	putString(hasContinuation, msg.Continuation)
	if msg.MaxItemCount != 0 {
		flags |= hasMaxItemCount
		result = binary.BigEndian.AppendUint32(result, uint32(msg.MaxItemCount))
	}
	putBytes(hasBody, msg.Body)
	if msg.StatusCode != 0 {
		flags |= hasStatusCode
		result = binary.BigEndian.AppendUint16(result, msg.StatusCode)
	}
	if msg.SubStatus != 0 {
		flags |= hasSubStatus
		result = binary.BigEndian.AppendUint16(result, msg.SubStatus)
	}
	putString(hasETag, msg.ETag)
	if msg.Items != nil {
		flags |= hasItems
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Items)))
		for _, item := range msg.Items {
			result = binary.BigEndian.AppendUint32(result, uint32(len(item)))
			result = append(result, item...)
		}
	}
	if msg.TotalCount != 0 {
		flags |= hasTotalCount
		result = binary.BigEndian.AppendUint64(result, uint64(msg.TotalCount))
	}
	if msg.RequestCharge != 0 {
		flags |= hasRequestCharge
		result = binary.BigEndian.AppendUint64(result, math.Float64bits(msg.RequestCharge))
	}
	if msg.RetryAfterMs != 0 {
		flags |= hasRetryAfterMs
		result = binary.BigEndian.AppendUint64(result, uint64(msg.RetryAfterMs))
	}
	putString(hasMessage, msg.Message)
	putString(hasErr, msg.Err)

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint32(result[1:headerSize], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint32(data[1:headerSize])
	r := reader{data: data, pos: headerSize}

	if flags&hasDatabase != 0 {
		msg.Database = r.readString("database")
	}
	if flags&hasCollection != 0 {
		msg.Collection = r.readString("collection")
	}
	if flags&hasPartitionKey != 0 {
		msg.PartitionKey = r.readString("partition key")
	}
	if flags&hasID != 0 {
		msg.ID = r.readString("id")
	}
	if flags&hasIfMatch != 0 {
		msg.IfMatch = r.readString("if-match")
	}
	if flags&hasQuery != 0 {
		msg.Query = r.readBytes("query")
	}
	if flags&hasContinuation != 0 {
		msg.Continuation = r.readString("continuation")
	}
	if flags&hasMaxItemCount != 0 {
		msg.MaxItemCount = int32(r.readUint32("max item count"))
	}
	if flags&hasBody != 0 {
		msg.Body = r.readBytes("body")
	}
	if flags&hasStatusCode != 0 {
		msg.StatusCode = r.readUint16("status code")
	}
	if flags&hasSubStatus != 0 {
		msg.SubStatus = r.readUint16("sub status")
	}
	if flags&hasETag != 0 {
		msg.ETag = r.readString("etag")
	}
	if flags&hasItems != 0 {
		count := r.readUint32("item count")
		// every item needs at least its length prefix
		if r.err == nil && uint64(count)*4 > uint64(len(data)-r.pos) {
			r.err = fmt.Errorf("data too short for %d items", count)
		}
		if r.err == nil {
			msg.Items = make([][]byte, count)
			for i := range msg.Items {
				msg.Items[i] = r.readBytes("item")
			}
		}
	}
	if flags&hasTotalCount != 0 {
		msg.TotalCount = int64(r.readUint64("total count"))
	}
	if flags&hasRequestCharge != 0 {
		msg.RequestCharge = math.Float64frombits(r.readUint64("request charge"))
	}
	if flags&hasRetryAfterMs != 0 {
		msg.RetryAfterMs = int64(r.readUint64("retry after"))
	}
	if flags&hasMessage != 0 {
		msg.Message = r.readString("message")
	}
	if flags&hasErr != 0 {
		msg.Err = r.readString("error")
	}

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	// 4 bytes length prefix for every string and byte slice
	for _, s := range []string{msg.Database, msg.Collection, msg.PartitionKey, msg.ID, msg.IfMatch,
		msg.Continuation, msg.ETag, msg.Message, msg.Err} {
		if s != "" {
			size += 4 + len(s)
		}
	}
	if msg.Query != nil {
		size += 4 + len(msg.Query)
	}
	if msg.Body != nil {
		size += 4 + len(msg.Body)
	}
	if msg.Items != nil {
		size += 4
		for _, item := range msg.Items {
			size += 4 + len(item)
		}
	}

	size += 4 + 2 + 2 // MaxItemCount, StatusCode, SubStatus
	size += 3 * 8     // TotalCount, RequestCharge, RetryAfterMs
	return size
}

// reader decodes fields from data, after the first error all reads return zero values
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) need(n int, field string) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", field)
		return false
	}
	return true
}

func (r *reader) readUint16(field string) uint16 {
	if !r.need(2, field) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) readUint32(field string) uint32 {
	if !r.need(4, field) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) readUint64(field string) uint64 {
	if !r.need(8, field) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

// bytes returns a copy, a zero length field decodes to an empty, non-nil slice
func (r *reader) readBytes(field string) []byte {
	n := r.readUint32(field + " length")
	if !r.need(int(n), field) {
		return nil
	}
	v := make([]byte, n)
	copy(v, r.data[r.pos:])
	r.pos += int(n)
	return v
}

func (r *reader) readString(field string) string {
	n := r.readUint32(field + " length")
	if !r.need(int(n), field) {
		return ""
	}
	v := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return v
}
