package recordstore

import (
	"encoding/binary"
	"fmt"
)

// RecordId is the opaque, totally-ordered 64-bit identifier addressing a
// record. Normal records are strictly positive; ids are never reused.
type RecordId = int64

// ExtractRecordID parses a RecordId from the leading packed timestamp of
// an oplog entry's raw bytes: a 4-byte big-endian seconds field followed
// by a 4-byte big-endian ordinal, packed into a single int64. The top bit of the packed id is always zero
// (seconds is restricted to 31 bits) so the result fits in 63 bits and is
// strictly positive. Malformed (too short, or overflowing)
// input fails with Kind BadValue.
func ExtractRecordID(data []byte) (RecordId, error) {
	if len(data) < 8 {
		return 0, &Error{Kind: BadValue, Err: fmt.Errorf("oplog entry too short to contain a packed timestamp (%d bytes)", len(data))}
	}
	seconds := binary.BigEndian.Uint32(data[0:4])
	if seconds >= 1<<31 {
		return 0, &Error{Kind: BadValue, Err: fmt.Errorf("oplog timestamp seconds %d overflows the 63-bit RecordId encoding", seconds)}
	}
	ordinal := binary.BigEndian.Uint32(data[4:8])
	id := RecordId(uint64(seconds)<<32 | uint64(ordinal))
	if id <= 0 {
		return 0, &Error{Kind: BadValue, Err: fmt.Errorf("extracted oplog RecordId %d is not strictly positive", id)}
	}
	return id, nil
}

// EncodeRecordID is the inverse of ExtractRecordID's packing. It is
// exported for tests (and callers synthesizing oplog documents) that need
// to choose a specific RecordId.
func EncodeRecordID(id RecordId) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(uint64(id)>>32))
	binary.BigEndian.PutUint32(buf[4:8], uint32(id))
	return buf
}
