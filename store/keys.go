package store

import "encoding/binary"

// putInt64 appends the big-endian encoding of v to a fixed-width key.
func putInt64(buf []byte, v int64) {
	binary.BigEndian.PutUint64(buf, uint64(v))
}

// int64Key returns an 8-byte fixed-width key for a single identifier.
func int64Key(id int64) []byte {
	b := make([]byte, 8)
	putInt64(b, id)
	return b
}

func int64Of(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// compound2 builds the fixed-width `a ∥ b` key used by most two-part index
// entries (conceptId ∥ descriptionId, sourceId ∥ destinationId, …).
func compound2(a, b int64) []byte {
	buf := make([]byte, 16)
	putInt64(buf[0:8], a)
	putInt64(buf[8:16], b)
	return buf
}

// uuidKey builds the 16-byte uuidMsb ∥ uuidLsb key for refset item buckets.
func uuidKey(msb, lsb uint64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], msb)
	binary.BigEndian.PutUint64(buf[8:16], lsb)
	return buf
}
