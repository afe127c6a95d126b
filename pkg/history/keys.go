package history

import (
	"encoding/binary"
	"time"
)

// Key prefixes.
const (
	RunPrefix   byte = 0x01 // [prefix | created_at nanos (8) | run id] -> record
	IndexPrefix byte = 0x02 // [prefix | run id] -> run key
)

const timeSize = 8

// encodeRunKey orders runs by creation time. BigEndian keeps byte order equal
// to numeric order.
func encodeRunKey(createdAt time.Time, runID string) []byte {
	key := make([]byte, 1+timeSize+len(runID))
	key[0] = RunPrefix
	binary.BigEndian.PutUint64(key[1:1+timeSize], uint64(createdAt.UnixNano()))
	copy(key[1+timeSize:], runID)
	return key
}

func encodeIndexKey(runID string) []byte {
	key := make([]byte, 1+len(runID))
	key[0] = IndexPrefix
	copy(key[1:], runID)
	return key
}

// runIDFromKey extracts the run id of a run key.
func runIDFromKey(key []byte) string {
	if len(key) < 1+timeSize {
		return ""
	}
	return string(key[1+timeSize:])
}
