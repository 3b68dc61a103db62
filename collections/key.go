package collections

import (
	"fmt"

	"www.velocidex.com/golang/flowsched/constants"
)

// Identifies a record within a collection. Keys order records by
// timestamp, ties broken by the suffix.
type Key struct {
	// Microseconds since the epoch.
	Timestamp int64 `json:"timestamp"`

	// In [1, MAX_SUFFIX]. Zero is never stored so Suffix-1 is always
	// a valid exclusive lower bound.
	Suffix uint32 `json:"suffix"`
}

func (self Key) Less(other Key) bool {
	if self.Timestamp != other.Timestamp {
		return self.Timestamp < other.Timestamp
	}
	return self.Suffix < other.Suffix
}

func (self Key) String() string {
	return fmt.Sprintf("%016x.%06x", self.Timestamp, self.Suffix)
}

// A key sorting after every record stored at timestamp. Scanning
// after it skips all records at that timestamp.
func AfterTimestamp(timestamp int64) *Key {
	return &Key{Timestamp: timestamp, Suffix: constants.MAX_SUFFIX}
}

type Item struct {
	Key   Key
	Value []byte
}

type ScanOptions struct {
	// Only return records strictly after this key.
	After *Key

	// Stop after this many records. 0 means no limit.
	MaxRecords int
}
