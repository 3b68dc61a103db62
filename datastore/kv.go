package datastore

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Ordered key/value engines store each value under
// subject + "\x00" + attribute. Since subjects never contain a NUL
// the byte order of the keys matches the (subject, attribute) order.
// Values carry an 8 byte big endian timestamp header.

var errCorruptValue = errors.New("corrupt value")

func encodeKey(subject, attribute string) []byte {
	result := make([]byte, 0, len(subject)+len(attribute)+1)
	result = append(result, subject...)
	result = append(result, 0)
	result = append(result, attribute...)
	return result
}

func decodeKey(key []byte) (subject, attribute string, ok bool) {
	idx := bytes.IndexByte(key, 0)
	if idx < 0 {
		return "", "", false
	}
	return string(key[:idx]), string(key[idx+1:]), true
}

func encodeValue(value []byte, timestamp int64) []byte {
	result := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(result, uint64(timestamp))
	copy(result[8:], value)
	return result
}

func decodeRecord(key, value []byte) (*Record, error) {
	subject, attribute, ok := decodeKey(key)
	if !ok || len(value) < 8 {
		return nil, errCorruptValue
	}

	data := make([]byte, len(value)-8)
	copy(data, value[8:])

	return &Record{
		Subject:   subject,
		Attribute: attribute,
		Timestamp: int64(binary.BigEndian.Uint64(value)),
		Value:     data,
	}, nil
}

// Key range covering subjects with the prefix, skipping all subjects
// up to and including after_subject.
func scanRange(subject_prefix, after_subject string) (start, limit []byte) {
	start = []byte(subject_prefix)
	if after_subject != "" {
		// Sorts after every key of after_subject itself.
		after := append([]byte(after_subject), 1)
		if bytes.Compare(after, start) > 0 {
			start = after
		}
	}
	return start, prefixUpperBound([]byte(subject_prefix))
}

// Range covering all the attributes of exactly this subject.
func subjectRange(subject string) (start, limit []byte) {
	start = encodeKey(subject, "")
	return start, prefixUpperBound(start)
}
