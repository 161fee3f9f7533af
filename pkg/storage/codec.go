package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"

	"github.com/blackroad/metricboard/pkg/types"
)

// Key layout: 8 bytes metric name hash, 8 bytes order-preserving
// timestamp, 8 bytes insertion sequence. Big-endian throughout so that
// badger's lexicographic key order equals (timestamp, sequence) order
// within a metric.
const (
	hashLen = 8
	tsLen   = 8
	seqLen  = 8
	keyLen  = hashLen + tsLen + seqLen
)

// metricPrefix returns the key prefix shared by all points of a metric
func metricPrefix(metric string) []byte {
	prefix := make([]byte, hashLen)
	binary.BigEndian.PutUint64(prefix, xxhash.Sum64String(metric))
	return prefix
}

// pointKey builds the full storage key for a point
func pointKey(metric string, ts int64, seq uint64) []byte {
	key := make([]byte, keyLen)
	binary.BigEndian.PutUint64(key[0:], xxhash.Sum64String(metric))
	binary.BigEndian.PutUint64(key[hashLen:], encodeTS(ts))
	binary.BigEndian.PutUint64(key[hashLen+tsLen:], seq)
	return key
}

// seekKey returns the smallest possible key for a metric at timestamp ts
func seekKey(metric string, ts int64) []byte {
	key := make([]byte, keyLen)
	binary.BigEndian.PutUint64(key[0:], xxhash.Sum64String(metric))
	binary.BigEndian.PutUint64(key[hashLen:], encodeTS(ts))
	return key
}

// seekKeyMax returns the largest possible key for a metric, used as the
// starting position for reverse scans
func seekKeyMax(metric string) []byte {
	key := make([]byte, keyLen)
	binary.BigEndian.PutUint64(key[0:], xxhash.Sum64String(metric))
	for i := hashLen; i < keyLen; i++ {
		key[i] = 0xff
	}
	return key
}

// keyTimestamp extracts the timestamp from a storage key
func keyTimestamp(key []byte) int64 {
	return decodeTS(binary.BigEndian.Uint64(key[hashLen : hashLen+tsLen]))
}

// encodeTS maps a signed timestamp onto uint64 preserving order.
// Flipping the sign bit moves negative values below positive ones
// in unsigned comparison.
func encodeTS(ts int64) uint64 {
	return uint64(ts) ^ (1 << 63)
}

func decodeTS(u uint64) int64 {
	return int64(u ^ (1 << 63))
}

// encodePoint serializes a point body as snappy-compressed JSON
func encodePoint(p types.Point) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

// decodePoint reverses encodePoint
func decodePoint(payload []byte) (types.Point, error) {
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return types.Point{}, fmt.Errorf("corrupt payload: %w", err)
	}
	var p types.Point
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.Point{}, fmt.Errorf("corrupt record: %w", err)
	}
	return p, nil
}
