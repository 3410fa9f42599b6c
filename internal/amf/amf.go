// Package amf implements the two approximate-membership filter designs
// used to accelerate point lookups across segments: Bloom and Cuckoo.
// Both share the Filter contract; Cuckoo additionally supports Delete and
// fingerprint-level merging, which the compaction engine uses to combine
// filters without a full rescan when possible.
package amf

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which filter design an instance implements, and is the
// first component of every AMF's name (kind-count-timestamp).
type Kind string

const (
	// KindBloom names a Bloom filter instance.
	KindBloom Kind = "bf"
	// KindCuckoo names a Cuckoo filter instance.
	KindCuckoo Kind = "ckf"
)

// Filter is the contract shared by both filter designs. Add and Contains
// never produce a false negative for a key that was added and not deleted;
// both may produce false positives bounded by the configured fpp. Add
// returns a KindFilterFull error for a Cuckoo filter that exhausted its
// kick budget; a Bloom filter never fails to Add.
type Filter interface {
	// Add records key as a member.
	Add(key string) error
	// Contains reports whether key might be a member. A false result is
	// definitive; a true result may be a false positive.
	Contains(key string) bool
	// Kind reports which design this instance implements.
	Kind() Kind
	// Count reports how many flush-sized filters this instance summarizes
	// (1 for a freshly flushed filter, >1 after a merge).
	Count() int
}

// Name builds the canonical AMF instance name: <kind>-<count>-<timestamp>,
// where count records how many original flush-sized filters this instance
// summarizes.
func Name(kind Kind, count int, timestamp string) string {
	return fmt.Sprintf("%s-%d-%s", kind, count, timestamp)
}

// ParseName splits a name produced by Name back into its kind, count, and
// timestamp components, used by compaction when it needs to know how many
// flush-sized filters a segment's current AMF already summarizes.
func ParseName(name string) (kind Kind, count int, timestamp string, err error) {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) != 3 {
		return "", 0, "", fmt.Errorf("malformed amf name %q", name)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, "", fmt.Errorf("malformed amf name %q: %w", name, err)
	}
	return Kind(parts[0]), n, parts[2], nil
}
