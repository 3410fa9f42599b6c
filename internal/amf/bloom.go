package amf

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kanon-lab/stratadb/internal/kverrors"
)

// BloomFilter is a fixed-size bit array tested with k independent seeded
// hashes. Capacity and hash count follow the standard optimal-size
// formulas: m = ceil(-n*ln(p) / ln(2)^2), k = ceil((m/n)*ln(2)).
type BloomFilter struct {
	bits      []uint64
	size      uint64
	numHashes int
	count     int
}

// NewBloomFilter builds a Bloom filter sized for expectedItems entries at
// the given target false-positive probability.
func NewBloomFilter(expectedItems uint64, fpp float64) *BloomFilter {
	if expectedItems == 0 {
		expectedItems = 1
	}
	if fpp <= 0 || fpp >= 1 {
		fpp = 0.2
	}

	size := optimalBitSize(expectedItems, fpp)
	numHashes := optimalHashCount(size, expectedItems)
	words := (size + 63) / 64

	return &BloomFilter{
		bits:      make([]uint64, words),
		size:      size,
		numHashes: numHashes,
		count:     1,
	}
}

func optimalBitSize(n uint64, p float64) uint64 {
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	return uint64(math.Ceil(m))
}

func optimalHashCount(m, n uint64) int {
	k := int(math.Ceil((float64(m) / float64(n)) * math.Ln2))
	if k < 1 {
		return 1
	}
	return k
}

// Add sets the k bits addressed by seeds 0..k-1 for key. A Bloom filter
// never rejects an insert, so the returned error is always nil; it exists
// to satisfy the Filter interface shared with CuckooFilter.
func (bf *BloomFilter) Add(key string) error {
	data := []byte(key)
	for seed := 0; seed < bf.numHashes; seed++ {
		idx := seededHash32(data, byte(seed))
		bf.setBit(uint64(idx) % bf.size)
	}
	return nil
}

// Contains returns true iff every one of the k bits for key is set.
func (bf *BloomFilter) Contains(key string) bool {
	data := []byte(key)
	for seed := 0; seed < bf.numHashes; seed++ {
		idx := seededHash32(data, byte(seed))
		if !bf.getBit(uint64(idx) % bf.size) {
			return false
		}
	}
	return true
}

// Kind reports KindBloom.
func (bf *BloomFilter) Kind() Kind { return KindBloom }

// Count reports how many flush-sized filters this instance summarizes.
func (bf *BloomFilter) Count() int { return bf.count }

// SetCount overrides the summarized-filter count; used when a freshly
// built merged filter is meant to represent several predecessors.
func (bf *BloomFilter) SetCount(n int) { bf.count = n }

func (bf *BloomFilter) setBit(i uint64) {
	bf.bits[i/64] |= 1 << (i % 64)
}

func (bf *BloomFilter) getBit(i uint64) bool {
	return bf.bits[i/64]&(1<<(i%64)) != 0
}

// Serialize encodes the filter as size, numHashes, count, then the raw bit
// words, all little-endian. The metadata blob does not store filters; the
// engine rebuilds them from their segments at startup.
func (bf *BloomFilter) Serialize() []byte {
	out := make([]byte, 24+len(bf.bits)*8)
	binary.LittleEndian.PutUint64(out[0:], bf.size)
	binary.LittleEndian.PutUint64(out[8:], uint64(bf.numHashes))
	binary.LittleEndian.PutUint64(out[16:], uint64(bf.count))
	for i, w := range bf.bits {
		binary.LittleEndian.PutUint64(out[24+i*8:], w)
	}
	return out
}

// DeserializeBloomFilter rehydrates a filter produced by Serialize.
func DeserializeBloomFilter(data []byte) (*BloomFilter, error) {
	if len(data) < 24 {
		return nil, kverrors.NewFilterError(kverrors.KindCorruption, "", "truncated bloom filter", fmt.Errorf("need at least 24 bytes, got %d", len(data)))
	}
	size := binary.LittleEndian.Uint64(data[0:])
	numHashes := int(binary.LittleEndian.Uint64(data[8:]))
	count := int(binary.LittleEndian.Uint64(data[16:]))

	words := (size + 63) / 64
	if len(data) < 24+int(words)*8 {
		return nil, kverrors.NewFilterError(kverrors.KindCorruption, "", "truncated bloom filter bit array", nil)
	}

	bits := make([]uint64, words)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(data[24+i*8:])
	}

	return &BloomFilter{bits: bits, size: size, numHashes: numHashes, count: count}, nil
}

// Union merges other's bit array into bf in place. Both filters must share
// size and hash count; this is how two flush-sized Bloom filters could in
// principle be combined without a rescan, though the compaction engine in
// this design always rebuilds Bloom filters from scratch above the |A'|>3
// threshold rather than union them (see compaction package).
func (bf *BloomFilter) Union(other *BloomFilter) error {
	if bf.size != other.size || bf.numHashes != other.numHashes {
		return fmt.Errorf("bloom filters must share size and hash count to union")
	}
	for i := range bf.bits {
		bf.bits[i] |= other.bits[i]
	}
	bf.count += other.count
	return nil
}
