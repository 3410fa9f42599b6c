package amf

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/kanon-lab/stratadb/internal/kverrors"
)

// defaultMaxKicks bounds how many relocations Add attempts before giving up
// and reporting the filter full.
const defaultMaxKicks = 500

// CuckooFilter is a bucketed cuckoo filter storing fingerprints rather than
// full keys, trading a small false-positive rate for support of Delete and
// fingerprint-level merging that a Bloom filter cannot offer.
type CuckooFilter struct {
	buckets         [][]uint32
	bucketSize      int
	capacity        int
	fingerprintBits uint
	maxKicks        int
	size            int
	count           int
	rng             *rand.Rand
}

// NewCuckooFilter sizes a filter for itemNum expected entries at the given
// target false-positive probability, following the same bucket-size/
// capacity/fingerprint-width rules as the distilled source: bucketSize is 2
// when fpp >= 0.002 (load factor 0.84) and 4 otherwise (load factor 0.95),
// and fingerprintBits = ceil(log2(1/fpp) + log2(2*bucketSize) + 1).
func NewCuckooFilter(itemNum int, fpp float64) *CuckooFilter {
	if itemNum <= 0 {
		itemNum = 1
	}
	if fpp <= 0 || fpp >= 1 {
		fpp = 0.01
	}

	var bucketSize int
	var loadFactor float64
	if fpp >= 0.002 {
		bucketSize = 2
		loadFactor = 0.84
	} else {
		bucketSize = 4
		loadFactor = 0.95
	}

	capacity := int(float64(itemNum) / loadFactor)
	if capacity < 1 {
		capacity = 1
	}

	fpBits := uint(math.Ceil(math.Log2(1/fpp) + math.Log2(float64(2*bucketSize)) + 1))
	if fpBits < 1 {
		fpBits = 1
	}
	if fpBits > 32 {
		fpBits = 32
	}

	buckets := make([][]uint32, capacity)
	return &CuckooFilter{
		buckets:         buckets,
		bucketSize:      bucketSize,
		capacity:        capacity,
		fingerprintBits: fpBits,
		maxKicks:        defaultMaxKicks,
		count:           1,
		rng:             rand.New(rand.NewSource(1)),
	}
}

// Add inserts key's fingerprint, relocating existing fingerprints via
// random kicks up to maxKicks times before reporting the filter full.
func (cf *CuckooFilter) Add(key string) error {
	fp := cf.fingerprint(key)
	i1 := cf.primaryIndex(key)
	i2 := cf.altIndex(i1, fp)

	if containsFP(cf.buckets[i1], fp) || containsFP(cf.buckets[i2], fp) {
		cf.size++
		return nil
	}

	if len(cf.buckets[i1]) < cf.bucketSize {
		cf.buckets[i1] = append(cf.buckets[i1], fp)
		cf.size++
		return nil
	}
	if len(cf.buckets[i2]) < cf.bucketSize {
		cf.buckets[i2] = append(cf.buckets[i2], fp)
		cf.size++
		return nil
	}

	idx := i1
	if cf.rng.Intn(2) == 1 {
		idx = i2
	}
	for i := 0; i < cf.maxKicks; i++ {
		fp = cf.swap(fp, idx)
		idx = int(uint32(idx)^hash32(fpBytes(fp))) % cf.capacity
		if len(cf.buckets[idx]) < cf.bucketSize {
			cf.buckets[idx] = append(cf.buckets[idx], fp)
			cf.size++
			return nil
		}
	}

	return kverrors.NewFilterError(kverrors.KindFilterFull, "", fmt.Sprintf("cuckoo filter full after %d kicks", cf.maxKicks), nil)
}

// AddByFingerprint inserts a fingerprint already computed elsewhere directly
// at bucketIndex, relocating as needed. This is how the compaction engine
// folds one filter's contents into another without recomputing hashes from
// the original keys, provided both filters share the same capacity and the
// caller supplies the bucket index each fingerprint occupies in the source
// filter (as Fingerprints yields it).
func (cf *CuckooFilter) AddByFingerprint(fp uint32, bucketIndex int) error {
	idx := bucketIndex % cf.capacity
	if containsFP(cf.buckets[idx], fp) {
		cf.size++
		return nil
	}
	if len(cf.buckets[idx]) < cf.bucketSize {
		cf.buckets[idx] = append(cf.buckets[idx], fp)
		cf.size++
		return nil
	}
	for i := 0; i < cf.maxKicks; i++ {
		fp = cf.swap(fp, idx)
		idx = int(uint32(idx)^hash32(fpBytes(fp))) % cf.capacity
		if len(cf.buckets[idx]) < cf.bucketSize {
			cf.buckets[idx] = append(cf.buckets[idx], fp)
			cf.size++
			return nil
		}
	}
	return kverrors.NewFilterError(kverrors.KindFilterFull, "", fmt.Sprintf("cuckoo filter full after %d kicks", cf.maxKicks), nil)
}

// Contains reports whether key's fingerprint is present in either of its
// two candidate buckets.
func (cf *CuckooFilter) Contains(key string) bool {
	fp := cf.fingerprint(key)
	i1 := cf.primaryIndex(key)
	i2 := cf.altIndex(i1, fp)
	return containsFP(cf.buckets[i1], fp) || containsFP(cf.buckets[i2], fp)
}

// Delete removes key's fingerprint from whichever of its two candidate
// buckets holds it, reporting false if it was absent from both.
func (cf *CuckooFilter) Delete(key string) bool {
	fp := cf.fingerprint(key)
	i1 := cf.primaryIndex(key)
	if removeFP(&cf.buckets[i1], fp) {
		cf.size--
		return true
	}
	i2 := cf.altIndex(i1, fp)
	if removeFP(&cf.buckets[i2], fp) {
		cf.size--
		return true
	}
	return false
}

// Kind reports KindCuckoo.
func (cf *CuckooFilter) Kind() Kind { return KindCuckoo }

// Count reports how many flush-sized filters this instance summarizes.
func (cf *CuckooFilter) Count() int { return cf.count }

// SetCount overrides the summarized-filter count, used after a merge.
func (cf *CuckooFilter) SetCount(n int) { cf.count = n }

// Capacity reports the bucket-array length.
func (cf *CuckooFilter) Capacity() int { return cf.capacity }

// LoadFactor reports size / (capacity * bucketSize), used by the
// compaction engine to decide whether an in-place fingerprint merge of two
// filters stays under its fixed 0.50 combined ceiling.
func (cf *CuckooFilter) LoadFactor() float64 {
	return float64(cf.size) / float64(cf.capacity*cf.bucketSize)
}

// Fingerprints iterates every stored fingerprint along with the bucket
// index it currently lives in, so the compaction engine can re-home each
// one into another filter of the same capacity via AddByFingerprint.
func (cf *CuckooFilter) Fingerprints(yield func(bucketIndex int, fp uint32)) {
	for idx, bucket := range cf.buckets {
		for _, fp := range bucket {
			yield(idx, fp)
		}
	}
}

func (cf *CuckooFilter) swap(fp uint32, bucketIndex int) uint32 {
	bucket := cf.buckets[bucketIndex]
	slot := cf.rng.Intn(len(bucket))
	fp, bucket[slot] = bucket[slot], fp
	return fp
}

func (cf *CuckooFilter) primaryIndex(key string) int {
	return int(hash32([]byte(key)) % uint32(cf.capacity))
}

func (cf *CuckooFilter) altIndex(primary int, fp uint32) int {
	return int(uint32(primary)^hash32(fpBytes(fp))) % cf.capacity
}

func (cf *CuckooFilter) fingerprint(key string) uint32 {
	mask := uint32(1)<<cf.fingerprintBits - 1
	fp := hash32([]byte(key)) & mask
	if fp == 0 {
		fp = 1
	}
	return fp
}

func fpBytes(fp uint32) []byte {
	return []byte{byte(fp), byte(fp >> 8), byte(fp >> 16), byte(fp >> 24)}
}

func containsFP(bucket []uint32, fp uint32) bool {
	for _, v := range bucket {
		if v == fp {
			return true
		}
	}
	return false
}

func removeFP(bucket *[]uint32, fp uint32) bool {
	b := *bucket
	for i, v := range b {
		if v == fp {
			b[i] = b[len(b)-1]
			*bucket = b[:len(b)-1]
			return true
		}
	}
	return false
}
