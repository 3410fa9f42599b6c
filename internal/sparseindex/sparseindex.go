// Package sparseindex implements the in-memory sampled index from keys to
// their segment and byte offset, filled during flush and by the engine's
// RebuildIndex. Lookups do not consult it: a segment search always
// binary-searches the segment's full list of lines.
package sparseindex

import "sort"

// Entry records where a sampled key lives: which segment holds it and the
// byte offset its line starts at within that segment's file.
type Entry struct {
	Segment string
	Offset  int
}

// SparseIndex is a plain map from sampled key to its Entry. It only ever
// holds a fraction of the keyspace — roughly one in every `sparsity`
// records written during a flush — so most keys have no entry here.
type SparseIndex struct {
	entries map[string]Entry
}

// New returns an empty SparseIndex.
func New() *SparseIndex {
	return &SparseIndex{entries: make(map[string]Entry)}
}

// Add records key's location. Called by segment flush and by the engine's
// RebuildIndex.
func (si *SparseIndex) Add(key, segment string, offset int) {
	si.entries[key] = Entry{Segment: segment, Offset: offset}
}

// Lookup returns the recorded location for key, if it was sampled.
func (si *SparseIndex) Lookup(key string) (Entry, bool) {
	e, ok := si.entries[key]
	return e, ok
}

// Remove drops key's entry, called when the segment backing it is merged
// or deleted out from under it.
func (si *SparseIndex) Remove(key string) {
	delete(si.entries, key)
}

// RemoveSegment drops every entry pointing at segment, called once that
// segment has been merged away or replaced.
func (si *SparseIndex) RemoveSegment(segment string) {
	for k, e := range si.entries {
		if e.Segment == segment {
			delete(si.entries, k)
		}
	}
}

// Reset empties the index, the first step of the engine's RebuildIndex.
func (si *SparseIndex) Reset() {
	si.entries = make(map[string]Entry)
}

// Len reports the number of sampled entries currently held.
func (si *SparseIndex) Len() int {
	return len(si.entries)
}

// Sampler drives the counter-based sampling scheme used both at flush
// time and by the engine's RebuildIndex: a fresh Sampler counts down from
// sparsity, so
// Due fires on the sparsity-th record of each cycle rather than the
// first, then the countdown restarts for the next cycle.
type Sampler struct {
	sparsity int
	counter  int
}

// NewSampler starts a countdown of sparsity records per sample. sparsity
// is size_threshold / sparsity_factor, computed by the caller.
func NewSampler(sparsity int) *Sampler {
	if sparsity < 1 {
		sparsity = 1
	}
	return &Sampler{sparsity: sparsity, counter: sparsity}
}

// Due reports whether the current record should be sampled, and advances
// the countdown. Call it once per record, in file order.
func (s *Sampler) Due() bool {
	if s.counter == 1 {
		s.counter = s.sparsity + 1
		s.counter--
		return true
	}
	s.counter--
	return false
}

// Keys returns every indexed key in ascending order, used by tests and by
// diagnostics that want a stable view of what is currently sampled.
func (si *SparseIndex) Keys() []string {
	keys := make([]string, 0, len(si.entries))
	for k := range si.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
