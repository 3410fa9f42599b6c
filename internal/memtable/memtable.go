// Package memtable implements the in-memory write buffer that every Set
// lands in after it is mirrored to the WAL and that, once the buffer's
// entry count reaches its size threshold, is flushed to a new segment on
// disk.
package memtable

import "sort"

// Memtable is a plain key/value map plus a running byte-size accounting.
// It carries no tombstone markers: a Delete that finds the key here
// removes it outright, matching the distilled source's dict semantics,
// where a deleted key simply disappears rather than being shadowed.
type Memtable struct {
	entries    map[string]string
	totalBytes int
}

// New returns an empty Memtable.
func New() *Memtable {
	return &Memtable{entries: make(map[string]string)}
}

// Put inserts or overwrites key's value, adjusting the byte accounting by
// the delta between the old and new entry size.
func (m *Memtable) Put(key, value string) {
	if old, ok := m.entries[key]; ok {
		m.totalBytes -= entrySize(key, old)
	}
	m.entries[key] = value
	m.totalBytes += entrySize(key, value)
}

// Get returns key's value and whether it is present.
func (m *Memtable) Get(key string) (string, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Delete removes key if present, reporting whether it was. A miss here is
// not an error: the caller falls through to searching on-disk segments.
func (m *Memtable) Delete(key string) bool {
	v, ok := m.entries[key]
	if !ok {
		return false
	}
	m.totalBytes -= entrySize(key, v)
	delete(m.entries, key)
	return true
}

// Count reports the number of live entries.
func (m *Memtable) Count() int {
	return len(m.entries)
}

// TotalBytes reports the accumulated raw key+value byte size. It is
// reported in engine stats; the flush decision counts entries, not bytes.
func (m *Memtable) TotalBytes() int {
	return m.totalBytes
}

// InOrder returns every key in ascending order, the order segment flush
// writes records in.
func (m *Memtable) InOrder() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries exposes the full key/value map, which flush reads values from
// while walking the keys returned by InOrder.
func (m *Memtable) Entries() map[string]string {
	return m.entries
}

// Reset empties the memtable and zeroes the byte counter, called once a
// flush to disk has succeeded.
func (m *Memtable) Reset() {
	m.entries = make(map[string]string)
	m.totalBytes = 0
}

// entrySize is the raw key+value byte sum the size threshold accounts
// against; it does not count the WAL's delimiter or newline bytes.
func entrySize(key, value string) int {
	return len(key) + len(value)
}
