package segment

import (
	"testing"
	"time"

	"github.com/kanon-lab/stratadb/internal/amf"
	"github.com/kanon-lab/stratadb/internal/sparseindex"
)

func flushFixture(t *testing.T, s *Store, name string, values map[string]string) *amf.BloomFilter {
	t.Helper()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	// Caller passes already-sorted keys in these tests; sort defensively
	// so fixtures stay correct if a case adds keys out of order later.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}

	filter := amf.NewBloomFilter(uint64(len(keys)), 0.1)
	idx := sparseindex.New()
	sampler := sparseindex.NewSampler(1)
	if _, err := s.Flush(name, keys, values, filter, idx, sampler); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	return filter
}

func TestStore_FlushAndSearch(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	values := map[string]string{"apple": "red", "banana": "yellow", "cherry": "dark-red"}
	flushFixture(t, s, "segment-1", values)

	for key, want := range values {
		got, found, err := s.Search("segment-1", key)
		if err != nil {
			t.Fatalf("Search(%q): %v", key, err)
		}
		if !found || got != want {
			t.Errorf("Search(%q) = (%q, %v), want (%q, true)", key, got, found, want)
		}
	}

	if _, found, err := s.Search("segment-1", "missing"); err != nil || found {
		t.Errorf("Search(missing) = (_, %v, %v), want (_, false, nil)", found, err)
	}
}

func TestStore_NewNameFormat(t *testing.T) {
	ts := time.Date(2026, 7, 30, 12, 0, 0, 123456000, time.UTC)
	name := NewName("segment", ts)
	want := "segment-20260730120000123456"
	if name != want {
		t.Errorf("NewName = %q, want %q", name, want)
	}
}

func TestStore_Keys(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	values := map[string]string{"a": "1", "b": "2", "c": "3"}
	flushFixture(t, s, "segment-1", values)

	keys, err := Keys(s, "segment-1")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("Keys returned %d entries, want 3", len(keys))
	}
}

func TestStore_Merge_SecondOperandWinsTies(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	flushFixture(t, s, "seg-old", map[string]string{"a": "old-a", "b": "old-b", "d": "old-d"})
	flushFixture(t, s, "seg-new", map[string]string{"b": "new-b", "c": "new-c"})

	merged, err := s.Merge("segment", "seg-old", "seg-new")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	cases := map[string]string{"a": "old-a", "b": "new-b", "c": "new-c", "d": "old-d"}
	for key, want := range cases {
		got, found, err := s.Search(merged, key)
		if err != nil {
			t.Fatalf("Search(%q): %v", key, err)
		}
		if !found || got != want {
			t.Errorf("Search(%q) on merged segment = (%q, %v), want (%q, true)", key, got, found, want)
		}
	}
}

func TestStore_DeleteKeys(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	flushFixture(t, s, "segment-1", map[string]string{"a": "1", "b": "2", "c": "3"})

	deleted, err := s.DeleteKeys("segment-1", map[string]struct{}{"b": {}})
	if err != nil {
		t.Fatalf("DeleteKeys: %v", err)
	}
	if !deleted {
		t.Error("DeleteKeys reported nothing removed")
	}

	if _, found, _ := s.Search("segment-1", "b"); found {
		t.Error("b still present after DeleteKeys")
	}
	if _, found, _ := s.Search("segment-1", "a"); !found {
		t.Error("a missing after DeleteKeys removed an unrelated key")
	}
}

func TestStore_DeleteKeysNoMatchReportsFalse(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	flushFixture(t, s, "segment-1", map[string]string{"a": "1"})

	deleted, err := s.DeleteKeys("segment-1", map[string]struct{}{"nonexistent": {}})
	if err != nil {
		t.Fatalf("DeleteKeys: %v", err)
	}
	if deleted {
		t.Error("DeleteKeys reported a removal when nothing matched")
	}
}

func TestStore_SizeBytesAndModTime(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	flushFixture(t, s, "segment-1", map[string]string{"a": "1"})

	size, err := s.SizeBytes("segment-1")
	if err != nil || size <= 0 {
		t.Errorf("SizeBytes = (%d, %v), want > 0, nil", size, err)
	}
	if _, err := s.ModTime("segment-1"); err != nil {
		t.Errorf("ModTime: %v", err)
	}
}

func TestStore_Remove(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	flushFixture(t, s, "segment-1", map[string]string{"a": "1"})

	if err := s.Remove("segment-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, _, err := s.Search("segment-1", "a"); err == nil {
		t.Error("Search on a removed segment returned no error")
	}
}
