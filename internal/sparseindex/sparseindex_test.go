package sparseindex

import (
	"reflect"
	"testing"
)

func TestSparseIndex_AddLookupRemove(t *testing.T) {
	si := New()
	si.Add("k1", "segment-a", 10)
	si.Add("k2", "segment-a", 42)

	e, ok := si.Lookup("k1")
	if !ok || e.Segment != "segment-a" || e.Offset != 10 {
		t.Errorf("Lookup(k1) = (%+v, %v), want ({segment-a 10}, true)", e, ok)
	}

	si.Remove("k1")
	if _, ok := si.Lookup("k1"); ok {
		t.Error("Lookup(k1) after Remove still reports present")
	}
	if si.Len() != 1 {
		t.Errorf("Len() = %d, want 1", si.Len())
	}
}

func TestSparseIndex_RemoveSegment(t *testing.T) {
	si := New()
	si.Add("k1", "segment-a", 0)
	si.Add("k2", "segment-a", 5)
	si.Add("k3", "segment-b", 0)

	si.RemoveSegment("segment-a")

	if si.Len() != 1 {
		t.Errorf("Len() = %d, want 1", si.Len())
	}
	if _, ok := si.Lookup("k3"); !ok {
		t.Error("Lookup(k3) removed along with segment-a's entries")
	}
}

func TestSparseIndex_Reset(t *testing.T) {
	si := New()
	si.Add("k1", "seg", 0)
	si.Reset()
	if si.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", si.Len())
	}
}

func TestSparseIndex_Keys(t *testing.T) {
	si := New()
	si.Add("banana", "seg", 0)
	si.Add("apple", "seg", 1)
	si.Add("cherry", "seg", 2)

	got := si.Keys()
	want := []string{"apple", "banana", "cherry"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestSampler_DueEveryNthRecord(t *testing.T) {
	s := NewSampler(3)

	var got []bool
	for i := 0; i < 9; i++ {
		got = append(got, s.Due())
	}
	want := []bool{false, false, true, false, false, true, false, false, true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Due() sequence = %v, want %v", got, want)
	}
}

func TestSampler_SparsityOneFiresEveryCall(t *testing.T) {
	s := NewSampler(1)
	for i := 0; i < 5; i++ {
		if !s.Due() {
			t.Fatalf("Due() call %d = false, want true with sparsity 1", i)
		}
	}
}

func TestSampler_ZeroSparsityClampedToOne(t *testing.T) {
	s := NewSampler(0)
	if !s.Due() {
		t.Error("Due() with sparsity 0 (clamped to 1) = false on first call, want true")
	}
}
