package memtable

import (
	"reflect"
	"testing"
)

func TestMemtable_PutGetDelete(t *testing.T) {
	m := New()

	m.Put("a", "1")
	m.Put("b", "2")

	if v, ok := m.Get("a"); !ok || v != "1" {
		t.Errorf("Get(a) = (%q, %v), want (1, true)", v, ok)
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}

	if !m.Delete("a") {
		t.Error("Delete(a) = false, want true")
	}
	if _, ok := m.Get("a"); ok {
		t.Error("Get(a) after delete still reports present")
	}
	if m.Count() != 1 {
		t.Errorf("Count() after delete = %d, want 1", m.Count())
	}

	if m.Delete("a") {
		t.Error("second Delete(a) = true, want false")
	}
}

func TestMemtable_Overwrite(t *testing.T) {
	m := New()
	m.Put("k", "short")
	before := m.TotalBytes()
	m.Put("k", "a much longer value")
	after := m.TotalBytes()

	if after <= before {
		t.Errorf("TotalBytes after overwrite = %d, want > %d", after, before)
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (overwrite must not duplicate)", m.Count())
	}
}

func TestMemtable_InOrder(t *testing.T) {
	m := New()
	for _, k := range []string{"charlie", "alpha", "bravo"} {
		m.Put(k, "v")
	}
	got := m.InOrder()
	want := []string{"alpha", "bravo", "charlie"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("InOrder() = %v, want %v", got, want)
	}
}

func TestMemtable_Reset(t *testing.T) {
	m := New()
	m.Put("a", "1")
	m.Put("b", "2")

	m.Reset()

	if m.Count() != 0 {
		t.Errorf("Count() after Reset = %d, want 0", m.Count())
	}
	if m.TotalBytes() != 0 {
		t.Errorf("TotalBytes() after Reset = %d, want 0", m.TotalBytes())
	}
	if _, ok := m.Get("a"); ok {
		t.Error("Get(a) after Reset still reports present")
	}
}
