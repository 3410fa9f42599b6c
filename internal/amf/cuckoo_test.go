package amf

import (
	"fmt"
	"testing"

	"github.com/kanon-lab/stratadb/internal/kverrors"
)

func TestCuckooFilter_BasicOperations(t *testing.T) {
	cf := NewCuckooFilter(1000, 0.01)

	present := []string{"alpha", "beta", "gamma", "delta"}
	for _, key := range present {
		if err := cf.Add(key); err != nil {
			t.Fatalf("Add(%q): %v", key, err)
		}
	}

	for _, key := range present {
		if !cf.Contains(key) {
			t.Errorf("Contains(%q) = false, want true", key)
		}
	}
}

func TestCuckooFilter_Delete(t *testing.T) {
	cf := NewCuckooFilter(100, 0.01)
	if err := cf.Add("doomed"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !cf.Contains("doomed") {
		t.Fatal("Contains(doomed) = false before delete")
	}

	if !cf.Delete("doomed") {
		t.Fatal("Delete(doomed) = false, want true")
	}
	if cf.Contains("doomed") {
		t.Error("Contains(doomed) = true after delete")
	}
	if cf.Delete("doomed") {
		t.Error("second Delete(doomed) = true, want false")
	}
}

func TestCuckooFilter_DeleteAbsentKey(t *testing.T) {
	cf := NewCuckooFilter(100, 0.01)
	if cf.Delete("never-added") {
		t.Error("Delete on absent key = true, want false")
	}
}

func TestCuckooFilter_LoadFactor(t *testing.T) {
	cf := NewCuckooFilter(100, 0.01)
	if lf := cf.LoadFactor(); lf != 0 {
		t.Errorf("LoadFactor() on empty filter = %f, want 0", lf)
	}
	for i := 0; i < 50; i++ {
		if err := cf.Add(fmt.Sprintf("key-%d", i)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if lf := cf.LoadFactor(); lf <= 0 {
		t.Errorf("LoadFactor() after inserts = %f, want > 0", lf)
	}
}

func TestCuckooFilter_FullReportsFilterFullError(t *testing.T) {
	cf := NewCuckooFilter(4, 0.2)
	var fullErr error
	for i := 0; i < 200; i++ {
		if err := cf.Add(fmt.Sprintf("overflow-%d", i)); err != nil {
			fullErr = err
			break
		}
	}
	if fullErr == nil {
		t.Fatal("expected a FilterFull error once the filter was driven past capacity, got nil")
	}
	if !kverrors.Is(fullErr, kverrors.KindFilterFull) {
		t.Errorf("error kind = %v, want KindFilterFull", fullErr)
	}
}

func TestCuckooFilter_FingerprintsIterateAll(t *testing.T) {
	cf := NewCuckooFilter(100, 0.01)
	keys := []string{"a", "b", "c", "d", "e"}
	for _, k := range keys {
		if err := cf.Add(k); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	count := 0
	cf.Fingerprints(func(bucketIndex int, fp uint32) {
		count++
		if fp == 0 {
			t.Error("Fingerprints yielded a zero fingerprint, fingerprint must never be zero")
		}
	})
	if count != len(keys) {
		t.Errorf("Fingerprints yielded %d entries, want %d", count, len(keys))
	}
}

func TestCuckooFilter_AddByFingerprintRoundTrip(t *testing.T) {
	src := NewCuckooFilter(100, 0.01)
	for _, k := range []string{"x", "y", "z"} {
		if err := src.Add(k); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	dst := NewCuckooFilter(100, 0.01)
	src.Fingerprints(func(bucketIndex int, fp uint32) {
		if err := dst.AddByFingerprint(fp, bucketIndex); err != nil {
			t.Fatalf("AddByFingerprint: %v", err)
		}
	})

	var migrated int
	dst.Fingerprints(func(bucketIndex int, fp uint32) { migrated++ })
	if migrated != 3 {
		t.Errorf("destination filter holds %d fingerprints, want 3", migrated)
	}
}
