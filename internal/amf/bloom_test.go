package amf

import "testing"

func TestBloomFilter_BasicOperations(t *testing.T) {
	bf := NewBloomFilter(1000, 0.01)

	present := []string{"alpha", "beta", "gamma", "delta"}
	for _, key := range present {
		if err := bf.Add(key); err != nil {
			t.Fatalf("Add(%q): %v", key, err)
		}
	}

	for _, key := range present {
		if !bf.Contains(key) {
			t.Errorf("Contains(%q) = false, want true", key)
		}
	}

	if bf.Contains("definitely-absent-key-xyz") {
		// A false positive here is possible but vanishingly unlikely at
		// this fpp and item count; if this starts flaking, the hash
		// distribution has a real problem.
		t.Errorf("Contains reported a likely false positive for an absent key")
	}
}

func TestBloomFilter_NeverFalseNegative(t *testing.T) {
	bf := NewBloomFilter(50, 0.2)
	keys := make([]string, 50)
	for i := range keys {
		keys[i] = string(rune('a'+i%26)) + string(rune('A'+i/26))
		if err := bf.Add(keys[i]); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	for _, k := range keys {
		if !bf.Contains(k) {
			t.Fatalf("Contains(%q) = false after Add, bloom filter must never false-negative", k)
		}
	}
}

func TestBloomFilter_SerializeRoundTrip(t *testing.T) {
	bf := NewBloomFilter(500, 0.05)
	for _, key := range []string{"one", "two", "three"} {
		if err := bf.Add(key); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	bf.SetCount(2)

	data := bf.Serialize()
	got, err := DeserializeBloomFilter(data)
	if err != nil {
		t.Fatalf("DeserializeBloomFilter: %v", err)
	}

	if got.Count() != 2 {
		t.Errorf("Count() = %d, want 2", got.Count())
	}
	for _, key := range []string{"one", "two", "three"} {
		if !got.Contains(key) {
			t.Errorf("restored filter lost membership for %q", key)
		}
	}
}

func TestDeserializeBloomFilter_Truncated(t *testing.T) {
	if _, err := DeserializeBloomFilter([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated input, got nil")
	}
}

func TestBloomFilter_Union(t *testing.T) {
	a := NewBloomFilter(100, 0.01)
	b := NewBloomFilter(100, 0.01)
	a.Add("from-a")
	b.Add("from-b")

	if err := a.Union(b); err != nil {
		t.Fatalf("Union: %v", err)
	}
	if !a.Contains("from-a") || !a.Contains("from-b") {
		t.Errorf("union lost membership from one of the operands")
	}

	mismatched := NewBloomFilter(10000, 0.01)
	if err := a.Union(mismatched); err == nil {
		t.Error("expected error unioning filters of different sizes")
	}
}
