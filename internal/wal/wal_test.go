package wal

import (
	"os"
	"reflect"
	"testing"

	"github.com/kanon-lab/stratadb/internal/kverrors"
)

func TestManager_AppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	records := [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}}
	for _, r := range records {
		if err := m.Append(r[0], r[1]); err != nil {
			t.Fatalf("Append(%q, %q): %v", r[0], r[1], err)
		}
	}

	var replayed [][2]string
	if err := m.Replay(func(key, value string) {
		replayed = append(replayed, [2]string{key, value})
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if !reflect.DeepEqual(replayed, records) {
		t.Errorf("Replay produced %v, want %v", replayed, records)
	}
}

func TestManager_AppendRejectsDelimiters(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	cases := []struct{ key, value string }{
		{"bad,key", "value"},
		{"key", "bad,value"},
		{"bad\nkey", "value"},
	}
	for _, c := range cases {
		err := m.Append(c.key, c.value)
		if err == nil {
			t.Errorf("Append(%q, %q) = nil error, want rejection", c.key, c.value)
			continue
		}
		if !kverrors.Is(err, kverrors.KindInvalidInput) {
			t.Errorf("Append(%q, %q) error kind = %v, want KindInvalidInput", c.key, c.value, err)
		}
	}
}

func TestManager_Clear(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if err := m.Append("k", "v"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	var replayed int
	if err := m.Replay(func(key, value string) { replayed++ }); err != nil {
		t.Fatalf("Replay after Clear: %v", err)
	}
	if replayed != 0 {
		t.Errorf("Replay after Clear produced %d records, want 0", replayed)
	}

	if err := m.Append("after-clear", "v2"); err != nil {
		t.Fatalf("Append after Clear: %v", err)
	}
}

func TestManager_ReplayMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if err := os.Remove(m.path); err != nil {
		t.Fatalf("remove wal file: %v", err)
	}

	if err := m.Replay(func(key, value string) {}); err != nil {
		t.Fatalf("Replay with the wal file missing: %v", err)
	}
}

func TestManager_ReplayRejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if err := m.file.Close(); err != nil {
		t.Fatalf("close underlying file: %v", err)
	}
	if err := os.WriteFile(m.path, []byte("no-comma-here\n"), 0644); err != nil {
		t.Fatalf("write malformed wal file: %v", err)
	}

	err = m.Replay(func(key, value string) {})
	if err == nil {
		t.Fatal("expected an error replaying a malformed line, got nil")
	}
	if !kverrors.Is(err, kverrors.KindCorruption) {
		t.Errorf("error kind = %v, want KindCorruption", err)
	}
}
