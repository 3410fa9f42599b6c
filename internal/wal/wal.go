// Package wal implements the write-ahead log that mirrors every memtable
// insert to disk before the write is acknowledged, so a crash between
// flushes can be recovered by replaying it back into an empty memtable.
package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kanon-lab/stratadb/internal/kverrors"
)

// FileName is the WAL's fixed name inside the data directory.
const FileName = "wal.log"

// Manager owns one WAL file handle for the lifetime of an Engine. It is
// not a package-level singleton: each Engine instance constructs its own
// Manager, so two engines pointed at different data directories never
// share a cached handle.
type Manager struct {
	path string
	file *os.File
}

// Open creates (or reopens) the WAL file at <dataDir>/wal.log in
// append mode, caching the handle for subsequent Append calls.
func Open(dataDir string) (*Manager, error) {
	path := filepath.Join(dataDir, FileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, kverrors.NewWALError(kverrors.KindIO, path, "open wal", err)
	}
	return &Manager{path: path, file: f}, nil
}

// Append writes one "key,value\n" record and flushes it before returning,
// so every acknowledged Set is durable against a crash before the next
// memtable flush.
func (m *Manager) Append(key, value string) error {
	if strings.ContainsAny(key, ",\n") || strings.ContainsAny(value, ",\n") {
		return kverrors.NewValidationError("key/value", "key and value must not contain ',' or newline")
	}
	if _, err := fmt.Fprintf(m.file, "%s,%s\n", key, value); err != nil {
		return kverrors.NewWALError(kverrors.KindIO, m.path, "append wal record", err)
	}
	if err := m.file.Sync(); err != nil {
		return kverrors.NewWALError(kverrors.KindIO, m.path, "sync wal", err)
	}
	return nil
}

// Replay reads every record currently in the WAL, in append order, and
// invokes apply(key, value) for each. It is called once at startup to
// rebuild the memtable from whatever survived the last flush.
func (m *Manager) Replay(apply func(key, value string)) error {
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return kverrors.NewWALError(kverrors.KindIO, m.path, "open wal for replay", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ',')
		if idx < 0 {
			return kverrors.NewWALError(kverrors.KindCorruption, m.path, fmt.Sprintf("malformed wal record at line %d", lineNo), nil)
		}
		apply(line[:idx], line[idx+1:])
	}
	if err := scanner.Err(); err != nil {
		return kverrors.NewWALError(kverrors.KindIO, m.path, "scan wal", err)
	}
	return nil
}

// Clear truncates the WAL and reopens a fresh append handle, called right
// after a successful memtable flush so the log never outgrows the data it
// would need to replay.
func (m *Manager) Clear() error {
	if err := m.file.Close(); err != nil {
		return kverrors.NewWALError(kverrors.KindIO, m.path, "close wal before clear", err)
	}
	if err := os.Truncate(m.path, 0); err != nil {
		return kverrors.NewWALError(kverrors.KindIO, m.path, "truncate wal", err)
	}
	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return kverrors.NewWALError(kverrors.KindIO, m.path, "reopen wal after clear", err)
	}
	m.file = f
	return nil
}

// Close releases the underlying file handle.
func (m *Manager) Close() error {
	if err := m.file.Close(); err != nil {
		return kverrors.NewWALError(kverrors.KindIO, m.path, "close wal", err)
	}
	return nil
}
