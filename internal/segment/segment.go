// Package segment manages the immutable, sorted "key,value\n" files that
// a memtable flush produces and that compaction later merges together.
package segment

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kanon-lab/stratadb/internal/amf"
	"github.com/kanon-lab/stratadb/internal/kverrors"
	"github.com/kanon-lab/stratadb/internal/sparseindex"
)

// Store reads and writes segment files inside a single directory. It
// holds no in-memory cache of segment contents; every Search re-reads the
// file, trading memory for the simplicity of always reflecting what is
// actually on disk.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, kverrors.NewSegmentError(kverrors.KindIO, "", "create segments directory", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the on-disk path for a segment name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// NewName builds a segment name as <prefix>-<timestamp>, where timestamp
// is a second-resolution stamp extended with a zero-padded microsecond
// component, matching the distilled source's `strftime('%Y%m%d%H%M%S%f')`.
func NewName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%s", prefix, stamp(t))
}

func stamp(t time.Time) string {
	return t.Format("20060102150405") + fmt.Sprintf("%06d", t.Nanosecond()/1000)
}

// Flush writes orderedKeys (already sorted ascending and unique) against
// values to a new segment file, adding every key to filter and sampling
// entries into idx as directed by sampler. It returns the number of bytes
// written.
func (s *Store) Flush(name string, orderedKeys []string, values map[string]string, filter amf.Filter, idx *sparseindex.SparseIndex, sampler *sparseindex.Sampler) (int, error) {
	f, err := os.Create(s.Path(name))
	if err != nil {
		return 0, kverrors.NewSegmentError(kverrors.KindIO, name, "create segment file", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	offset := 0
	for _, key := range orderedKeys {
		value := values[key]
		line := key + "," + value + "\n"

		if sampler.Due() {
			idx.Add(key, name, offset)
		}
		if err := filter.Add(key); err != nil {
			return offset, err
		}
		if _, err := w.WriteString(line); err != nil {
			return offset, kverrors.NewSegmentError(kverrors.KindIO, name, "write segment record", err)
		}
		offset += len(line)
	}
	if err := w.Flush(); err != nil {
		return offset, kverrors.NewSegmentError(kverrors.KindIO, name, "flush segment file", err)
	}
	return offset, nil
}

// Search looks up key within segment name by repeatedly halving an
// in-memory slice of its lines, mirroring the distilled source's
// slice-based binary search rather than a byte-offset seek.
func (s *Store) Search(name, key string) (string, bool, error) {
	lines, err := s.readLines(name)
	if err != nil {
		return "", false, err
	}

	for len(lines) > 0 {
		ptr := (len(lines) - 1) / 2
		idx := strings.IndexByte(lines[ptr], ',')
		if idx < 0 {
			return "", false, kverrors.NewSegmentError(kverrors.KindCorruption, name, fmt.Sprintf("malformed record at search pivot %d", ptr), nil)
		}
		k := lines[ptr][:idx]

		if k == key {
			return lines[ptr][idx+1:], true, nil
		}
		if key < k {
			lines = lines[:ptr]
		} else {
			lines = lines[ptr+1:]
		}
	}
	return "", false, nil
}

// Keys returns every key stored in segment name, in file order, used when
// rebuilding a filter from scratch.
func Keys(s *Store, name string) ([]string, error) {
	lines, err := s.readLines(name)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(lines))
	for _, line := range lines {
		keys = append(keys, keyOf(line))
	}
	return keys, nil
}

func (s *Store) readLines(name string) ([]string, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, kverrors.NewSegmentError(kverrors.KindIO, name, "open segment for read", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, kverrors.NewSegmentError(kverrors.KindIO, name, "scan segment", err)
	}
	return lines, nil
}

// Merge streams seg1 and seg2 together into a brand new segment named
// <prefix>-<current timestamp> (compaction passes seg1's prefix), and
// returns its name. On a key collision seg2 (the second operand) wins,
// which lets a caller always pass the newer of two segments second.
func (s *Store) Merge(prefix, seg1, seg2 string) (string, error) {
	f1, err := os.Open(s.Path(seg1))
	if err != nil {
		return "", kverrors.NewSegmentError(kverrors.KindIO, seg1, "open left segment for merge", err)
	}
	defer f1.Close()
	f2, err := os.Open(s.Path(seg2))
	if err != nil {
		return "", kverrors.NewSegmentError(kverrors.KindIO, seg2, "open right segment for merge", err)
	}
	defer f2.Close()

	newName := NewName(prefix, time.Now())
	out, err := os.Create(s.Path(newName))
	if err != nil {
		return "", kverrors.NewSegmentError(kverrors.KindIO, newName, "create merged segment", err)
	}
	defer out.Close()

	r1 := bufio.NewScanner(f1)
	r2 := bufio.NewScanner(f2)
	w := bufio.NewWriter(out)

	ok1, ok2 := r1.Scan(), r2.Scan()
	for ok1 || ok2 {
		var k1, k2, line1, line2 string
		if ok1 {
			line1 = r1.Text()
			k1 = keyOf(line1)
		}
		if ok2 {
			line2 = r2.Text()
			k2 = keyOf(line2)
		}

		switch {
		case !ok1:
			w.WriteString(line2 + "\n")
			ok2 = r2.Scan()
		case !ok2:
			w.WriteString(line1 + "\n")
			ok1 = r1.Scan()
		case k1 == k2:
			w.WriteString(line2 + "\n")
			ok1 = r1.Scan()
			ok2 = r2.Scan()
		case k1 < k2:
			w.WriteString(line1 + "\n")
			ok1 = r1.Scan()
		default:
			w.WriteString(line2 + "\n")
			ok2 = r2.Scan()
		}
	}
	if err := w.Flush(); err != nil {
		return "", kverrors.NewSegmentError(kverrors.KindIO, newName, "flush merged segment", err)
	}
	return newName, nil
}

func keyOf(line string) string {
	idx := strings.IndexByte(line, ',')
	if idx < 0 {
		return line
	}
	return line[:idx]
}

// DeleteKeys rewrites segment name, dropping any line whose key is in
// keys, via a temp-file-then-rename swap so a crash mid-write never
// leaves a half-written segment in place. It reports whether anything was
// actually removed.
func (s *Store) DeleteKeys(name string, keys map[string]struct{}) (bool, error) {
	path := s.Path(name)
	tempPath := path + "_temp"

	in, err := os.Open(path)
	if err != nil {
		return false, kverrors.NewSegmentError(kverrors.KindIO, name, "open segment for delete", err)
	}
	defer in.Close()

	out, err := os.Create(tempPath)
	if err != nil {
		return false, kverrors.NewSegmentError(kverrors.KindIO, name, "create temp segment for delete", err)
	}

	deleted := 0
	scanner := bufio.NewScanner(in)
	w := bufio.NewWriter(out)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if _, drop := keys[keyOf(line)]; drop {
			deleted++
			continue
		}
		w.WriteString(line + "\n")
	}
	scanErr := scanner.Err()
	flushErr := w.Flush()
	closeErr := out.Close()

	if scanErr != nil || flushErr != nil || closeErr != nil {
		os.Remove(tempPath)
		return false, kverrors.NewSegmentError(kverrors.KindIO, name, "rewrite segment for delete", firstNonNil(scanErr, flushErr, closeErr))
	}

	if err := os.Remove(path); err != nil {
		return false, kverrors.NewSegmentError(kverrors.KindIO, name, "remove old segment", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return false, kverrors.NewSegmentError(kverrors.KindIO, name, "rename temp segment into place", err)
	}
	return deleted > 0, nil
}

func firstNonNil(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// Remove deletes a segment file entirely, used once its contents have
// been fully absorbed into a merge result.
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.Path(name)); err != nil {
		return kverrors.NewSegmentError(kverrors.KindIO, name, "remove segment", err)
	}
	return nil
}

// SizeBytes reports a segment's current file size, used to decide whether
// it has grown past a level's promotion threshold.
func (s *Store) SizeBytes(name string) (int64, error) {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return 0, kverrors.NewSegmentError(kverrors.KindIO, name, "stat segment", err)
	}
	return info.Size(), nil
}

// ModTime reports a segment's last-modified time, used by compaction to
// decide whether the oldest pair in a level has aged past time_threshold.
func (s *Store) ModTime(name string) (time.Time, error) {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return time.Time{}, kverrors.NewSegmentError(kverrors.KindIO, name, "stat segment", err)
	}
	return info.ModTime(), nil
}
