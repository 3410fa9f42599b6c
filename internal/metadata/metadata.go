// Package metadata persists the engine's bookkeeping — level membership,
// segment-to-filter associations, tunable thresholds, and the sparse
// index — across restarts as one hand-rolled binary blob, in the same
// length-prefixed style the teacher corpus uses for its own on-disk
// structures (see bloom_filter.go's Serialize in the reference corpus).
package metadata

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/kanon-lab/stratadb/internal/amf"
	"github.com/kanon-lab/stratadb/internal/kverrors"
	"github.com/kanon-lab/stratadb/internal/sparseindex"
)

// fileName is the metadata blob's fixed name inside the data directory.
const fileName = "database_metadata"

// FilterDict tracks, per segment, the ordered tuple of AMF instance names
// backing it. Insertion order is preserved (Go maps do not), and segments
// support reverse-insertion-order iteration, since both Get and Delete
// must consult the newest segment first.
type FilterDict struct {
	order []string
	names map[string][]string
}

// NewFilterDict returns an empty FilterDict.
func NewFilterDict() *FilterDict {
	return &FilterDict{names: make(map[string][]string)}
}

// Set records names for segment, appending it to the insertion order the
// first time it is seen and otherwise updating it in place.
func (d *FilterDict) Set(segment string, names []string) {
	if _, exists := d.names[segment]; !exists {
		d.order = append(d.order, segment)
	}
	d.names[segment] = names
}

// Get returns segment's filter-name tuple, if tracked.
func (d *FilterDict) Get(segment string) ([]string, bool) {
	v, ok := d.names[segment]
	return v, ok
}

// Delete removes segment from the dict entirely.
func (d *FilterDict) Delete(segment string) {
	delete(d.names, segment)
	for i, s := range d.order {
		if s == segment {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Len reports how many segments are tracked.
func (d *FilterDict) Len() int { return len(d.order) }

// ReverseEach invokes fn(segment, names) newest-segment-first, stopping
// early if fn returns false. This is the iteration order Get and Delete
// both require: a key written again later always shadows an older one.
func (d *FilterDict) ReverseEach(fn func(segment string, names []string) bool) {
	for i := len(d.order) - 1; i >= 0; i-- {
		seg := d.order[i]
		if !fn(seg, d.names[seg]) {
			return
		}
	}
}

// Store is the full set of bookkeeping state persisted between runs.
type Store struct {
	Level1 []string
	Level2 []string
	Level3 []string
	Dict   *FilterDict

	Count              int
	CurrentSegment     string
	CurrentFilterName  string
	SizeThreshold      int
	SparsityFactor     int
	TimeThresholdHours float64
	Lvl1SizeMB         int
	Lvl2SizeMB         int
	FilterKind         amf.Kind
	FilterExpectedN    int
	FilterFPP          float64

	Index *sparseindex.SparseIndex
}

// Path returns <dataDir>/database_metadata.
func Path(dataDir string) string {
	return filepath.Join(dataDir, fileName)
}

// Load reads a previously Saved Store from dataDir. A missing file is not
// an error: it means this is a fresh database, and the caller should
// proceed with freshly constructed defaults.
func Load(dataDir string) (*Store, bool, error) {
	path := Path(dataDir)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, kverrors.NewSegmentError(kverrors.KindIO, "", "open metadata file", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	s := &Store{Dict: NewFilterDict(), Index: sparseindex.New()}

	var err2 error
	s.Level1, err2 = readStringSlice(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}
	s.Level2, err2 = readStringSlice(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}
	s.Level3, err2 = readStringSlice(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}

	dictLen, err2 := readUint32(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}
	for i := uint32(0); i < dictLen; i++ {
		seg, err2 := readString(r)
		if err2 != nil {
			return nil, false, corruptErr(err2)
		}
		names, err2 := readStringSlice(r)
		if err2 != nil {
			return nil, false, corruptErr(err2)
		}
		s.Dict.Set(seg, names)
	}

	count, err2 := readUint32(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}
	s.Count = int(count)

	if s.CurrentSegment, err2 = readString(r); err2 != nil {
		return nil, false, corruptErr(err2)
	}
	if s.CurrentFilterName, err2 = readString(r); err2 != nil {
		return nil, false, corruptErr(err2)
	}

	sizeThreshold, err2 := readUint32(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}
	s.SizeThreshold = int(sizeThreshold)

	sparsityFactor, err2 := readUint32(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}
	s.SparsityFactor = int(sparsityFactor)

	timeThreshold, err2 := readFloat64(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}
	s.TimeThresholdHours = timeThreshold

	lvl1, err2 := readUint32(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}
	s.Lvl1SizeMB = int(lvl1)

	lvl2, err2 := readUint32(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}
	s.Lvl2SizeMB = int(lvl2)

	kind, err2 := readString(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}
	s.FilterKind = amf.Kind(kind)

	expected, err2 := readUint32(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}
	s.FilterExpectedN = int(expected)

	fpp, err2 := readFloat64(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}
	s.FilterFPP = fpp

	idxLen, err2 := readUint32(r)
	if err2 != nil {
		return nil, false, corruptErr(err2)
	}
	for i := uint32(0); i < idxLen; i++ {
		key, err2 := readString(r)
		if err2 != nil {
			return nil, false, corruptErr(err2)
		}
		seg, err2 := readString(r)
		if err2 != nil {
			return nil, false, corruptErr(err2)
		}
		offset, err2 := readUint32(r)
		if err2 != nil {
			return nil, false, corruptErr(err2)
		}
		s.Index.Add(key, seg, int(offset))
	}

	return s, true, nil
}

// Save writes the current state to <dataDir>/database_metadata,
// overwriting any previous blob.
func (s *Store) Save(dataDir string) error {
	path := Path(dataDir)
	f, err := os.Create(path)
	if err != nil {
		return kverrors.NewSegmentError(kverrors.KindIO, "", "create metadata file", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	writeStringSlice(w, s.Level1)
	writeStringSlice(w, s.Level2)
	writeStringSlice(w, s.Level3)

	writeUint32(w, uint32(s.Dict.Len()))
	for _, seg := range s.Dict.order {
		writeString(w, seg)
		writeStringSlice(w, s.Dict.names[seg])
	}

	writeUint32(w, uint32(s.Count))
	writeString(w, s.CurrentSegment)
	writeString(w, s.CurrentFilterName)
	writeUint32(w, uint32(s.SizeThreshold))
	writeUint32(w, uint32(s.SparsityFactor))
	writeFloat64(w, s.TimeThresholdHours)
	writeUint32(w, uint32(s.Lvl1SizeMB))
	writeUint32(w, uint32(s.Lvl2SizeMB))
	writeString(w, string(s.FilterKind))
	writeUint32(w, uint32(s.FilterExpectedN))
	writeFloat64(w, s.FilterFPP)

	keys := s.Index.Keys()
	writeUint32(w, uint32(len(keys)))
	for _, k := range keys {
		entry, _ := s.Index.Lookup(k)
		writeString(w, k)
		writeString(w, entry.Segment)
		writeUint32(w, uint32(entry.Offset))
	}

	if err := w.Flush(); err != nil {
		return kverrors.NewSegmentError(kverrors.KindIO, "", "flush metadata file", err)
	}
	return nil
}

func corruptErr(cause error) error {
	return kverrors.NewSegmentError(kverrors.KindCorruption, "", "malformed metadata file", cause)
}

func writeUint32(w *bufio.Writer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.Write(buf[:])
}

func readUint32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeFloat64(w *bufio.Writer, v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	w.Write(buf[:])
}

func readFloat64(r *bufio.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}

func writeString(w *bufio.Writer, s string) {
	writeUint32(w, uint32(len(s)))
	w.WriteString(s)
}

func readString(r *bufio.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeStringSlice(w *bufio.Writer, ss []string) {
	writeUint32(w, uint32(len(ss)))
	for _, s := range ss {
		writeString(w, s)
	}
}

func readStringSlice(r *bufio.Reader) ([]string, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
