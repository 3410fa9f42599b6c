// Package compaction merges aging segments within a level and decides
// when a segment has grown large enough to promote to the next one. It
// runs synchronously, called inline from the engine's write path rather
// than from a background goroutine, per the single-threaded cooperative
// model the rest of this repository follows.
package compaction

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kanon-lab/stratadb/internal/amf"
	"github.com/kanon-lab/stratadb/internal/metadata"
	"github.com/kanon-lab/stratadb/internal/segment"
	"github.com/kanon-lab/stratadb/internal/sparseindex"
)

// Config carries the tunables that decide when segments merge and when a
// merged segment has outgrown its level.
type Config struct {
	TimeThresholdHours float64
	Lvl1SizeMB         int
	Lvl2SizeMB         int
	FilterExpectedN    int
	FilterFPP          float64
	FilterKind         amf.Kind
}

// DefaultConfig mirrors the distilled source's defaults: merge the two
// oldest segments in a level once the oldest has sat for time_threshold
// hours, and promote a segment once it passes 35MB (L1->L2) or 100MB
// (L2->L3).
func DefaultConfig() Config {
	return Config{
		TimeThresholdHours: 0.25 / 40,
		Lvl1SizeMB:         35,
		Lvl2SizeMB:         100,
		FilterExpectedN:    100000,
		FilterFPP:          0.2,
		FilterKind:         amf.KindCuckoo,
	}
}

// Engine performs the time-gated merges and size-based promotions across
// the three levels, keeping the segment store, the filter dict, and the
// in-memory filter instances consistent with each other as it goes.
type Engine struct {
	store   *segment.Store
	dict    *metadata.FilterDict
	filters map[string]amf.Filter
	index   *sparseindex.SparseIndex
	cfg     Config
	log     *zap.SugaredLogger
}

// New returns an Engine sharing the given segment store, filter dict, and
// live filter-instance map with the owning Engine.
func New(store *segment.Store, dict *metadata.FilterDict, filters map[string]amf.Filter, index *sparseindex.SparseIndex, cfg Config, log *zap.SugaredLogger) *Engine {
	return &Engine{store: store, dict: dict, filters: filters, index: index, cfg: cfg, log: log}
}

// Run applies one compaction pass: L1 and L2 merge whenever they hold more
// than one segment, each followed by promoting oversized segments to the
// next level; L3 merges whenever it holds more than four, with no
// promotion target above it.
func (e *Engine) Run(level1, level2, level3 *[]string) error {
	if len(*level1) > 1 {
		if err := e.mergeOldestPair(level1); err != nil {
			return err
		}
		e.promote(level1, level2, e.cfg.Lvl1SizeMB)
	}
	if len(*level2) > 1 {
		if err := e.mergeOldestPair(level2); err != nil {
			return err
		}
		e.promote(level2, level3, e.cfg.Lvl2SizeMB)
	}
	if len(*level3) > 4 {
		if err := e.mergeOldestPair(level3); err != nil {
			return err
		}
	}
	return nil
}

// mergeOldestPair merges the two oldest (lexicographically smallest
// timestamp) segments in level if the very oldest has aged past
// TimeThresholdHours, replacing both with the merge result in place.
func (e *Engine) mergeOldestPair(level *[]string) error {
	sorted := append([]string(nil), *level...)
	sort.Strings(sorted)
	oldest := sorted[0]

	due, err := e.agedPast(oldest)
	if err != nil {
		return err
	}
	if !due {
		return nil
	}

	seg1, seg2 := sorted[0], sorted[1]
	prefix := strings.SplitN(seg1, "-", 2)[0]

	newSeg, err := e.store.Merge(prefix, seg1, seg2)
	if err != nil {
		return err
	}

	*level = removeAndAppend(*level, seg1, seg2, newSeg)

	names1, _ := e.dict.Get(seg1)
	names2, _ := e.dict.Get(seg2)
	if err := e.combineFilters(newSeg, names1, names2); err != nil {
		return err
	}
	e.dict.Delete(seg1)
	e.dict.Delete(seg2)
	e.index.RemoveSegment(seg1)
	e.index.RemoveSegment(seg2)

	for _, n := range names1 {
		delete(e.filters, n)
	}
	for _, n := range names2 {
		delete(e.filters, n)
	}

	if err := e.store.Remove(seg1); err != nil {
		return err
	}
	if err := e.store.Remove(seg2); err != nil {
		return err
	}

	if e.log != nil {
		e.log.Infow("merged segments", "left", seg1, "right", seg2, "result", newSeg)
	}
	return nil
}

// promote moves every segment in from whose file size exceeds sizeMB
// megabytes into to, the mirror of the distilled source's
// _move_large_files.
func (e *Engine) promote(from, to *[]string, sizeMB int) {
	var kept []string
	for _, seg := range *from {
		size, err := e.store.SizeBytes(seg)
		if err != nil {
			kept = append(kept, seg)
			continue
		}
		if float64(size)/1_000_000 > float64(sizeMB) {
			*to = append(*to, seg)
			if e.log != nil {
				e.log.Infow("promoted segment", "segment", seg, "size_bytes", size)
			}
			continue
		}
		kept = append(kept, seg)
	}
	*from = kept
}

func removeAndAppend(level []string, seg1, seg2, newSeg string) []string {
	out := make([]string, 0, len(level))
	for _, s := range level {
		if s != seg1 && s != seg2 {
			out = append(out, s)
		}
	}
	return append(out, newSeg)
}

// agedPast reports whether segName's modification time is more than
// TimeThresholdHours in the past.
func (e *Engine) agedPast(segName string) (bool, error) {
	mtime, err := e.store.ModTime(segName)
	if err != nil {
		return false, err
	}
	return time.Since(mtime).Hours() > e.cfg.TimeThresholdHours, nil
}

// combineFilters decides how newSeg's approximate-membership coverage is
// rebuilt from its two predecessors' filter-name tuples. With more than
// three names combined, a full rescan of newSeg builds one fresh filter
// (cheaper to reason about than chaining many partial merges). With two or
// three, it tries an in-place fingerprint merge of the first pair, bounded
// by a combined load factor of 0.50; a third name, if present, is carried
// over unmodified rather than silently dropped.
func (e *Engine) combineFilters(newSeg string, names1, names2 []string) error {
	combined := append(append([]string{}, names1...), names2...)

	if len(combined) > 3 {
		name, err := e.rebuildFilter(newSeg, combined)
		if err != nil {
			return err
		}
		e.dict.Set(newSeg, []string{name})
		return nil
	}

	if len(combined) < 2 {
		e.dict.Set(newSeg, combined)
		return nil
	}

	merged, ok := e.tryCompress(combined[0], combined[1])
	if !ok {
		e.dict.Set(newSeg, combined)
		return nil
	}

	tuple := []string{merged}
	if len(combined) == 3 {
		tuple = append(tuple, combined[2])
	}
	e.dict.Set(newSeg, tuple)
	return nil
}

// rebuildFilter scans newSeg's records from scratch into a brand-new
// filter sized for the sum of the combined names' summarized counts.
func (e *Engine) rebuildFilter(newSeg string, combined []string) (string, error) {
	total := 0
	for _, n := range combined {
		_, count, _, err := amf.ParseName(n)
		if err != nil {
			return "", err
		}
		total += count
	}
	if total == 0 {
		total = 1
	}

	var fresh amf.Filter
	if e.cfg.FilterKind == amf.KindBloom {
		fresh = amf.NewBloomFilter(uint64(e.cfg.FilterExpectedN*total), e.cfg.FilterFPP)
	} else {
		fresh = amf.NewCuckooFilter(e.cfg.FilterExpectedN*total, e.cfg.FilterFPP)
	}
	if err := rescanInto(e.store, newSeg, fresh); err != nil {
		return "", err
	}

	switch f := fresh.(type) {
	case *amf.BloomFilter:
		f.SetCount(total)
	case *amf.CuckooFilter:
		f.SetCount(total)
	}

	name := amf.Name(e.cfg.FilterKind, total, strings.SplitN(newSeg, "-", 2)[1])
	e.filters[name] = fresh
	return name, nil
}

// tryCompress appends leftName's and rightName's fingerprints into a
// single Cuckoo filter when their combined load factor stays at or below
// 0.50, the same ceiling the distilled source applies; above it this
// reports false and combineFilters carries both names forward unchanged.
// Bloom filters have no fingerprint representation to
// compress and always report false here, matching the fact that a Bloom
// filter only ever carries a single summarized count.
func (e *Engine) tryCompress(leftName, rightName string) (string, bool) {
	left, lok := e.filters[leftName].(*amf.CuckooFilter)
	right, rok := e.filters[rightName].(*amf.CuckooFilter)
	if !lok || !rok {
		return "", false
	}
	if left.LoadFactor()+right.LoadFactor() > 0.50 {
		return "", false
	}

	right.Fingerprints(func(bucketIndex int, fp uint32) {
		left.AddByFingerprint(fp, bucketIndex)
	})

	_, lc, _, _ := amf.ParseName(leftName)
	_, rc, _, _ := amf.ParseName(rightName)
	total := lc + rc
	left.SetCount(total)

	parts := strings.SplitN(leftName, "-", 3)
	newName := amf.Name(amf.KindCuckoo, total, parts[2])

	delete(e.filters, leftName)
	delete(e.filters, rightName)
	e.filters[newName] = left
	return newName, true
}

// rescanInto reads every record of segName and adds its key to filter,
// used both by rebuildFilter and by startup's filter reconstruction.
func rescanInto(store *segment.Store, segName string, filter amf.Filter) error {
	keys, err := segment.Keys(store, segName)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := filter.Add(k); err != nil {
			return fmt.Errorf("rebuild filter for %s: %w", segName, err)
		}
	}
	return nil
}

// RebuildFilterFor constructs a fresh filter of the configured kind for an
// existing segment by rescanning its contents, used at startup to
// reconstruct the in-memory filters the distilled source never actually
// persisted across restarts.
func RebuildFilterFor(store *segment.Store, segName string, kind amf.Kind, expectedN int, fpp float64) (amf.Filter, error) {
	var f amf.Filter
	if kind == amf.KindBloom {
		f = amf.NewBloomFilter(uint64(expectedN), fpp)
	} else {
		f = amf.NewCuckooFilter(expectedN, fpp)
	}
	if err := rescanInto(store, segName, f); err != nil {
		return nil, err
	}
	return f, nil
}
