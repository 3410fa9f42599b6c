package engine

import "github.com/kanon-lab/stratadb/internal/amf"

// Config carries every tunable knob the engine needs at startup. There is
// no on-disk override for these: the caller supplies the same Config each
// time a data directory is reopened, the same way the teacher corpus
// threads a *Config struct into its storage layer rather than mixing
// runtime flags with persisted state.
type Config struct {
	// DataDir holds segments, the WAL, and the metadata blob.
	DataDir string

	// SizeThreshold is the memtable entry count that triggers a flush.
	SizeThreshold int
	// SparsityFactor divides SizeThreshold to yield the sparse index's
	// sampling interval.
	SparsityFactor int
	// TimeThresholdHours is how long the oldest segment in a level must
	// have sat unmerged before compaction picks it up.
	TimeThresholdHours float64
	// Lvl1SizeMB / Lvl2SizeMB are the promotion thresholds out of L1 and
	// L2, in megabytes.
	Lvl1SizeMB int
	Lvl2SizeMB int

	// FilterKind selects Bloom or Cuckoo filters for new segments.
	FilterKind amf.Kind
	// FilterExpectedItems sizes a fresh filter for roughly one flush's
	// worth of keys.
	FilterExpectedItems int
	// FilterFPP is the target false-positive probability for a fresh
	// filter.
	FilterFPP float64

	// SegmentPrefix names new segment files, <prefix>-<timestamp>.
	SegmentPrefix string
}

// DefaultCuckooConfig returns the distilled source's own defaults for a
// Cuckoo-backed database: a 100k-entry memtable threshold, one sampled
// index entry per 1,000 records (100k / sparsity factor 100), a
// ~22.5-second merge window, and
// 35MB/100MB level promotion sizes.
func DefaultCuckooConfig(dataDir string) Config {
	return Config{
		DataDir:             dataDir,
		SizeThreshold:       100000,
		SparsityFactor:      100,
		TimeThresholdHours:  0.25 / 40,
		Lvl1SizeMB:          35,
		Lvl2SizeMB:          100,
		FilterKind:          amf.KindCuckoo,
		FilterExpectedItems: 100000,
		FilterFPP:           0.2,
		SegmentPrefix:       "segment",
	}
}

// DefaultBloomConfig is the distilled source's Bloom-variant defaults: a
// smaller 50k-entry memtable threshold (Bloom filters carry no per-key
// delete, so this variant leans on more frequent flushes/compaction to
// bound stale reads instead) and the same 0.2 target fpp as Cuckoo.
func DefaultBloomConfig(dataDir string) Config {
	cfg := DefaultCuckooConfig(dataDir)
	cfg.SizeThreshold = 50000
	cfg.FilterKind = amf.KindBloom
	cfg.FilterExpectedItems = 50000
	return cfg
}
