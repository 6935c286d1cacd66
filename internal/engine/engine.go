// Package engine implements the protocol simulation engine: the per-upload
// state machine that maintains, for each short-hash bucket, a
// popularity-ordered set of candidate files, each carrying a dynamic
// collection of per-client check budgets and a randomized deduplication
// threshold.
package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"

	"github.com/ivoronin/dupesim/internal/record"
)

// Config holds every tunable of the protocol.
type Config struct {
	// ShortHashLen (S) is the short-hash bit length used to bucket files.
	ShortHashLen int
	// HashLen (H) is the bit length of a full upload hash.
	HashLen int
	// CheckLimit (RL_c) is the check budget issued to each new checker.
	CheckLimit int
	// ProbeLimit (RL_u) is the max number of candidate files probed per upload.
	ProbeLimit int
	// MaxThreshold is the inclusive upper bound of the per-file threshold draw.
	MaxThreshold int
	// OfflineRate is the per-checker independent offline probability, [0,1).
	OfflineRate float64
	// WithSizes enables size-aware bucketing.
	WithSizes bool
	// OneSuccessfulCheck replaces the matched checker's budget with
	// CheckLimit on a deduplicating match, instead of appending a new one.
	OneSuccessfulCheck bool
	// DeduplicateBelowThreshold ignores the threshold gate entirely.
	DeduplicateBelowThreshold bool
	// OnlyFinal suppresses per-event CSV output.
	OnlyFinal bool
}

// DefaultConfig returns the spec's default parameter set.
func DefaultConfig() Config {
	return Config{
		ShortHashLen: 13,
		HashLen:      160,
		CheckLimit:   70,
		ProbeLimit:   30,
		MaxThreshold: 20,
		OfflineRate:  0.0,
	}
}

// ErrBadConfig is returned by Config.Validate and New for an invalid
// parameter combination.
var ErrBadConfig = errors.New("engine: invalid configuration")

// Validate rejects configurations the spec declares unusable.
func (c Config) Validate() error {
	if c.CheckLimit <= 0 && c.ProbeLimit <= 0 {
		return fmt.Errorf("%w: check-limit and pake-runs are both non-positive", ErrBadConfig)
	}
	if c.ShortHashLen > c.HashLen {
		return fmt.Errorf("%w: short-hash-length (%d) exceeds hash-length (%d)", ErrBadConfig, c.ShortHashLen, c.HashLen)
	}
	if c.OfflineRate < 0 || c.OfflineRate >= 1 {
		return fmt.Errorf("%w: offline-rate (%g) not in [0,1)", ErrBadConfig, c.OfflineRate)
	}
	if c.MaxThreshold < 2 {
		return fmt.Errorf("%w: max-threshold (%d) below 2", ErrBadConfig, c.MaxThreshold)
	}
	return nil
}

// fileRecord is one bucket entry. checkers is kept nondecreasing; index 0
// is the front (smallest remaining budget, next to expire). The one
// exception is a OneSuccessfulCheck replacement: the front budget is reset
// to CheckLimit in place and the list is not reordered on that step.
type fileRecord struct {
	hash      record.Hash
	checkers  []int
	copies    uint64
	threshold int
}

// ErrEmptyStream is returned by Summary when no events were consumed.
var ErrEmptyStream = errors.New("engine: empty stream")

// Summary is the final per-run report.
type Summary struct {
	CheckLimit   int
	ProbeLimit   int
	MaxThreshold int
	OfflineRate  float64
	DDPFiles     float64
	DDPBytes     float64
}

// Engine is the single-threaded, strictly sequential protocol simulator.
// Its zero value is not usable; construct with New.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	buckets map[uint64][]*fileRecord

	csv *bufio.Writer

	FilesUploaded  uint64
	DataUploaded   uint64
	FilesInStorage uint64
	DataInStorage  uint64
}

// New constructs an Engine. csvOut receives one CSV line per processed
// event unless cfg.OnlyFinal is set; it may be nil in that case.
func New(cfg Config, rng *rand.Rand, csvOut io.Writer) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		rng:     rng,
		buckets: make(map[uint64][]*fileRecord),
	}
	if !cfg.OnlyFinal && csvOut != nil {
		e.csv = bufio.NewWriter(csvOut)
	}

	return e, nil
}

// bitsAt reads nbits bits starting at bit position shift (counting from the
// least-significant bit of the big-endian value h), equivalent to
// (value >> shift) & ((1<<nbits)-1). Bits beyond the 160-bit width of h are
// implicitly zero.
func bitsAt(h record.Hash, shift, nbits int) uint64 {
	var out uint64
	for i := 0; i < nbits; i++ {
		bitPos := shift + i
		byteIdx := len(h) - 1 - bitPos/8
		if byteIdx < 0 || byteIdx >= len(h) {
			continue
		}
		bit := (h[byteIdx] >> uint(bitPos%8)) & 1
		out |= uint64(bit) << uint(i)
	}
	return out
}

// bucketID computes the bucket key for a (hash, size) pair: the top S bits
// of the H-bit hash, OR'd with size<<S when size-aware bucketing is on.
func (e *Engine) bucketID(h record.Hash, size uint64) uint64 {
	short := bitsAt(h, e.cfg.HashLen-e.cfg.ShortHashLen, e.cfg.ShortHashLen)
	if !e.cfg.WithSizes {
		return short
	}
	return short | (size << uint(e.cfg.ShortHashLen))
}

// fixFront restores nondecreasing order after checkers[0] changed, by
// bubbling it forward with adjacent swaps. Only checkers[0] can ever be out
// of place, so one pass suffices.
func fixFront(c []int) {
	for i := 0; i+1 < len(c) && c[i] > c[i+1]; i++ {
		c[i], c[i+1] = c[i+1], c[i]
	}
}

// bubbleUp restores nonincreasing popularity order after bucket[idx]'s
// copies increased, by bubbling it toward the front with adjacent swaps.
func bubbleUp(bucket []*fileRecord, idx int) {
	for idx > 0 && bucket[idx].copies > bucket[idx-1].copies {
		bucket[idx-1], bucket[idx] = bucket[idx], bucket[idx-1]
		idx--
	}
}

// Step processes one upload event, mutating engine state and, unless
// OnlyFinal is set, buffering one CSV line.
func (e *Engine) Step(r record.Record) error {
	e.FilesUploaded++
	e.DataUploaded += r.Size

	id := e.bucketID(r.Hash, r.Size)
	bucket := e.buckets[id]

	filesConsidered := 0
	matchFound := false
	matchIndex := -1
	fileDeduplicated := false

	for idx, f := range bucket {
		if filesConsidered == e.cfg.ProbeLimit {
			break
		}
		if len(f.checkers) == 0 {
			continue
		}

		n := len(f.checkers)
		if e.cfg.OfflineRate > 0 {
			if e.rng.Float64() < math.Pow(e.cfg.OfflineRate, float64(n)) {
				continue
			}
		}

		filesConsidered++
		f.checkers[0]--

		replaced := false
		if f.hash == r.Hash && !matchFound {
			matchFound = true
			matchIndex = idx

			// f.copies is incremented to count this upload before the
			// threshold gate is evaluated: the upload that brings the
			// file to its threshold is itself the first deduplicated one
			// (a file becomes Vouched, and stays deduplicated, the
			// moment its copy count reaches threshold).
			f.copies++
			if e.cfg.DeduplicateBelowThreshold || f.copies >= uint64(f.threshold) {
				fileDeduplicated = true
			}

			if e.cfg.OneSuccessfulCheck && fileDeduplicated {
				f.checkers[0] = e.cfg.CheckLimit
				replaced = true
			} else if e.cfg.CheckLimit > 0 {
				f.checkers = append(f.checkers, e.cfg.CheckLimit)
			}
		}

		if f.checkers[0] <= 0 {
			f.checkers = f.checkers[1:]
		} else if len(f.checkers) > 1 && !replaced {
			fixFront(f.checkers)
		}
	}

	if !fileDeduplicated {
		e.FilesInStorage++
		e.DataInStorage += r.Size
	}

	if !matchFound {
		// RL_c <= 0 means a freshly created record's sole checker is
		// already spent: it holds no checkers at all (Expired on arrival)
		// rather than one with a non-positive budget.
		var checkers []int
		if e.cfg.CheckLimit > 0 {
			checkers = []int{e.cfg.CheckLimit}
		}
		bucket = append(bucket, &fileRecord{
			hash:      r.Hash,
			checkers:  checkers,
			copies:    1,
			threshold: 2 + e.rng.IntN(e.cfg.MaxThreshold-2+1),
		})
	} else {
		bubbleUp(bucket, matchIndex)
	}
	e.buckets[id] = bucket

	if e.csv != nil {
		if _, err := fmt.Fprintf(e.csv, "%d,%d,%d,%d\n", e.FilesInStorage, e.FilesUploaded, e.DataInStorage, e.DataUploaded); err != nil {
			return fmt.Errorf("engine: write csv: %w", err)
		}
	}

	return nil
}

// Flush flushes any buffered CSV output. Callers must call it after the
// last Step.
func (e *Engine) Flush() error {
	if e.csv == nil {
		return nil
	}
	return e.csv.Flush()
}

// Summary computes the final report. It returns ErrEmptyStream if no
// events were ever processed.
func (e *Engine) Summary() (Summary, error) {
	if e.FilesUploaded == 0 {
		return Summary{}, ErrEmptyStream
	}

	return Summary{
		CheckLimit:   e.cfg.CheckLimit,
		ProbeLimit:   e.cfg.ProbeLimit,
		MaxThreshold: e.cfg.MaxThreshold,
		OfflineRate:  e.cfg.OfflineRate,
		DDPFiles:     1 - float64(e.FilesInStorage)/float64(e.FilesUploaded),
		DDPBytes:     1 - float64(e.DataInStorage)/float64(e.DataUploaded),
	}, nil
}
