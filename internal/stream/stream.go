// Package stream generates a randomized, packed upload-event stream from a
// popularity table under a selectable temporal distribution.
package stream

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/ivoronin/dupesim/internal/poptable"
	"github.com/ivoronin/dupesim/internal/record"
	"github.com/ivoronin/dupesim/internal/shuffle"
)

// Distribution selects how a file's copies are spread across ticks.
type Distribution string

const (
	// Uniform places every event at tick 0.
	Uniform Distribution = "uniform"
	// Normal draws per-file mu/sigma uniformly, then places each copy at a
	// Gaussian-distributed tick.
	Normal Distribution = "normal"
	// LogNormal is Normal with log-scaled mu/sigma and log-normal draws.
	LogNormal Distribution = "lognormal"
)

const (
	muMin, muMax       = 1, 20000
	sigmaMin, sigmaMax = 20, 2000
)

// ErrUnknownDistribution is returned for a Distribution value other than
// Uniform, Normal, or LogNormal.
type ErrUnknownDistribution Distribution

func (e ErrUnknownDistribution) Error() string {
	return fmt.Sprintf("stream: unknown distribution %q", string(e))
}

type tickedRecord struct {
	tick int64
	rec  record.Record
}

// ticksFor returns the len(copies)=count ticks at which one file's copies
// occur, under dist, using rng for all random draws.
func ticksFor(rng *rand.Rand, dist Distribution, count uint64) ([]int64, error) {
	ticks := make([]int64, count)

	switch dist {
	case Uniform:
		// all events occur at tick 0; left as the zero value.
	case Normal:
		mu := float64(muMin + rng.IntN(muMax-muMin+1))
		sigma := float64(sigmaMin + rng.IntN(sigmaMax-sigmaMin+1))
		for i := range ticks {
			ticks[i] = int64(math.Round(rng.NormFloat64()*sigma + mu))
		}
	case LogNormal:
		mu := math.Log(float64(muMin + rng.IntN(muMax-muMin+1)))
		sigma := math.Log(float64(sigmaMin + rng.IntN(sigmaMax-sigmaMin+1)))
		for i := range ticks {
			ticks[i] = int64(math.Round(math.Exp(rng.NormFloat64()*sigma + mu)))
		}
	default:
		return nil, ErrUnknownDistribution(dist)
	}

	return ticks, nil
}

// Generate reads popularity entries from pr, expands each into `count`
// upload events placed under dist, and writes the packed stream to w in
// nondecreasing tick order with a Fisher-Yates shuffle within each tick. It
// returns the SHA-256 digest of the bytes written, so that reruns with the
// same seed are verifiable.
func Generate(rng *rand.Rand, dist Distribution, pr *poptable.Reader, w io.Writer) ([sha256.Size]byte, error) {
	byTick := make(map[int64][]record.Record)

	var readErr error
	pr.All(func(e poptable.Entry, err error) bool {
		if err != nil {
			readErr = err
			return false
		}

		ticks, terr := ticksFor(rng, dist, e.Count)
		if terr != nil {
			readErr = terr
			return false
		}

		for _, t := range ticks {
			byTick[t] = append(byTick[t], record.Record{Hash: e.Hash, Size: e.Size})
		}

		return true
	})
	if readErr != nil {
		var zero [sha256.Size]byte
		return zero, readErr
	}

	ticks := make([]int64, 0, len(byTick))
	for t := range byTick {
		ticks = append(ticks, t)
	}
	slices.Sort(ticks)

	digest := sha256.New()
	mw := io.MultiWriter(w, digest)

	for _, t := range ticks {
		recs := byTick[t]
		shuffle.Shuffle(rng, recs)

		for _, r := range recs {
			buf, err := record.Encode(r)
			if err != nil {
				var zero [sha256.Size]byte
				return zero, err
			}
			if _, err := mw.Write(buf[:]); err != nil {
				var zero [sha256.Size]byte
				return zero, err
			}
		}
	}

	return digestSum(digest), nil
}

func digestSum(h hash.Hash) [sha256.Size]byte {
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
