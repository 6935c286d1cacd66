// Package reference implements the perfect-deduplication reference
// simulator: the theoretical upper bound on deduplication achievable by
// exact set membership, with no rate limits or checker budgets.
package reference

import (
	"errors"

	"github.com/ivoronin/dupesim/internal/record"
)

// ErrEmptyStream is returned by Stats when no events were consumed.
var ErrEmptyStream = errors.New("reference: empty stream")

// Simulator tracks the set of hashes seen so far and the four running
// counters. The zero value is ready to use.
type Simulator struct {
	seen map[record.Hash]struct{}

	FilesUploaded  uint64
	DataUploaded   uint64
	FilesInStorage uint64
	DataInStorage  uint64
}

// New returns an empty Simulator.
func New() *Simulator {
	return &Simulator{seen: make(map[record.Hash]struct{})}
}

// Step consumes one event, updating the running counters in place.
func (s *Simulator) Step(r record.Record) {
	s.FilesUploaded++
	s.DataUploaded += r.Size

	if _, ok := s.seen[r.Hash]; ok {
		return
	}

	if s.seen == nil {
		s.seen = make(map[record.Hash]struct{})
	}
	s.seen[r.Hash] = struct{}{}
	s.FilesInStorage++
	s.DataInStorage += r.Size
}

// Stats is the final deduplication-percentage summary.
type Stats struct {
	DDPFiles float64
	DDPBytes float64
}

// Stats computes the summary deduplication percentages. It returns
// ErrEmptyStream if no events were ever consumed.
func (s *Simulator) Stats() (Stats, error) {
	if s.FilesUploaded == 0 {
		return Stats{}, ErrEmptyStream
	}

	return Stats{
		DDPFiles: 1 - float64(s.FilesInStorage)/float64(s.FilesUploaded),
		DDPBytes: 1 - float64(s.DataInStorage)/float64(s.DataUploaded),
	}, nil
}
