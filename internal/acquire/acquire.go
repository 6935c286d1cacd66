// Package acquire implements the popularity-data acquisition collaborator:
// a directory walk that content-hashes every regular file it finds and
// aggregates the results into (hash, count, size) popularity records.
package acquire

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/ivoronin/dupesim/internal/cache"
	"github.com/ivoronin/dupesim/internal/poptable"
	"github.com/ivoronin/dupesim/internal/progress"
	"github.com/ivoronin/dupesim/internal/record"
)

// Options configures a popularity acquisition run.
type Options struct {
	Paths        []string
	Excludes     []string
	Workers      int
	CachePath    string
	ShowProgress bool
}

// counted accumulates the observed copy count for one content hash; every
// copy of a given hash is assumed to share its size.
type counted struct {
	size  int64
	count uint64
}

// Collect walks Options.Paths, content-hashes every regular file found
// (skipping /proc, /sys, /dev), and aggregates (hash, count, size)
// triples, returned sorted by hash for reproducible output. Non-fatal
// per-file errors (permission denied, a file that vanished mid-walk) are
// sent to errCh rather than aborting the run; errCh may be nil to discard
// them.
func Collect(opts Options, errCh chan error) ([]poptable.Entry, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	c, err := cache.Open(opts.CachePath)
	if err != nil {
		return nil, fmt.Errorf("acquire: %w", err)
	}
	defer func() { _ = c.Close() }()

	files := newScanner(opts.Paths, opts.Excludes, opts.Workers, opts.ShowProgress, errCh).run()

	bar := progress.New(opts.ShowProgress, int64(len(files)))

	byHash := make(map[record.Hash]*counted)
	hashed := 0
	for _, f := range files {
		h, err := hashFile(c, f)
		if err != nil {
			if errCh != nil {
				errCh <- fmt.Errorf("acquire: hash %s: %w", f.Path, err)
			}
			continue
		}

		e, ok := byHash[h]
		if !ok {
			e = &counted{size: f.Size}
			byHash[h] = e
		}
		e.count++
		hashed++

		bar.Set(uint64(hashed))
	}
	bar.Finish(hashStats(hashed))

	entries := make([]poptable.Entry, 0, len(byHash))
	for h, cnt := range byHash {
		entries = append(entries, poptable.Entry{Hash: h, Count: cnt.count, Size: uint64(cnt.size)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].Hash[:]) < string(entries[j].Hash[:])
	})

	return entries, nil
}

type hashStats int

func (h hashStats) String() string {
	return fmt.Sprintf("hashed %s files", humanize.Comma(int64(h)))
}

// hashFile returns the whole-file SHA-1 content hash of f, consulting and
// populating c.
func hashFile(c *cache.Cache, f *FileInfo) (record.Hash, error) {
	id := cache.FileIdentity{Path: f.Path, Size: f.Size, ModTime: f.ModTime}

	if cached, err := c.Lookup(id, record.HashSize); err == nil && cached != nil {
		var h record.Hash
		copy(h[:], cached)
		return h, nil
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return record.Hash{}, err
	}
	defer func() { _ = fh.Close() }()

	digest := sha1.New()
	if _, err := io.Copy(digest, fh); err != nil {
		return record.Hash{}, err
	}

	var h record.Hash
	copy(h[:], digest.Sum(nil))
	_ = c.Store(id, h[:])

	return h, nil
}
