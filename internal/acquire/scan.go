package acquire

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ivoronin/dupesim/internal/progress"
)

// skipRoots are pseudo-filesystems that never hold data worth counting and
// that can hang or misbehave under a stat/read pass.
var skipRoots = []string{"/proc", "/sys", "/dev"}

func underSkipRoot(path string) bool {
	for _, root := range skipRoots {
		if path == root || len(path) > len(root) && path[:len(root)+1] == root+string(filepath.Separator) {
			return true
		}
	}
	return false
}

// scanner discovers regular files under a set of root paths using a
// parallel fan-out/fan-in directory walk: one goroutine per directory,
// bounded by a semaphore, feeding a single collector over a channel. The
// shape mirrors a classic concurrent directory crawler; this one additionally
// skips the /proc, /sys, /dev pseudo-filesystems and any glob-excluded name.
type scanner struct {
	paths    []string
	excludes []string
	workers  int
	errCh    chan error

	walkerWg sync.WaitGroup
	sem      Semaphore
	resultCh chan *FileInfo
	stats    *scanStats
	bar      *progress.Bar
}

type scanStats struct {
	scannedFiles atomic.Int64
	scannedBytes atomic.Int64
	startTime    time.Time
}

func (s *scanStats) String() string {
	return fmt.Sprintf("scanned %d files (%s) in %.1fs",
		s.scannedFiles.Load(), humanize.IBytes(uint64(s.scannedBytes.Load())),
		time.Since(s.startTime).Seconds())
}

func newScanner(paths, excludes []string, workers int, showProgress bool, errCh chan error) *scanner {
	return &scanner{
		paths:    paths,
		excludes: excludes,
		workers:  workers,
		errCh:    errCh,
		bar:      progress.New(showProgress, -1),
	}
}

func (s *scanner) run() []*FileInfo {
	s.sem = NewSemaphore(s.workers)
	s.stats = &scanStats{startTime: time.Now()}
	s.bar.Describe(s.stats)
	s.resultCh = make(chan *FileInfo, 1000)

	var results []*FileInfo
	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go func() {
		for f := range s.resultCh {
			results = append(results, f)
		}
		collectorWg.Done()
	}()

	for _, p := range s.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			s.sendError(err)
			continue
		}
		s.walk(abs)
	}

	s.walkerWg.Wait()
	close(s.resultCh)
	collectorWg.Wait()

	s.bar.Finish(s.stats)
	return results
}

func (s *scanner) walk(dir string) {
	if underSkipRoot(dir) {
		return
	}

	s.walkerWg.Add(1)
	go func() {
		defer s.walkerWg.Done()

		s.sem.Acquire()
		defer s.sem.Release()

		files, subdirs, err := s.list(dir)
		if err != nil {
			s.sendError(err)
			return
		}

		for _, f := range files {
			s.stats.scannedFiles.Add(1)
			s.stats.scannedBytes.Add(f.Size)
			s.resultCh <- f
		}
		s.bar.Describe(s.stats)

		for _, sub := range subdirs {
			s.walk(sub)
		}
	}()
}

func (s *scanner) list(dirPath string) (files []*FileInfo, subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	const batchSize = 1000
	for {
		entries, err := dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if err != nil && err != io.EOF {
				return files, subdirs, err
			}
			break
		}

		for _, entry := range entries {
			f, sub := s.processEntry(dirPath, entry)
			if f != nil {
				files = append(files, f)
			}
			if sub != "" {
				subdirs = append(subdirs, sub)
			}
		}
	}

	return files, subdirs, nil
}

func (s *scanner) processEntry(dirPath string, entry os.DirEntry) (file *FileInfo, subdir string) {
	fullPath := filepath.Join(dirPath, entry.Name())

	if entry.IsDir() {
		if s.shouldExclude(fullPath) || underSkipRoot(fullPath) {
			return nil, ""
		}
		return nil, fullPath
	}

	if !entry.Type().IsRegular() || s.shouldExclude(fullPath) {
		return nil, ""
	}

	info, err := entry.Info()
	if err != nil {
		return nil, ""
	}

	return &FileInfo{Path: fullPath, Size: info.Size(), ModTime: info.ModTime()}, ""
}

func (s *scanner) sendError(err error) {
	if s.errCh != nil {
		s.errCh <- err
	}
}

func (s *scanner) shouldExclude(path string) bool {
	if len(s.excludes) == 0 {
		return false
	}
	base := filepath.Base(path)
	for _, pattern := range s.excludes {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
