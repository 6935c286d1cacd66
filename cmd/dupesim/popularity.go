package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ivoronin/dupesim/internal/acquire"
	"github.com/ivoronin/dupesim/internal/poptable"
)

type popularityOptions struct {
	excludes   []string
	workers    int
	cacheFile  string
	noProgress bool
	output     string
}

func newPopularityCmd() *cobra.Command {
	opts := &popularityOptions{workers: runtime.NumCPU(), output: "-"}

	cmd := &cobra.Command{
		Use:   "popularity <dir>...",
		Short: "Walk directories and emit a popularity table of content hashes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := validateGlobPatterns(opts.excludes); err != nil {
				return err
			}
			return runPopularity(args, opts)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.excludes, "exclude", "e", nil, "Glob patterns to exclude, matched against base names")
	f.IntVarP(&opts.workers, "workers", "w", opts.workers, "Number of parallel directory-walk workers")
	f.StringVar(&opts.cacheFile, "cache-file", "", "Path to a hash cache file (enables caching across runs)")
	f.BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	f.StringVarP(&opts.output, "output", "o", opts.output, "Popularity table output ( - for stdout)")

	return cmd
}

func runPopularity(paths []string, opts *popularityOptions) error {
	out, err := openOutput(opts.output)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	errs := make(chan error, 100)
	go drainErrors(errs)
	defer close(errs)

	entries, err := acquire.Collect(acquire.Options{
		Paths:        paths,
		Excludes:     opts.excludes,
		Workers:      opts.workers,
		CachePath:    opts.cacheFile,
		ShowProgress: !opts.noProgress,
	}, errs)
	if err != nil {
		return fmt.Errorf("popularity: %w", err)
	}

	w := poptable.NewWriter(out)
	for _, e := range entries {
		if err := w.Write(e); err != nil {
			return fmt.Errorf("popularity: %w", err)
		}
	}

	return nil
}
