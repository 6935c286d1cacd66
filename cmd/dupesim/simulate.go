package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/ivoronin/dupesim/internal/engine"
	"github.com/ivoronin/dupesim/internal/record"
)

type simulateOptions struct {
	shortHashLen              int
	hashLen                   int
	checkLimit                int
	probeLimit                int
	maxThreshold              int
	offlineRate               float64
	withSizes                 bool
	oneSuccessfulCheck        bool
	deduplicateBelowThreshold bool
	onlyFinal                 bool
	seed                      uint64
	output                    string
}

func newSimulateCmd() *cobra.Command {
	d := engine.DefaultConfig()
	opts := &simulateOptions{
		shortHashLen: d.ShortHashLen,
		hashLen:      d.HashLen,
		checkLimit:   d.CheckLimit,
		probeLimit:   d.ProbeLimit,
		maxThreshold: d.MaxThreshold,
		seed:         1,
		output:       "-",
	}

	cmd := &cobra.Command{
		Use:   "simulate [stream-file]",
		Short: "Run the protocol simulation engine over a packed upload stream",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runSimulate(path, opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.shortHashLen, "short-hash-length", opts.shortHashLen, "Short-hash bit length (S)")
	f.IntVar(&opts.hashLen, "hash-length", opts.hashLen, "Full hash bit length (H)")
	f.IntVar(&opts.checkLimit, "check-limit", opts.checkLimit, "Check budget issued to each new checker (RL_c)")
	f.IntVar(&opts.probeLimit, "pake-runs", opts.probeLimit, "Max candidate files probed per upload (RL_u)")
	f.IntVar(&opts.maxThreshold, "max-threshold", opts.maxThreshold, "Upper bound of the per-file threshold draw")
	f.Float64Var(&opts.offlineRate, "offline-rate", opts.offlineRate, "Per-checker independent offline probability")
	f.BoolVar(&opts.withSizes, "with-sizes", false, "Enable size-aware bucketing")
	f.BoolVar(&opts.oneSuccessfulCheck, "one-successful-check", false, "Replace the matched checker instead of appending a new one")
	f.BoolVar(&opts.deduplicateBelowThreshold, "deduplicate-below-threshold", false, "Ignore the threshold gate")
	f.BoolVar(&opts.onlyFinal, "only-final", false, "Suppress per-event CSV output and print only the summary line")
	f.Uint64Var(&opts.seed, "seed", opts.seed, "RNG seed")
	f.StringVarP(&opts.output, "output", "o", opts.output, "CSV/summary output ( - for stdout)")

	return cmd
}

func runSimulate(path string, opts *simulateOptions) error {
	in, err := openInput(path)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := openOutput(opts.output)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	cfg := engine.Config{
		ShortHashLen:              opts.shortHashLen,
		HashLen:                   opts.hashLen,
		CheckLimit:                opts.checkLimit,
		ProbeLimit:                opts.probeLimit,
		MaxThreshold:              opts.maxThreshold,
		OfflineRate:               opts.offlineRate,
		WithSizes:                 opts.withSizes,
		OneSuccessfulCheck:        opts.oneSuccessfulCheck,
		DeduplicateBelowThreshold: opts.deduplicateBelowThreshold,
		OnlyFinal:                 opts.onlyFinal,
	}

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed))

	eng, err := engine.New(cfg, rng, out)
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}

	dec := record.NewDecoder(in)
	var stepErr error
	dec.All(func(r record.Record, err error) bool {
		if err != nil {
			stepErr = err
			return false
		}
		if err := eng.Step(r); err != nil {
			stepErr = err
			return false
		}
		return true
	})
	if stepErr != nil {
		return fmt.Errorf("simulate: %w", stepErr)
	}

	if err := eng.Flush(); err != nil {
		return fmt.Errorf("simulate: %w", err)
	}

	if cfg.OnlyFinal {
		sum, err := eng.Summary()
		if err != nil {
			return fmt.Errorf("simulate: %w", err)
		}
		fmt.Fprintf(out, "%d,%d,%d,%g,%g,%g\n",
			sum.CheckLimit, sum.ProbeLimit, sum.MaxThreshold, sum.OfflineRate, sum.DDPFiles, sum.DDPBytes)
	}

	return nil
}
