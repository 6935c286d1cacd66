package main

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"

	"github.com/ivoronin/dupesim/internal/poptable"
	"github.com/ivoronin/dupesim/internal/stream"
)

type generateOptions struct {
	distribution string
	seed         uint64
	output       string
}

func newGenerateCmd() *cobra.Command {
	opts := &generateOptions{distribution: string(stream.Uniform), seed: 1, output: "-"}

	cmd := &cobra.Command{
		Use:   "generate [popularity-file]",
		Short: "Generate a randomized packed upload stream from a popularity table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runGenerate(path, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.distribution, "distribution", opts.distribution, "Temporal distribution: uniform, normal, or lognormal")
	f.Uint64Var(&opts.seed, "seed", opts.seed, "RNG seed")
	f.StringVarP(&opts.output, "output", "o", opts.output, "Packed stream output ( - for stdout)")

	return cmd
}

func runGenerate(path string, opts *generateOptions) error {
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

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed))
	pr := poptable.NewReader(in)

	digest, err := stream.Generate(rng, stream.Distribution(opts.distribution), pr, out)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	fmt.Fprintf(os.Stderr, "sha256=%x\n", digest)

	return nil
}
