package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivoronin/dupesim/internal/reference"
	"github.com/ivoronin/dupesim/internal/record"
)

type referenceOptions struct {
	output string
}

func newReferenceCmd() *cobra.Command {
	opts := &referenceOptions{output: "-"}

	cmd := &cobra.Command{
		Use:   "reference [stream-file]",
		Short: "Compute the perfect-deduplication upper bound for a packed upload stream",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runReference(path, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", opts.output, "Summary output ( - for stdout)")

	return cmd
}

func runReference(path string, opts *referenceOptions) error {
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

	sim := reference.New()
	dec := record.NewDecoder(in)

	var decErr error
	dec.All(func(r record.Record, err error) bool {
		if err != nil {
			decErr = err
			return false
		}
		sim.Step(r)
		return true
	})
	if decErr != nil {
		return fmt.Errorf("reference: %w", decErr)
	}

	stats, err := sim.Stats()
	if err != nil {
		return fmt.Errorf("reference: %w", err)
	}

	_, err = fmt.Fprintf(out, "%d,%d,%d,%d,%g,%g\n",
		sim.FilesInStorage, sim.FilesUploaded, sim.DataInStorage, sim.DataUploaded, stats.DDPFiles, stats.DDPBytes)
	return err
}
