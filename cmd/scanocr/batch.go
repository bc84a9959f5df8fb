package main

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var batchCmd = &cobra.Command{
	Use:   "batch [dir|file...]",
	Short: "Convert every PDF in the given directories concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringP("output", "o", "", "output directory (default: next to each input)")
	batchCmd.Flags().IntP("jobs", "j", 2, "documents converted at the same time")
	addConversionFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	s, err := readSettings(cmd)
	if err != nil {
		return err
	}
	jobs, _ := cmd.Flags().GetInt("jobs")
	if jobs < 1 {
		return fmt.Errorf("--jobs must be at least 1")
	}

	files, err := collectPDFs(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	colorCyan.Fprintf(out, "Converting %d files with %d workers\n", len(files), jobs)

	var failed atomic.Int32
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(jobs)
	for _, path := range files {
		g.Go(func() error {
			proc, err := newProcessor(s)
			if err != nil {
				return err
			}
			sum, err := convertFile(ctx, proc, path, s, progressPrinter(cmd.ErrOrStderr(), filepath.Base(path)))

			printMu.Lock()
			defer printMu.Unlock()
			if err != nil {
				failed.Add(1)
				colorRed.Fprintf(out, "%s failed: %v\n", path, err)
				return nil
			}
			fmt.Fprintf(out, "%s\n", path)
			sum.print(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d conversions failed", n, len(files))
	}
	colorGreen.Fprintf(out, "All %d files converted\n", len(files))
	return nil
}
