package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/processor"
	"github.com/adverant/nexus/scanocr-worker/internal/textproc"
	"github.com/adverant/nexus/scanocr-worker/internal/tuning"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert [file...]",
	Short: "Convert scanned PDFs",
	Long: `Convert one or more scanned PDFs. Each output is written next to its
input (or into --output) as <name>.md, <name>.txt or <name>.html.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringP("output", "o", "", "output directory (default: next to the input)")
	addConversionFlags(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	s, err := readSettings(cmd)
	if err != nil {
		return err
	}
	proc, err := newProcessor(s)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var failed int
	for _, path := range args {
		colorCyan.Fprintf(out, "Converting %s\n", path)
		summary, err := convertFile(cmd.Context(), proc, path, s, progressPrinter(cmd.ErrOrStderr(), filepath.Base(path)))
		if err != nil {
			failed++
			colorRed.Fprintf(out, "  failed: %v\n", err)
			continue
		}
		summary.print(out)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", failed, len(args))
	}
	return nil
}

func newProcessor(s *settings) (*processor.ScanProcessor, error) {
	t, err := tuning.LoadOrDefault(s.tuningFile)
	if err != nil {
		return nil, err
	}
	return processor.NewTesseractProcessor(t, s.tessdata, logging.NewLogger("processor"))
}

// summary describes one finished conversion
type summary struct {
	output   string
	pages    int
	degraded []int
	chars    int
	elapsed  time.Duration
}

func (s summary) print(w io.Writer) {
	colorGreen.Fprintf(w, "  wrote %s", s.output)
	fmt.Fprintf(w, " (%d pages, %d characters, %s)\n", s.pages, s.chars, s.elapsed.Round(time.Millisecond))
	if len(s.degraded) > 0 {
		colorYellow.Fprintf(w, "  pages without text due to errors: %v\n", s.degraded)
	}
}

func convertFile(ctx context.Context, conv processor.Converter, path string, s *settings, obs processor.Observer) (*summary, error) {
	src := types.Source{Path: path}
	result, err := conv.ConvertDocument(ctx, src, s.opts, obs)
	if err != nil {
		return nil, err
	}

	data, err := textproc.Render(result, s.format, textproc.DefaultMarkdownOptions())
	if err != nil {
		return nil, err
	}
	outPath := outputPathFor(path, s.outputDir, s.format)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write output: %w", err)
	}

	return &summary{
		output:   outPath,
		pages:    result.Metadata.TotalPages,
		degraded: result.DegradedPages(),
		chars:    textproc.DocumentCharCount(result),
		elapsed:  result.Metadata.ProcessingTime,
	}, nil
}

var printMu sync.Mutex

// progressPrinter reports each page as recognition starts
func progressPrinter(w io.Writer, name string) processor.Observer {
	return processor.ObserverFunc(func(page, total int, stage processor.Stage) {
		if stage != processor.StageRecognizing {
			return
		}
		printMu.Lock()
		defer printMu.Unlock()
		fmt.Fprintf(w, "  %s: page %d/%d (%.0f%%)\n", name, page, total, processor.Percent(page, total, stage))
	})
}
