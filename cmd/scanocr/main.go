// Command scanocr converts scanned PDFs to Markdown, text or HTML from the
// command line, or submits them to the worker queue.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	colorRed    = color.New(color.FgRed, color.Bold)
	colorGreen  = color.New(color.FgGreen, color.Bold)
	colorYellow = color.New(color.FgYellow)
	colorCyan   = color.New(color.FgCyan)
)

var rootCmd = &cobra.Command{
	Use:   "scanocr",
	Short: "Adaptive OCR for scanned PDFs",
	Long: `scanocr renders each page of a scanned PDF, cleans up the image,
detects the page's language and layout, and picks a matching Tesseract
configuration before recognizing it.

Examples:
  scanocr convert invoice.pdf
  scanocr convert thesis.pdf --quality accurate --format html -o out/
  scanocr batch scans/ --jobs 4
  scanocr enqueue report.pdf --redis redis://localhost:6379`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		return logging.Configure(level, "text")
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	logging.SetOutput(os.Stderr)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		colorRed.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
