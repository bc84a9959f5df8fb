package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adverant/nexus/scanocr-worker/internal/textproc"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/spf13/cobra"
)

// settings is the parsed form of the conversion flags
type settings struct {
	opts       types.Options
	format     textproc.OutputFormat
	outputDir  string
	tuningFile string
	tessdata   string
}

func addConversionFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", "md", "output format (md, txt, html)")
	cmd.Flags().String("quality", "balanced", "OCR quality (fast, balanced, accurate)")
	cmd.Flags().StringSlice("lang", []string{"zh", "en"}, "target languages for the sample pass")
	cmd.Flags().Bool("no-enhance", false, "skip image enhancement")
	cmd.Flags().Bool("no-language-detection", false, "skip language detection")
	cmd.Flags().Bool("no-doctype-detection", false, "skip document type detection")
	cmd.Flags().Bool("no-fix-confusions", false, "keep O/0 and l/1 confusions between digits")
	cmd.Flags().String("tuning", "", "YAML file overriding detection thresholds and configs")
	cmd.Flags().String("tessdata", os.Getenv("TESSDATA_PREFIX"), "directory holding traineddata files")
}

func readSettings(cmd *cobra.Command) (*settings, error) {
	flags := cmd.Flags()

	formatName, _ := flags.GetString("format")
	format, err := textproc.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}

	qualityName, _ := flags.GetString("quality")
	quality, err := types.ParseQuality(qualityName)
	if err != nil {
		return nil, err
	}

	langs, _ := flags.GetStringSlice("lang")
	noEnhance, _ := flags.GetBool("no-enhance")
	noLanguage, _ := flags.GetBool("no-language-detection")
	noDoctype, _ := flags.GetBool("no-doctype-detection")
	noFix, _ := flags.GetBool("no-fix-confusions")

	s := &settings{
		opts: types.Options{
			EnhanceQuality:        !noEnhance,
			LanguageDetection:     !noLanguage,
			DocumentTypeDetection: !noDoctype,
			OCRQuality:            quality,
			TargetLanguages:       normalizeLangs(langs),
			FixConfusions:         !noFix,
		},
		format: format,
	}
	s.tuningFile, _ = flags.GetString("tuning")
	s.tessdata, _ = flags.GetString("tessdata")
	if flags.Lookup("output") != nil {
		s.outputDir, _ = flags.GetString("output")
	}
	return s, nil
}

func normalizeLangs(langs []string) []string {
	var out []string
	for _, l := range langs {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// outputPathFor places the output next to the input unless dir is set
func outputPathFor(input, dir string, format textproc.OutputFormat) string {
	src := types.Source{Path: input}
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, src.Stem()+format.Extension())
}

// collectPDFs expands directories into the PDFs they contain, sorted by name
func collectPDFs(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
				found = append(found, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no PDF files found")
	}
	return files, nil
}
