package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adverant/nexus/scanocr-worker/internal/textproc"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCommand(t *testing.T, set map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringP("output", "o", "", "")
	addConversionFlags(cmd)
	for k, v := range set {
		require.NoError(t, cmd.Flags().Set(k, v))
	}
	return cmd
}

func TestReadSettingsDefaults(t *testing.T) {
	s, err := readSettings(newFlagCommand(t, nil))
	require.NoError(t, err)
	assert.Equal(t, types.DefaultOptions(), s.opts)
	assert.Equal(t, textproc.FormatMarkdown, s.format)
	assert.Empty(t, s.outputDir)
}

func TestReadSettingsFromFlags(t *testing.T) {
	s, err := readSettings(newFlagCommand(t, map[string]string{
		"format":               "html",
		"quality":              "fast",
		"lang":                 " EN ,ja",
		"no-enhance":           "true",
		"no-doctype-detection": "true",
		"no-fix-confusions":    "true",
		"output":               "/tmp/out",
	}))
	require.NoError(t, err)

	assert.Equal(t, textproc.FormatHTML, s.format)
	assert.Equal(t, "/tmp/out", s.outputDir)
	assert.Equal(t, types.QualityFast, s.opts.OCRQuality)
	assert.Equal(t, []string{"en", "ja"}, s.opts.TargetLanguages)
	assert.False(t, s.opts.EnhanceQuality)
	assert.True(t, s.opts.LanguageDetection)
	assert.False(t, s.opts.DocumentTypeDetection)
	assert.False(t, s.opts.FixConfusions)
}

func TestReadSettingsRejectsUnknownValues(t *testing.T) {
	_, err := readSettings(newFlagCommand(t, map[string]string{"quality": "ultra"}))
	assert.Error(t, err)
	_, err = readSettings(newFlagCommand(t, map[string]string{"format": "docx"}))
	assert.Error(t, err)
}

func TestOutputPathFor(t *testing.T) {
	assert.Equal(t, filepath.Join("/scans", "memo.md"), outputPathFor("/scans/memo.pdf", "", textproc.FormatMarkdown))
	assert.Equal(t, filepath.Join("/out", "memo.txt"), outputPathFor("/scans/memo.pdf", "/out", textproc.FormatText))
}

func TestCollectPDFs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.PDF", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o755))
	single := filepath.Join(t.TempDir(), "single.pdf")
	require.NoError(t, os.WriteFile(single, []byte("x"), 0o644))

	files, err := collectPDFs([]string{dir, single})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PDF"),
		filepath.Join(dir, "b.pdf"),
		single,
	}, files)

	_, err = collectPDFs([]string{t.TempDir()})
	assert.Error(t, err)
}

func TestJobForReferencesPathOrInlinesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0o644))
	s, err := readSettings(newFlagCommand(t, map[string]string{"format": "txt"}))
	require.NoError(t, err)

	job, err := jobFor(path, s, false)
	require.NoError(t, err)
	assert.Equal(t, path, job.FilePath)
	assert.Empty(t, job.FileBuffer)
	assert.Equal(t, "scan.pdf", job.Filename)
	assert.Equal(t, "txt", job.OutputFormat)
	assert.NotEmpty(t, job.JobID)
	require.NoError(t, job.Validate())

	job, err = jobFor(path, s, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), job.FileBuffer)
	assert.Empty(t, job.FilePath)

	_, err = jobFor(filepath.Join(t.TempDir(), "missing.pdf"), s, false)
	assert.Error(t, err)
}
