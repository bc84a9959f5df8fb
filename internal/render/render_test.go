package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF is a single blank US Letter page. MuPDF rebuilds the missing
// cross-reference table on open.
const minimalPDF = "%PDF-1.4\n" +
	"1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n" +
	"2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj\n" +
	"3 0 obj << /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >> endobj\n" +
	"trailer << /Root 1 0 R >>\n" +
	"%%EOF\n"

func TestOpenRejectsNonPDF(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

	_, err := NewFitzOpener().Open(context.Background(), types.Source{Data: png})

	var unsupported *UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "image/png", unsupported.MIME)

	_, err = NewFitzOpener().Open(context.Background(), types.Source{Data: []byte("plain text")})
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "unknown", unsupported.MIME)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := NewFitzOpener().Open(context.Background(), types.Source{Path: filepath.Join(t.TempDir(), "missing.pdf")})
	assert.Error(t, err)

	_, err = NewFitzOpener().Open(context.Background(), types.Source{})
	assert.Error(t, err)
}

func TestOpenHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFitzOpener().Open(ctx, types.Source{Data: []byte(minimalPDF)})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderScalesWithoutDistortion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.pdf")
	require.NoError(t, os.WriteFile(path, []byte(minimalPDF), 0o644))

	doc, err := NewFitzOpener().Open(context.Background(), types.Source{Path: path})
	require.NoError(t, err)
	defer doc.Close()

	require.Equal(t, 1, doc.PageCount())

	one, err := doc.RenderPage(context.Background(), 0, 1)
	require.NoError(t, err)
	two, err := doc.RenderPage(context.Background(), 0, 2.5)
	require.NoError(t, err)

	assert.InDelta(t, 612, one.Width(), 1)
	assert.InDelta(t, 792, one.Height(), 1)
	assert.Equal(t, 180.0, two.DPI)
	assert.InDelta(t, 2.5*float64(one.Width()), float64(two.Width()), 3)
	assert.InDelta(t, float64(one.Width())/float64(one.Height()), float64(two.Width())/float64(two.Height()), 0.01)
}

func TestRenderFailureIsPerPage(t *testing.T) {
	doc, err := NewFitzOpener().Open(context.Background(), types.Source{Data: []byte(minimalPDF)})
	require.NoError(t, err)
	defer doc.Close()

	_, err = doc.RenderPage(context.Background(), 5, 1)
	var failure *RenderFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 6, failure.Page)

	_, err = doc.RenderPage(context.Background(), 0, 0)
	assert.True(t, errors.As(err, &failure))
}
