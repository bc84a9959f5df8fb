/**
 * Image Renderer
 *
 * Opens PDF sources and rasterizes single pages with MuPDF (go-fitz).
 * Render resolution is 72 DPI times the scale factor, so output size is
 * proportional to the scale and the aspect ratio is kept.
 */

package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/gen2brain/go-fitz"
	"github.com/h2non/filetype"
)

// BaseDPI is the PDF user-space resolution a scale factor of 1 renders at
const BaseDPI = 72.0

// sniffLength is the number of leading bytes inspected to detect the format
const sniffLength = 262

// Opener opens a source document for rendering
type Opener interface {
	Open(ctx context.Context, src types.Source) (Document, error)
}

// Document is an opened PDF. Pages are indexed from 0.
type Document interface {
	PageCount() int
	RenderPage(ctx context.Context, index int, scale float64) (types.PageImage, error)
	Close() error
}

// UnsupportedFormatError is returned for sources that are not PDF
type UnsupportedFormatError struct {
	MIME string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q, expected application/pdf", e.MIME)
}

// RenderFailure is returned when one page cannot be rasterized
type RenderFailure struct {
	Page  int
	Cause error
}

func (e *RenderFailure) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Cause)
}

func (e *RenderFailure) Unwrap() error { return e.Cause }

// FitzOpener opens PDFs with go-fitz
type FitzOpener struct{}

// NewFitzOpener creates the MuPDF-backed opener
func NewFitzOpener() *FitzOpener {
	return &FitzOpener{}
}

// Open implements Opener. Content is sniffed before it is handed to MuPDF.
func (o *FitzOpener) Open(ctx context.Context, src types.Source) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	head, err := sniff(src)
	if err != nil {
		return nil, err
	}
	if !filetype.Is(head, "pdf") {
		mime := "unknown"
		if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
			mime = kind.MIME.Value
		}
		return nil, &UnsupportedFormatError{MIME: mime}
	}

	var doc *fitz.Document
	if src.Data != nil {
		doc, err = fitz.NewFromMemory(src.Data)
	} else {
		doc, err = fitz.New(src.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("error opening PDF: %w", err)
	}
	return &fitzDocument{doc: doc}, nil
}

func sniff(src types.Source) ([]byte, error) {
	if src.Data != nil {
		if len(src.Data) > sniffLength {
			return src.Data[:sniffLength], nil
		}
		return src.Data, nil
	}
	if src.Path == "" {
		return nil, fmt.Errorf("source has neither path nor data")
	}
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return head[:n], nil
}

// fitzDocument serializes access to the MuPDF context
type fitzDocument struct {
	mu  sync.Mutex
	doc *fitz.Document
}

func (d *fitzDocument) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.NumPage()
}

func (d *fitzDocument) RenderPage(ctx context.Context, index int, scale float64) (page types.PageImage, err error) {
	if err := ctx.Err(); err != nil {
		return types.PageImage{}, err
	}
	if scale <= 0 {
		return types.PageImage{}, &RenderFailure{Page: index + 1, Cause: fmt.Errorf("invalid scale factor %v", scale)}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			page, err = types.PageImage{}, &RenderFailure{Page: index + 1, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	dpi := BaseDPI * scale
	img, err := d.doc.ImageDPI(index, dpi)
	if err != nil {
		return types.PageImage{}, &RenderFailure{Page: index + 1, Cause: err}
	}
	return types.PageImage{Bitmap: img, DPI: dpi}, nil
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}
