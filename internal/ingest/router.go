package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/MalithGihan/opis-service/internal/apperr"
	"github.com/MalithGihan/opis-service/pkg/types"
)

// Recognizer turns an image file into text. internal/ocr provides the
// Tesseract implementation.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

var (
	ErrNoRecognizer = errors.New("no OCR recognizer configured")
	ErrTooLarge     = errors.New("file exceeds size limit")
)

type Option func(*Extractor)

func WithRecognizer(r Recognizer) Option { return func(e *Extractor) { e.ocr = r } }

// WithMaxFileSize bounds the bytes read for full-text extraction. 0 disables the check.
func WithMaxFileSize(n int64) Option { return func(e *Extractor) { e.maxSize = n } }

// Extractor reads page counts and text from the supported document kinds.
// It holds no per-file state and is safe for concurrent use.
type Extractor struct {
	log     *zap.Logger
	ocr     Recognizer
	maxSize int64
}

func New(log *zap.Logger, opts ...Option) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Extractor{log: log}
	for _, o := range opts {
		o(e)
	}
	return e
}

// handler is the per-kind pair of readers.
type handler struct {
	pages func(path string) (int, error)
	text  func(ctx context.Context, path string) (string, error)
}

func (e *Extractor) route(k types.Kind) (handler, bool) {
	switch k {
	case types.KindPDF:
		return handler{pages: pdfPageCount, text: e.pdfText}, true
	case types.KindWord:
		return handler{pages: docxPageCount, text: func(_ context.Context, p string) (string, error) { return docxText(p) }}, true
	case types.KindText:
		return handler{pages: textPageCount, text: func(_ context.Context, p string) (string, error) { return readText(p) }}, true
	case types.KindSheet:
		return handler{pages: sheetCount, text: func(_ context.Context, p string) (string, error) { return sheetText(p) }}, true
	case types.KindRaster:
		return handler{pages: rasterPageCount, text: e.rasterText}, true
	default:
		return handler{}, false
	}
}

// Metadata never fails: on a per-file error it returns the stem as
// designation, zero pages and the error text in Err.
func (e *Extractor) Metadata(path string) types.DocumentRecord {
	rec := types.NewRecord(path)
	n, err := e.PageCount(path)
	if err != nil {
		xe := &apperr.ExtractionError{Path: path, Format: rec.Format, Cause: err}
		rec.Err = xe.Error()
		e.log.Warn("metadata extraction failed",
			zap.String("path", path),
			zap.String("code", apperr.CodeExtraction),
			zap.Error(err))
		return rec
	}
	rec.PageCount = n
	return rec
}

// PageCount returns the page count for path. Unsupported kinds count as 0.
func (e *Extractor) PageCount(path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	h, ok := e.route(types.DetectKind(path))
	if !ok {
		return 0, nil
	}
	return h.pages(path)
}

// Text returns the full text of path.
func (e *Extractor) Text(ctx context.Context, path string) (string, error) {
	h, ok := e.route(types.DetectKind(path))
	if !ok {
		return "", fmt.Errorf("text: unsupported format %q", types.FormatOf(path))
	}
	if e.maxSize > 0 {
		st, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		if st.Size() > e.maxSize {
			return "", fmt.Errorf("%s: %w (%d > %d)", path, ErrTooLarge, st.Size(), e.maxSize)
		}
	}
	return h.text(ctx, path)
}
