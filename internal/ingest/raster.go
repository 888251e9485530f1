package ingest

import "context"

// A scanned image is one page.
func rasterPageCount(string) (int, error) { return 1, nil }

func (e *Extractor) rasterText(ctx context.Context, path string) (string, error) {
	if e.ocr == nil {
		return "", ErrNoRecognizer
	}
	return e.ocr.Recognize(ctx, path)
}
