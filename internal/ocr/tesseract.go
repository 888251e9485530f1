// Package ocr recognizes text in scanned pages with Tesseract.
package ocr

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract is an ingest.Recognizer. Each call uses its own client, so it
// is safe for concurrent use.
type Tesseract struct {
	Languages []string
}

// New parses a "rus+eng" style language list.
func New(languages string) *Tesseract {
	var langs []string
	for _, l := range strings.FieldsFunc(languages, func(r rune) bool { return r == '+' || r == ',' }) {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return &Tesseract{Languages: langs}
}

func (t *Tesseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()

	if len(t.Languages) > 0 {
		if err := client.SetLanguage(t.Languages...); err != nil {
			return "", err
		}
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", err
	}
	return client.Text()
}
