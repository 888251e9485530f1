package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"
)

func pdfPageCount(path string) (int, error) {
	return api.PageCountFile(path)
}

// pdfText reads the text layer page by page. Scanned PDFs have none; for
// those the embedded page images go through OCR when a recognizer is set.
func (e *Extractor) pdfText(ctx context.Context, path string) (string, error) {
	text, err := pdfPlainText(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" || e.ocr == nil {
		return text, nil
	}

	tmp, err := os.MkdirTemp("", "opis-ocr-*")
	if err != nil {
		return text, err
	}
	defer os.RemoveAll(tmp)

	if err := api.ExtractImagesFile(path, tmp, nil, nil); err != nil {
		return text, err
	}
	images, err := listFiles(tmp)
	if err != nil {
		return text, err
	}
	var b strings.Builder
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return b.String(), err
		}
		s, err := e.ocr.Recognize(ctx, img)
		if err != nil {
			e.log.Warn("ocr failed", zap.String("path", path), zap.String("image", filepath.Base(img)), zap.Error(err))
			continue
		}
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// pdfPlainText converts a panic inside the PDF reader, which it raises on
// broken cross-reference data, into an error.
func pdfPlainText(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
