// Package catalog loads the reference table that maps document names in
// either language to their canonical name.
package catalog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/MalithGihan/opis-service/internal/apperr"
	"github.com/MalithGihan/opis-service/internal/ingest"
	"github.com/MalithGihan/opis-service/pkg/types"
)

// Columns names the two required header cells.
type Columns struct {
	Canonical string
	Alternate string
}

func DefaultColumns() Columns { return Columns{Canonical: "Russian", Alternate: "English"} }

// Catalog is read-only after Load and safe for concurrent lookups.
type Catalog struct {
	path  string
	byKey map[string]string
	keys  []string
}

type Option func(*loader)

type loader struct{ log *zap.Logger }

func WithLogger(l *zap.Logger) Option { return func(o *loader) { o.log = l } }

// Normalize maps a name into the key space: NFC, trimmed, lower case.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// Load reads the catalog at path. Any failure returns a
// *apperr.CatalogLoadError and no catalog.
func Load(path string, cols Columns, opts ...Option) (*Catalog, error) {
	ld := loader{log: zap.NewNop()}
	for _, o := range opts {
		o(&ld)
	}
	fail := func(reason string, cause error) (*Catalog, error) {
		return nil, &apperr.CatalogLoadError{Path: path, Reason: reason, Cause: cause}
	}

	if _, err := os.Stat(path); err != nil {
		return fail("cannot open", err)
	}
	rows, err := readTable(path)
	if err != nil {
		return fail("cannot read", err)
	}
	if len(rows) == 0 {
		return fail("empty catalog", nil)
	}

	ci, ai := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case strings.ToLower(strings.TrimSpace(cols.Canonical)):
			if ci < 0 {
				ci = i
			}
		case strings.ToLower(strings.TrimSpace(cols.Alternate)):
			if ai < 0 {
				ai = i
			}
		}
	}
	if ci < 0 {
		return fail(fmt.Sprintf("missing column %q", cols.Canonical), nil)
	}
	if ai < 0 {
		return fail(fmt.Sprintf("missing column %q", cols.Alternate), nil)
	}

	c := &Catalog{path: path, byKey: make(map[string]string)}
	for n, row := range rows[1:] {
		line := n + 2
		canonical, alternate := cell(row, ci), cell(row, ai)
		if canonical == "" && alternate == "" {
			continue
		}
		if canonical == "" {
			ld.log.Warn("catalog row without canonical name skipped",
				zap.String("path", path), zap.Int("row", line), zap.String("alternate", alternate))
			continue
		}
		c.add(ld.log, line, canonical, canonical)
		if alternate != "" {
			c.add(ld.log, line, alternate, canonical)
		}
	}
	ld.log.Info("catalog loaded", zap.String("path", path), zap.Int("keys", len(c.keys)))
	return c, nil
}

// add keeps the first assignment of a key.
func (c *Catalog) add(log *zap.Logger, line int, name, canonical string) {
	k := Normalize(name)
	if k == "" {
		return
	}
	if prev, ok := c.byKey[k]; ok {
		if prev != canonical {
			log.Warn("duplicate catalog key ignored",
				zap.String("key", k),
				zap.Int("row", line),
				zap.String("kept", prev),
				zap.String("ignored", canonical))
		}
		return
	}
	c.byKey[k] = canonical
	c.keys = append(c.keys, k)
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Lookup resolves any variant of a catalog name to its canonical form.
func (c *Catalog) Lookup(name string) (string, bool) {
	v, ok := c.byKey[Normalize(name)]
	return v, ok
}

// Keys returns the normalized keys in load order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

func (c *Catalog) Len() int     { return len(c.keys) }
func (c *Catalog) Path() string { return c.path }

func readTable(path string) ([][]string, error) {
	switch types.FormatOf(path) {
	case "xlsx":
		return readXLSX(path)
	case "csv":
		return readCSV(path)
	case "docx":
		return ingest.DocxFirstTable(path)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", types.FormatOf(path))
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func readCSV(path string) ([][]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.ReadAll()
}
