package inventory

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/MalithGihan/opis-service/internal/ingest"
	"github.com/MalithGihan/opis-service/internal/numbering"
	"github.com/MalithGihan/opis-service/internal/validate"
)

type DiscrepancyKind string

const (
	Missing        DiscrepancyKind = "missing"
	PagesMismatch  DiscrepancyKind = "pages_mismatch"
	FormatMismatch DiscrepancyKind = "format_mismatch"
)

// Discrepancy is one difference between an inventory entry and the file on disk.
type Discrepancy struct {
	Number int             `json:"number"`
	Name   string          `json:"name"`
	Kind   DiscrepancyKind `json:"kind"`
	Want   string          `json:"want,omitempty"`
	Got    string          `json:"got,omitempty"`
}

// LoadJSON reads a JSON inventory written by the json renderer.
func LoadJSON(path string) (Report, error) {
	var r Report
	b, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := validate.InventoryJSON(b); err != nil {
		return r, err
	}
	err = json.Unmarshal(b, &r)
	return r, err
}

// Audit re-extracts metadata for every entry's file under dir and reports
// entries whose file is gone or whose pages or format changed.
func Audit(report Report, dir string, ext *ingest.Extractor) []Discrepancy {
	if ext == nil {
		ext = ingest.New(nil)
	}
	var out []Discrepancy
	for _, e := range report.Entries {
		p := entryPath(e, dir)
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			out = append(out, Discrepancy{Number: e.Number, Name: e.Name, Kind: Missing})
			continue
		}
		rec := ext.Metadata(p)
		if rec.PageCount != e.Pages {
			out = append(out, Discrepancy{
				Number: e.Number, Name: e.Name, Kind: PagesMismatch,
				Want: strconv.Itoa(e.Pages), Got: strconv.Itoa(rec.PageCount),
			})
		}
		if rec.Format != e.Format {
			out = append(out, Discrepancy{
				Number: e.Number, Name: e.Name, Kind: FormatMismatch,
				Want: e.Format, Got: rec.Format,
			})
		}
	}
	return out
}

func entryPath(e Entry, dir string) string {
	switch {
	case e.File == "":
		return filepath.Join(dir, numbering.StripPrefix(e.Name))
	case filepath.IsAbs(e.File):
		return e.File
	default:
		return filepath.Join(dir, filepath.FromSlash(e.File))
	}
}
