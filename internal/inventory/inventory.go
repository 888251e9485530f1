// Package inventory builds the numbered document list and renders it.
package inventory

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/MalithGihan/opis-service/pkg/types"
)

// Title heads every rendered inventory.
const Title = "Опись документов"

type Entry struct {
	Number      int    `json:"number" yaml:"number"`
	Name        string `json:"name" yaml:"name"`
	Designation string `json:"designation" yaml:"designation"`
	Pages       int    `json:"pages" yaml:"pages"`
	Format      string `json:"format" yaml:"format"`
	// File locates the document; relative to the processed directory after RelativeTo.
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

type Report struct {
	Title       string    `json:"title" yaml:"title"`
	RunID       string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	Entries     []Entry   `json:"entries" yaml:"entries"`
}

// Build makes one entry per record, in order, without deduplication.
func Build(records []types.DocumentRecord) Report {
	r := Report{
		Title:       Title,
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Entries:     make([]Entry, 0, len(records)),
	}
	for _, rec := range records {
		r.Entries = append(r.Entries, Entry{
			Number:      rec.Sequence,
			Name:        rec.DisplayName,
			Designation: rec.Designation,
			Pages:       rec.PageCount,
			Format:      rec.Format,
			File:        rec.Path,
		})
	}
	return r
}

// RelativeTo rewrites entry files under dir as slash-separated relative
// paths. Files outside dir keep their path.
func (r *Report) RelativeTo(dir string) {
	for i, e := range r.Entries {
		if e.File == "" {
			continue
		}
		rel, err := filepath.Rel(dir, e.File)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		r.Entries[i].File = filepath.ToSlash(rel)
	}
}
