package types

import (
	"path/filepath"
	"strings"
)

// Kind is the closed set of document kinds the extractor understands.
type Kind string

const (
	KindPDF         Kind = "pdf"
	KindWord        Kind = "word"
	KindText        Kind = "text"
	KindSheet       Kind = "sheet"
	KindRaster      Kind = "raster"
	KindUnsupported Kind = "unsupported"
)

// DetectKind maps a file name to its Kind by extension.
func DetectKind(name string) Kind {
	switch FormatOf(name) {
	case "pdf":
		return KindPDF
	case "docx":
		return KindWord
	case "txt":
		return KindText
	case "xlsx":
		return KindSheet
	case "png", "jpg", "jpeg", "tif", "tiff", "bmp":
		return KindRaster
	default:
		return KindUnsupported
	}
}

// ContentScannable reports whether full-text matching applies to k.
// Spreadsheets and images are never content-scanned.
func (k Kind) ContentScannable() bool {
	return k == KindPDF || k == KindWord || k == KindText
}

// FormatOf returns the lower-case extension of name without the dot.
func FormatOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Stem returns the base name of path with its extension stripped.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type MatchKind int

const (
	NoMatch MatchKind = iota
	MatchedByName
	MatchedByContent
)

func (m MatchKind) String() string {
	switch m {
	case MatchedByName:
		return "name"
	case MatchedByContent:
		return "content"
	default:
		return "none"
	}
}

// MatchResult is the outcome of matching one file against the catalog.
// Key is the catalog key that produced the match.
type MatchResult struct {
	Kind      MatchKind
	Canonical string
	Key       string
}

func (m MatchResult) Matched() bool { return m.Kind != NoMatch }

// DocumentRecord describes one physical file. Sequence stays 0 until the
// numbering stage assigns it.
type DocumentRecord struct {
	Path        string      `json:"path"`
	DisplayName string      `json:"name"`
	Designation string      `json:"designation"`
	PageCount   int         `json:"pages"`
	Format      string      `json:"format"`
	Sequence    int         `json:"number,omitempty"`
	Match       MatchResult `json:"-"`
	Err         string      `json:"error,omitempty"`
}

// NewRecord builds the default record for path: display name is the base
// name, designation the stem.
func NewRecord(path string) DocumentRecord {
	return DocumentRecord{
		Path:        path,
		DisplayName: filepath.Base(path),
		Designation: Stem(path),
		Format:      FormatOf(path),
	}
}

// Degraded reports whether metadata extraction failed for the record.
func (r DocumentRecord) Degraded() bool { return r.Err != "" }

type RenameOutcome string

const (
	RenameDone      RenameOutcome = "renamed"
	RenameUnchanged RenameOutcome = "unchanged"
	RenameCollision RenameOutcome = "collision"
	RenameFailed    RenameOutcome = "failed"
	RenameDryRun    RenameOutcome = "dry_run"
)

// RenameEvent records one rename decision with both paths.
type RenameEvent struct {
	From    string        `json:"from"`
	To      string        `json:"to"`
	Outcome RenameOutcome `json:"outcome"`
	Reason  string        `json:"reason,omitempty"`
}
