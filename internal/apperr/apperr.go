package apperr

import (
	"errors"
	"fmt"
)

const (
	CodeCatalogLoad     = "CATALOG_001"
	CodeExtraction      = "EXTRACT_001"
	CodeRenameCollision = "RENAME_001"
	CodeArchiveFormat   = "ARCHIVE_001"
	CodeUnknown         = "UNKNOWN"
)

// CatalogLoadError is fatal to a reconciliation run.
type CatalogLoadError struct {
	Path   string
	Reason string
	Cause  error
}

func (e *CatalogLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] catalog %s: %s: %v", CodeCatalogLoad, e.Path, e.Reason, e.Cause)
	}
	return fmt.Sprintf("[%s] catalog %s: %s", CodeCatalogLoad, e.Path, e.Reason)
}

func (e *CatalogLoadError) Unwrap() error { return e.Cause }

// ExtractionError is recovered per file: the record keeps degraded metadata.
type ExtractionError struct {
	Path   string
	Format string
	Cause  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("[%s] extract %s (%s): %v", CodeExtraction, e.Path, e.Format, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// RenameCollisionError means the destination is occupied by another file.
type RenameCollisionError struct {
	From string
	To   string
}

func (e *RenameCollisionError) Error() string {
	return fmt.Sprintf("[%s] rename %s -> %s: destination already taken", CodeRenameCollision, e.From, e.To)
}

// ArchiveFormatError is fatal to one archive only.
type ArchiveFormatError struct {
	Path   string
	Format string
	Cause  error
}

func (e *ArchiveFormatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] archive %s (%s): %v", CodeArchiveFormat, e.Path, e.Format, e.Cause)
	}
	return fmt.Sprintf("[%s] archive %s: unsupported format %q", CodeArchiveFormat, e.Path, e.Format)
}

func (e *ArchiveFormatError) Unwrap() error { return e.Cause }

// Code returns the taxonomy code of the first known error in err's chain.
func Code(err error) string {
	var (
		cl *CatalogLoadError
		ex *ExtractionError
		rc *RenameCollisionError
		af *ArchiveFormatError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cl):
		return CodeCatalogLoad
	case errors.As(err, &ex):
		return CodeExtraction
	case errors.As(err, &rc):
		return CodeRenameCollision
	case errors.As(err, &af):
		return CodeArchiveFormat
	default:
		return CodeUnknown
	}
}

// Fatal reports whether err must stop the whole run.
func Fatal(err error) bool {
	var cl *CatalogLoadError
	return errors.As(err, &cl)
}
