// Package archive unpacks zip, rar and 7z archives into a work directory.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/MalithGihan/opis-service/internal/apperr"
	"github.com/MalithGihan/opis-service/internal/metrics"
	"github.com/MalithGihan/opis-service/pkg/types"
)

type ArchiveFormat int

const (
	FormatUnsupported ArchiveFormat = iota
	FormatZip
	FormatRar
	FormatSevenZip
)

func (f ArchiveFormat) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatRar:
		return "rar"
	case FormatSevenZip:
		return "7z"
	default:
		return "unsupported"
	}
}

// Detect chooses the format by file suffix.
func Detect(path string) ArchiveFormat {
	switch types.FormatOf(path) {
	case "zip":
		return FormatZip
	case "rar":
		return FormatRar
	case "7z":
		return FormatSevenZip
	default:
		return FormatUnsupported
	}
}

func IsArchive(path string) bool { return Detect(path) != FormatUnsupported }

var errUnsafePath = errors.New("entry escapes destination")

type Extractor struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(log *zap.Logger, m *metrics.Metrics) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{log: log, metrics: m}
}

// Extract unpacks archivePath into destDir. Every failure, including an
// entry that would land outside destDir, is an *apperr.ArchiveFormatError.
// Entries whose target already exists are left alone and returned in
// skipped as *apperr.RenameCollisionError; they do not fail the archive.
func (x *Extractor) Extract(ctx context.Context, archivePath, destDir string) (skipped []error, err error) {
	format := Detect(archivePath)
	if format == FormatUnsupported {
		err := &apperr.ArchiveFormatError{Path: archivePath, Format: types.FormatOf(archivePath)}
		x.fail(archivePath, err)
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, x.wrap(archivePath, format, err)
	}

	w := &entryWriter{ctx: ctx, dest: destDir, archive: archivePath}
	switch format {
	case FormatZip:
		err = extractZip(archivePath, w)
	case FormatRar:
		err = extractRar(archivePath, w)
	case FormatSevenZip:
		err = extractSevenZip(archivePath, w)
	}
	for _, serr := range w.skipped {
		x.log.Warn("archive entry not extracted",
			zap.String("archive", archivePath),
			zap.String("code", apperr.CodeRenameCollision),
			zap.Error(serr))
	}
	if err != nil {
		return w.skipped, x.wrap(archivePath, format, err)
	}
	x.metrics.RecordArchive(true)
	x.log.Info("archive extracted",
		zap.String("archive", archivePath),
		zap.String("format", format.String()),
		zap.String("dest", destDir),
		zap.Int("files", w.n),
		zap.Int("skipped", len(w.skipped)))
	return w.skipped, nil
}

// ExtractAll extracts each archive in turn and keeps going past failures.
// The returned slice holds one error per failed archive and one
// *apperr.RenameCollisionError per entry left unextracted. Archives already
// extracted into destDir, by content, are skipped.
func (x *Extractor) ExtractAll(ctx context.Context, archives []string, destDir string) []error {
	var errs []error
	seen, err := loadSeen(destDir)
	if err != nil {
		x.log.Warn("extracted archive list unreadable", zap.String("dest", destDir), zap.Error(err))
	}
	for _, a := range archives {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		sum, err := digest(a)
		if err == nil && seen[sum] {
			x.log.Info("archive already extracted", zap.String("archive", a), zap.String("dest", destDir))
			continue
		}
		skipped, xerr := x.Extract(ctx, a, destDir)
		errs = append(errs, skipped...)
		if xerr != nil {
			errs = append(errs, xerr)
			continue
		}
		if sum != "" {
			seen[sum] = true
			if err := markSeen(destDir, sum, a); err != nil {
				x.log.Warn("cannot record extracted archive", zap.String("archive", a), zap.Error(err))
			}
		}
	}
	return errs
}

func (x *Extractor) wrap(path string, f ArchiveFormat, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	err := &apperr.ArchiveFormatError{Path: path, Format: f.String(), Cause: cause}
	x.fail(path, err)
	return err
}

func (x *Extractor) fail(path string, err error) {
	x.metrics.RecordArchive(false)
	x.log.Error("archive extraction failed",
		zap.String("archive", path),
		zap.String("code", apperr.CodeArchiveFormat),
		zap.Error(err))
}

// safeJoin resolves an archive entry name under dest, rejecting absolute
// names and any that climb out with "..".
func safeJoin(dest, name string) (string, error) {
	clean := filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %q", errUnsafePath, name)
	}
	return filepath.Join(dest, clean), nil
}

type entryWriter struct {
	ctx     context.Context
	dest    string
	archive string
	n       int
	skipped []error
}

// write creates one entry. A regular file is never written over an existing
// one.
func (w *entryWriter) write(name string, isDir bool, open func() (io.ReadCloser, error)) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	target, err := safeJoin(w.dest, name)
	if err != nil {
		return err
	}
	if isDir {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		w.skipped = append(w.skipped, &apperr.RenameCollisionError{From: w.archive + ":" + name, To: target})
		return nil
	}
	if err != nil {
		return err
	}
	src, err := open()
	if err != nil {
		out.Close()
		os.Remove(target)
		return err
	}
	defer src.Close()
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(target)
		return err
	}
	w.n++
	return out.Close()
}
