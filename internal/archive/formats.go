package archive

import (
	"archive/zip"
	"errors"
	"io"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
	"golang.org/x/text/encoding/charmap"
)

// zipName decodes entry names written without the UTF-8 flag. Archives
// made by Windows tools in Russian locales use CP866 for those.
func zipName(f *zip.File) string {
	if !f.NonUTF8 {
		return f.Name
	}
	if s, err := charmap.CodePage866.NewDecoder().String(f.Name); err == nil {
		return s
	}
	return f.Name
}

func extractZip(path string, w *entryWriter) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()
	for _, f := range zr.File {
		if err := w.write(zipName(f), f.FileInfo().IsDir(), f.Open); err != nil {
			return err
		}
	}
	return nil
}

func extractRar(path string, w *entryWriter) error {
	rc, err := rardecode.OpenReader(path)
	if err != nil {
		return err
	}
	defer rc.Close()
	for {
		h, err := rc.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		open := func() (io.ReadCloser, error) { return io.NopCloser(rc), nil }
		if err := w.write(h.Name, h.IsDir, open); err != nil {
			return err
		}
	}
}

func extractSevenZip(path string, w *entryWriter) error {
	rc, err := sevenzip.OpenReader(path)
	if err != nil {
		return err
	}
	defer rc.Close()
	for _, f := range rc.File {
		if err := w.write(f.Name, f.FileInfo().IsDir(), f.Open); err != nil {
			return err
		}
	}
	return nil
}
