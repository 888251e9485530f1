package ingest

import (
	"bufio"
	"context"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"

	"github.com/MalithGihan/opis-service/pkg/types"
)

// CorpusFile is the name of the concatenated text dump.
const CorpusFile = "extracted_data.txt"

// DefaultCorpusDir is the output directory, under the processed directory,
// used when none is given. It is hidden so exported images are never
// inventoried as documents.
const DefaultCorpusDir = ".extracted"

type CorpusStats struct {
	Files  int      `json:"files"`
	Images int      `json:"images"`
	Failed []string `json:"failed,omitempty"`
}

// ExtractCorpus writes the text of every supported file under dir into
// outDir/extracted_data.txt and exports embedded PDF and DOCX images into
// outDir. A file that cannot be read is logged and skipped.
func (e *Extractor) ExtractCorpus(ctx context.Context, dir, outDir string) (CorpusStats, error) {
	var stats CorpusStats
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return stats, err
	}
	files, unreadable, err := corpusFiles(dir, outDir)
	if err != nil {
		return stats, err
	}
	for _, p := range slices.Sorted(maps.Keys(unreadable)) {
		e.log.Warn("unreadable entry skipped", zap.String("path", p), zap.Error(unreadable[p]))
		stats.Failed = append(stats.Failed, filepath.Base(p))
	}

	out, err := os.Create(filepath.Join(outDir, CorpusFile))
	if err != nil {
		return stats, err
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	for _, p := range files {
		if err := ctx.Err(); err != nil {
			break
		}
		name := filepath.Base(p)
		text, err := e.Text(ctx, p)
		if err != nil {
			e.log.Warn("text extraction failed", zap.String("path", p), zap.Error(err))
			stats.Failed = append(stats.Failed, name)
			continue
		}
		w.WriteString("--- Данные из " + name + " ---\n")
		w.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			w.WriteString("\n")
		}
		w.WriteString("\n")
		stats.Files++

		n, err := e.exportImages(p, outDir)
		if err != nil {
			e.log.Warn("image export failed", zap.String("path", p), zap.Error(err))
		}
		stats.Images += n
	}
	if err := w.Flush(); err != nil {
		return stats, err
	}
	e.log.Info("corpus extracted",
		zap.String("dir", dir),
		zap.Int("files", stats.Files),
		zap.Int("images", stats.Images),
		zap.Int("failed", len(stats.Failed)))
	return stats, ctx.Err()
}

func (e *Extractor) exportImages(p, outDir string) (int, error) {
	switch types.DetectKind(p) {
	case types.KindWord:
		return docxMedia(p, outDir, types.Stem(p))
	case types.KindPDF:
		before, err := listFiles(outDir)
		if err != nil {
			return 0, err
		}
		if err := api.ExtractImagesFile(p, outDir, nil, nil); err != nil {
			return 0, err
		}
		after, err := listFiles(outDir)
		if err != nil {
			return 0, err
		}
		return len(after) - len(before), nil
	default:
		return 0, nil
	}
}

// corpusFiles lists supported files under dir in lexical order, skipping
// hidden entries and anything inside outDir. Entries below dir that cannot
// be read are returned in unreadable and left out.
func corpusFiles(dir, outDir string) (files []string, unreadable map[string]error, err error) {
	absOut, _ := filepath.Abs(outDir)
	unreadable = make(map[string]error)
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			if p == dir {
				return werr
			}
			unreadable[p] = werr
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if abs, _ := filepath.Abs(p); p != dir && abs == absOut {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == CorpusFile || types.DetectKind(p) == types.KindUnsupported {
			return nil
		}
		files = append(files, p)
		return nil
	})
	sort.Strings(files)
	return files, unreadable, err
}
