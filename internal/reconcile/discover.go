package reconcile

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MalithGihan/opis-service/internal/apperr"
	"github.com/MalithGihan/opis-service/internal/ingest"
	"github.com/MalithGihan/opis-service/pkg/types"
)

// OutputNames lists the base names this tool writes into a processed
// directory, so a re-run never treats them as documents.
func OutputNames(inventoryName string, renderExts []string, logFile, ledgerPath string) []string {
	names := []string{ingest.CorpusFile}
	for _, ext := range renderExts {
		names = append(names, inventoryName+"."+ext)
	}
	if logFile != "" {
		names = append(names, filepath.Base(logFile))
	}
	if ledgerPath != "" {
		base := filepath.Base(ledgerPath)
		names = append(names, base, base+"-wal", base+"-shm", base+"-journal")
	}
	return names
}

// walkDir is swapped in tests to simulate unreadable entries.
var walkDir = filepath.WalkDir

// Discover walks dir and returns the candidate document paths in lexical
// order. Hidden entries, files without an extension and the names in skip
// are left out. An entry that cannot be read is skipped, together with
// everything below it, and reported in unreadable as an
// *apperr.ExtractionError. Only a failure on dir itself is returned as err.
func Discover(dir string, skip []string) (files []string, unreadable []error, err error) {
	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[strings.ToLower(s)] = true
	}

	err = walkDir(dir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			if path == dir {
				return werr
			}
			unreadable = append(unreadable, &apperr.ExtractionError{Path: path, Format: types.FormatOf(path), Cause: werr})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if path != dir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if filepath.Ext(name) == "" || skipSet[strings.ToLower(name)] {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, unreadable, err
	}
	sort.Strings(files)
	return files, unreadable, nil
}
