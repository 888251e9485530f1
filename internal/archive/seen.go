package archive

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SeenFile lists, inside a destination directory, the SHA-256 and name of
// every archive already extracted into it. The leading dot keeps it out of
// document discovery.
const SeenFile = ".opis-archives"

func digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func loadSeen(dest string) (map[string]bool, error) {
	seen := make(map[string]bool)
	f, err := os.Open(filepath.Join(dest, SeenFile))
	if errors.Is(err, fs.ErrNotExist) {
		return seen, nil
	}
	if err != nil {
		return seen, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if sum, _, ok := strings.Cut(sc.Text(), "  "); ok {
			seen[sum] = true
		}
	}
	return seen, sc.Err()
}

func markSeen(dest, sum, archivePath string) error {
	f, err := os.OpenFile(filepath.Join(dest, SeenFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(sum + "  " + filepath.Base(archivePath) + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
