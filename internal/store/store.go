package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

var ErrNoJob = errors.New("job not found")

// FS lays jobs out as <Root>/<id>/uploads (received archives and catalog)
// and <Root>/<id>/work (the processed directory).
type FS struct{ Root string }

func New(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FS{Root: root}, nil
}

func (s *FS) JobDir(id string) string     { return filepath.Join(s.Root, id) }
func (s *FS) UploadsDir(id string) string { return filepath.Join(s.JobDir(id), "uploads") }
func (s *FS) WorkDir(id string) string    { return filepath.Join(s.JobDir(id), "work") }

// NewJob allocates a fresh job id and creates its directories.
func (s *FS) NewJob() (string, error) {
	id := uuid.NewString()
	_, err := s.MkJob(id)
	return id, err
}

func (s *FS) MkJob(id string) (string, error) {
	j := s.JobDir(id)
	if err := os.MkdirAll(s.UploadsDir(id), 0o755); err != nil {
		return j, err
	}
	return j, os.MkdirAll(s.WorkDir(id), 0o755)
}

// Exists reports whether id is a well-formed job id with a directory.
func (s *FS) Exists(id string) bool {
	if _, err := uuid.Parse(id); err != nil {
		return false
	}
	st, err := os.Stat(s.JobDir(id))
	return err == nil && st.IsDir()
}

// SaveUpload copies r into the job's uploads directory under the base name
// of name and returns the stored path.
func (s *FS) SaveUpload(id, name string, r io.Reader) (string, error) {
	if !s.Exists(id) {
		return "", ErrNoJob
	}
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "", fmt.Errorf("invalid upload name %q", name)
	}
	dst := filepath.Join(s.UploadsDir(id), base)
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", err
	}
	return dst, f.Close()
}

// Uploads lists the stored uploads of a job in name order.
func (s *FS) Uploads(id string) ([]string, error) {
	if !s.Exists(id) {
		return nil, ErrNoJob
	}
	entries, err := os.ReadDir(s.UploadsDir(id))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, filepath.Join(s.UploadsDir(id), e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
