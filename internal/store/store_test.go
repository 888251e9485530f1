package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLayout(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "projects"))
	require.NoError(t, err)

	id, err := s.NewJob()
	require.NoError(t, err)
	assert.True(t, s.Exists(id))
	assert.DirExists(t, s.UploadsDir(id))
	assert.DirExists(t, s.WorkDir(id))

	p, err := s.SaveUpload(id, "../../batch.zip", strings.NewReader("zip"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.UploadsDir(id), "batch.zip"), p)

	_, err = s.SaveUpload(id, "catalog.xlsx", strings.NewReader("x"))
	require.NoError(t, err)
	ups, err := s.Uploads(id)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(s.UploadsDir(id), "batch.zip"),
		filepath.Join(s.UploadsDir(id), "catalog.xlsx"),
	}, ups)
}

func TestUnknownJob(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	assert.False(t, s.Exists("../etc"))
	assert.False(t, s.Exists("00000000-0000-0000-0000-000000000000"))
	_, err = s.Uploads("nope")
	assert.ErrorIs(t, err, ErrNoJob)
	_, err = s.SaveUpload("nope", "a.zip", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoJob)
}
