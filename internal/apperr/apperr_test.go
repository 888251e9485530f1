package apperr

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&CatalogLoadError{Path: "ref.xlsx", Reason: "missing column"}, CodeCatalogLoad},
		{fmt.Errorf("wrap: %w", &ExtractionError{Path: "a.pdf", Format: "pdf", Cause: os.ErrNotExist}), CodeExtraction},
		{&RenameCollisionError{From: "a", To: "b"}, CodeRenameCollision},
		{&ArchiveFormatError{Path: "x.tar", Format: "tar"}, CodeArchiveFormat},
		{errors.New("plain"), CodeUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Code(tc.err))
	}
}

func TestUnwrap(t *testing.T) {
	err := &ExtractionError{Path: "a.pdf", Format: "pdf", Cause: os.ErrPermission}
	assert.ErrorIs(t, err, os.ErrPermission)

	cl := &CatalogLoadError{Path: "ref.csv", Reason: "open", Cause: os.ErrNotExist}
	assert.ErrorIs(t, cl, os.ErrNotExist)
	assert.Contains(t, cl.Error(), CodeCatalogLoad)
}

func TestFatal(t *testing.T) {
	assert.True(t, Fatal(fmt.Errorf("run: %w", &CatalogLoadError{Path: "r"})))
	assert.False(t, Fatal(&ArchiveFormatError{Path: "x.tar", Format: "tar"}))
	assert.False(t, Fatal(&RenameCollisionError{}))
}

func TestArchiveFormatErrorMessage(t *testing.T) {
	assert.Contains(t, (&ArchiveFormatError{Path: "x.tar", Format: "tar"}).Error(), `unsupported format "tar"`)
	assert.Contains(t, (&ArchiveFormatError{Path: "x.zip", Format: "zip", Cause: errors.New("bad crc")}).Error(), "bad crc")
}
