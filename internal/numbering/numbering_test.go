package numbering

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MalithGihan/opis-service/internal/ingest/ingesttest"
	"github.com/MalithGihan/opis-service/pkg/types"
)

func records(names ...string) []types.DocumentRecord {
	var out []types.DocumentRecord
	for _, n := range names {
		out = append(out, types.NewRecord(filepath.Join("/work", n)))
	}
	return out
}

func TestAssignSequence(t *testing.T) {
	in := records("b.pdf", "a.txt", "c.png")
	out := AssignSequence(in, Options{})

	require.Len(t, out, 3)
	for i, r := range out {
		assert.Equal(t, i+1, r.Sequence)
		assert.Equal(t, in[i].DisplayName, r.DisplayName)
	}
	assert.Zero(t, in[0].Sequence, "input must not be mutated")
	assert.Empty(t, AssignSequence(nil, Options{}))
}

func TestAssignSequencePrefixIsIdempotent(t *testing.T) {
	first := AssignSequence(records("b.pdf", "a.txt"), Options{PrefixNames: true})
	assert.Equal(t, "1. b.pdf", first[0].DisplayName)
	assert.Equal(t, "2. a.txt", first[1].DisplayName)

	second := AssignSequence(first, Options{PrefixNames: true})
	assert.Equal(t, first, second)

	reordered := AssignSequence([]types.DocumentRecord{first[1], first[0]}, Options{PrefixNames: true})
	assert.Equal(t, "1. a.txt", reordered[0].DisplayName)
	assert.Equal(t, "2. b.pdf", reordered[1].DisplayName)
}

func TestStripPrefix(t *testing.T) {
	assert.Equal(t, "name.pdf", StripPrefix("12. name.pdf"))
	assert.Equal(t, "name.pdf", StripPrefix("name.pdf"))
	assert.Equal(t, "1.5 spec.txt", StripPrefix("1.5 spec.txt"))
	assert.Equal(t, "2. x", StripPrefix("1. 2. x"))
}

func TestStampPNG(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scan.png")
	img := image.NewRGBA(image.Rect(0, 0, 80, 40))
	for y := range 40 {
		for x := range 80 {
			img.Set(x, y, color.White)
		}
	}
	f, err := os.Create(src)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	rec := types.NewRecord(src)
	rec.Sequence = 7
	out, err := NewStamper(zap.NewNop()).Stamp(context.Background(), rec, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "numbered_scan.png"), out)

	g, err := os.Open(out)
	require.NoError(t, err)
	defer g.Close()
	stamped, err := png.Decode(g)
	require.NoError(t, err)

	dark := false
	for y := 10; y < 24 && !dark; y++ {
		for x := 10; x < 18; x++ {
			r, _, _, _ := stamped.At(x, y).RGBA()
			if r < 0x8000 {
				dark = true
				break
			}
		}
	}
	assert.True(t, dark, "expected the number to be drawn near (10,10)")
}

func TestStampPDFKeepsPages(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "drawing.pdf")
	ingesttest.WritePDF(t, src, 2)

	rec := types.NewRecord(src)
	rec.Sequence = 3
	out, err := NewStamper(nil).Stamp(context.Background(), rec, dir)
	require.NoError(t, err)
	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStampUnsupported(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	ingesttest.Touch(t, src, "x")
	rec := types.NewRecord(src)
	rec.Sequence = 1

	_, err := NewStamper(nil).Stamp(context.Background(), rec, dir)
	assert.True(t, errors.Is(err, ErrStampUnsupported))

	rec.Sequence = 0
	_, err = NewStamper(nil).Stamp(context.Background(), rec, dir)
	assert.Error(t, err)
}
