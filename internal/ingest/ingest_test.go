package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/text/encoding/charmap"

	"github.com/MalithGihan/opis-service/internal/ingest/ingesttest"
)

type fakeOCR struct {
	text  string
	calls int
}

func (f *fakeOCR) Recognize(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.text, nil
}

func lines(n int, trailing bool) string {
	s := strings.TrimSuffix(strings.Repeat("строка\n", n), "\n")
	if trailing && n > 0 {
		s += "\n"
	}
	return s
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, CountLines(nil))
	assert.Equal(t, 1, CountLines([]byte("one")))
	assert.Equal(t, 1, CountLines([]byte("one\n")))
	assert.Equal(t, 2, CountLines([]byte("one\ntwo")))
	assert.Equal(t, 2, CountLines([]byte("\n\n")))
}

func TestTextPageCount(t *testing.T) {
	dir := t.TempDir()
	e := New(zap.NewNop())
	cases := map[string]struct {
		content string
		want    int
	}{
		"empty.txt":  {"", 0},
		"one.txt":    {"hello", 1},
		"fifty.txt":  {lines(50, true), 1},
		"fifty1.txt": {lines(51, false), 2},
		"spec.txt":   {lines(120, true), 3},
	}
	for name, tc := range cases {
		p := filepath.Join(dir, name)
		ingesttest.Touch(t, p, tc.content)
		rec := e.Metadata(p)
		assert.Equal(t, tc.want, rec.PageCount, name)
		assert.Equal(t, "txt", rec.Format, name)
		assert.False(t, rec.Degraded(), name)
	}
}

func TestReadTextWindows1251(t *testing.T) {
	p := filepath.Join(t.TempDir(), "legacy.txt")
	enc, err := charmap.Windows1251.NewEncoder().String("Основной чертёж")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte(enc), 0o644))

	got, err := New(nil).Text(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Основной чертёж", got)
}

func TestPDFPageCount(t *testing.T) {
	p := filepath.Join(t.TempDir(), "drawing1.pdf")
	ingesttest.WritePDF(t, p, 3)

	rec := New(zap.NewNop()).Metadata(p)
	assert.Equal(t, 3, rec.PageCount)
	assert.Equal(t, "pdf", rec.Format)
	assert.Equal(t, "drawing1", rec.Designation)
	assert.Equal(t, "drawing1.pdf", rec.DisplayName)
}

func TestCorruptPDFDegrades(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.pdf")
	ingesttest.Touch(t, p, "not a pdf at all")

	core, logs := observer.New(zap.WarnLevel)
	rec := New(zap.New(core)).Metadata(p)
	assert.Equal(t, 0, rec.PageCount)
	assert.Equal(t, "broken", rec.Designation)
	assert.True(t, rec.Degraded())
	assert.Contains(t, rec.Err, "EXTRACT_001")
	assert.Equal(t, 1, logs.FilterMessage("metadata extraction failed").Len())
}

func TestPDFTextWithBrokenXrefReturnsError(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad_xref.pdf")
	ingesttest.WritePDFBadXref(t, p)

	var text string
	var err error
	require.NotPanics(t, func() { text, err = New(zap.NewNop()).Text(context.Background(), p) })
	assert.Error(t, err)
	assert.Empty(t, text)
}

func TestDOCX(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "note.docx")
	ingesttest.WriteDOCX(t, p, []string{"Первый абзац", "See SN-42 & more"}, 2, nil)

	e := New(zap.NewNop())
	assert.Equal(t, 2, e.Metadata(p).PageCount)

	text, err := e.Text(context.Background(), p)
	require.NoError(t, err)
	assert.Contains(t, text, "Первый абзац\n")
	assert.Contains(t, text, "See SN-42 & more")

	empty := filepath.Join(dir, "empty.docx")
	ingesttest.WriteDOCX(t, empty, nil, 0, nil)
	rec := e.Metadata(empty)
	assert.Equal(t, 0, rec.PageCount)
	assert.False(t, rec.Degraded())
}

func TestDOCXWithoutDocumentPart(t *testing.T) {
	p := filepath.Join(t.TempDir(), "odd.docx")
	ingesttest.WriteZip(t, p, map[string][]byte{"other.xml": []byte("<x/>")})
	rec := New(zap.NewNop()).Metadata(p)
	assert.True(t, rec.Degraded())
}

func TestDocxFirstTable(t *testing.T) {
	p := filepath.Join(t.TempDir(), "catalog.docx")
	ingesttest.WriteDOCX(t, p, []string{"after"}, 1, [][]string{
		{"Russian", "English"},
		{"Чертёж", "Drawing"},
	})
	rows, err := DocxFirstTable(p)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Russian", "English"}, {"Чертёж", "Drawing"}}, rows)
}

func TestSheet(t *testing.T) {
	p := filepath.Join(t.TempDir(), "book.xlsx")
	ingesttest.WriteXLSX(t, p, []string{"A", "B"}, map[string][][]string{
		"A": {{"x", "y"}},
		"B": {{"z"}},
	})
	e := New(zap.NewNop())
	assert.Equal(t, 2, e.Metadata(p).PageCount)

	text, err := e.Text(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Лист A:\nx\ty\nЛист B:\nz\n", text)
}

func TestRasterAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "scan.PNG")
	other := filepath.Join(dir, "model.dwg")
	ingesttest.Touch(t, img, "png bytes")
	ingesttest.Touch(t, other, "dwg bytes")

	e := New(zap.NewNop())
	rec := e.Metadata(img)
	assert.Equal(t, 1, rec.PageCount)
	assert.Equal(t, "png", rec.Format)

	rec = e.Metadata(other)
	assert.Equal(t, 0, rec.PageCount)
	assert.Equal(t, "dwg", rec.Format)
	assert.False(t, rec.Degraded())

	_, err := e.Text(context.Background(), img)
	assert.ErrorIs(t, err, ErrNoRecognizer)

	ocr := &fakeOCR{text: "распознано"}
	text, err := New(nil, WithRecognizer(ocr)).Text(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "распознано", text)
	assert.Equal(t, 1, ocr.calls)
}

func TestMissingFileDegrades(t *testing.T) {
	rec := New(zap.NewNop()).Metadata(filepath.Join(t.TempDir(), "gone.txt"))
	assert.True(t, rec.Degraded())
	assert.Equal(t, "gone", rec.Designation)
}

func TestMaxFileSize(t *testing.T) {
	p := filepath.Join(t.TempDir(), "big.txt")
	ingesttest.Touch(t, p, strings.Repeat("x", 64))
	_, err := New(nil, WithMaxFileSize(10)).Text(context.Background(), p)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestExtractCorpus(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	ingesttest.Touch(t, filepath.Join(dir, "a.txt"), "alpha")
	ingesttest.Touch(t, filepath.Join(dir, ".hidden.txt"), "secret")
	ingesttest.Touch(t, filepath.Join(dir, "model.dwg"), "skip")
	ingesttest.Touch(t, filepath.Join(dir, "scan.png"), "no ocr")
	ingesttest.WriteDOCX(t, filepath.Join(dir, "sub", "b.docx"), []string{"beta"}, 1, nil)
	ingesttest.WriteZip(t, filepath.Join(dir, "c.docx"), map[string][]byte{
		"word/document.xml":  []byte(`<w:document xmlns:w="w"><w:body><w:p><w:r><w:t>gamma</w:t></w:r></w:p></w:body></w:document>`),
		"word/media/img.png": []byte("fake png"),
	})

	stats, err := New(zap.NewNop()).ExtractCorpus(context.Background(), dir, out)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 1, stats.Images)
	assert.Equal(t, []string{"scan.png"}, stats.Failed)

	b, err := os.ReadFile(filepath.Join(out, CorpusFile))
	require.NoError(t, err)
	got := string(b)
	assert.Contains(t, got, "--- Данные из a.txt ---\nalpha\n")
	assert.Contains(t, got, "--- Данные из b.docx ---\nbeta\n")
	assert.NotContains(t, got, "secret")
	assert.Less(t, strings.Index(got, "a.txt"), strings.Index(got, "c.docx"))
	assert.FileExists(t, filepath.Join(out, "c_img.png"))
}

func TestExtractCorpusSkipsUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not apply to root")
	}
	dir := t.TempDir()
	ingesttest.Touch(t, filepath.Join(dir, "a.txt"), "alpha")
	ingesttest.Touch(t, filepath.Join(dir, "locked", "b.txt"), "beta")
	require.NoError(t, os.Chmod(filepath.Join(dir, "locked"), 0))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(dir, "locked"), 0o755) })

	stats, err := New(zap.NewNop()).ExtractCorpus(context.Background(), dir, filepath.Join(dir, DefaultCorpusDir))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, []string{"locked"}, stats.Failed)
}
