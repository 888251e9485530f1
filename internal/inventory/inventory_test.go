package inventory

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/MalithGihan/opis-service/internal/ingest"
	"github.com/MalithGihan/opis-service/internal/ingest/ingesttest"
	"github.com/MalithGihan/opis-service/internal/numbering"
	"github.com/MalithGihan/opis-service/pkg/types"
)

func sampleReport(t *testing.T, dir string) Report {
	t.Helper()
	a := filepath.Join(dir, "Основной чертёж.pdf")
	b := filepath.Join(dir, "spec.txt")
	ingesttest.WritePDF(t, a, 3)
	ingesttest.Touch(t, b, strings.Repeat("line\n", 120))

	ext := ingest.New(nil)
	recA := ext.Metadata(a)
	recA.Designation = "Основной чертёж"
	recs := numbering.AssignSequence([]types.DocumentRecord{recA, ext.Metadata(b)}, numbering.Options{})
	r := Build(recs)
	r.RunID = "run-1"
	r.RelativeTo(dir)
	return r
}

func TestBuildKeepsOrderAndDuplicates(t *testing.T) {
	rec := types.NewRecord("/w/a.txt")
	rec.Sequence = 1
	dup := rec
	dup.Sequence = 2
	r := Build([]types.DocumentRecord{rec, dup})

	require.Len(t, r.Entries, 2)
	assert.Equal(t, Title, r.Title)
	assert.Equal(t, 1, r.Entries[0].Number)
	assert.Equal(t, 2, r.Entries[1].Number)
	assert.Equal(t, r.Entries[0].Name, r.Entries[1].Name)
	assert.False(t, r.GeneratedAt.IsZero())
}

func TestRelativeTo(t *testing.T) {
	r := Report{Entries: []Entry{
		{File: filepath.Join("/w", "sub", "a.pdf")},
		{File: "/elsewhere/b.pdf"},
		{},
	}}
	r.RelativeTo("/w")
	assert.Equal(t, "sub/a.pdf", r.Entries[0].File)
	assert.Equal(t, "/elsewhere/b.pdf", r.Entries[1].File)
	assert.Empty(t, r.Entries[2].File)
}

func TestScenarioInventory(t *testing.T) {
	r := sampleReport(t, t.TempDir())
	require.Len(t, r.Entries, 2)
	assert.Equal(t, Entry{Number: 1, Name: "Основной чертёж.pdf", Designation: "Основной чертёж", Pages: 3, Format: "pdf", File: "Основной чертёж.pdf"}, r.Entries[0])
	assert.Equal(t, Entry{Number: 2, Name: "spec.txt", Designation: "spec", Pages: 3, Format: "txt", File: "spec.txt"}, r.Entries[1])
}

func TestMarkdownLayout(t *testing.T) {
	r := Report{Title: Title, Entries: []Entry{{Number: 1, Name: "a.pdf", Designation: "a", Pages: 2, Format: "pdf"}}}
	var buf bytes.Buffer
	require.NoError(t, markdownRenderer{}.Render(&buf, r))
	want := "# Опись документов\n\n### № 1\n\n" +
		"Наименование: a.pdf  \nОбозначение: a  \nКоличество листов: 2  \nФормат: pdf\n"
	assert.Equal(t, want, buf.String())
}

func TestJSONRendererValidates(t *testing.T) {
	r := Build([]types.DocumentRecord{types.NewRecord("/w/a.txt")})
	err := jsonRenderer{}.Render(io.Discard, r)
	assert.Error(t, err, "unnumbered entries violate the schema")
}

func TestWriteFilesAndLoadJSON(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport(t, dir)
	rs, err := Resolve([]string{"markdown", "json", "yaml", "xlsx", "docx"})
	require.NoError(t, err)

	written, err := WriteFiles(dir, "опись", r, rs)
	require.NoError(t, err)
	require.Len(t, written, 5)
	for _, ext := range []string{"md", "json", "yaml", "xlsx", "docx"} {
		assert.FileExists(t, filepath.Join(dir, "опись."+ext))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}

	loaded, err := LoadJSON(filepath.Join(dir, "опись.json"))
	require.NoError(t, err)
	assert.Equal(t, r.Entries, loaded.Entries)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.True(t, r.GeneratedAt.Equal(loaded.GeneratedAt))

	var y Report
	b, err := os.ReadFile(filepath.Join(dir, "опись.yaml"))
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(b, &y))
	assert.Equal(t, r.Entries, y.Entries)

	f, err := excelize.OpenFile(filepath.Join(dir, "опись.xlsx"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"№", "Наименование", "Обозначение", "Количество листов", "Формат"}, rows[0])
	assert.Equal(t, []string{"2", "spec.txt", "spec", "3", "txt"}, rows[2])

	zr, err := zip.OpenReader(filepath.Join(dir, "опись.docx"))
	require.NoError(t, err)
	defer zr.Close()
	var doc string
	for _, zf := range zr.File {
		if zf.Name == "word/document.xml" {
			rc, err := zf.Open()
			require.NoError(t, err)
			raw, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			doc = string(raw)
		}
	}
	assert.Contains(t, doc, "Опись документов")
	assert.Contains(t, doc, "Количество листов: 3")
}

func TestResolveUnknown(t *testing.T) {
	_, err := Resolve([]string{"markdown", "pdf"})
	assert.Error(t, err)
	assert.Len(t, Names(), 5)
}

func TestAudit(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport(t, dir)
	assert.Empty(t, Audit(r, dir, nil))

	require.NoError(t, os.Remove(filepath.Join(dir, "Основной чертёж.pdf")))
	ingesttest.Touch(t, filepath.Join(dir, "spec.txt"), "short")
	r.Entries = append(r.Entries, Entry{Number: 3, Name: "3. extra.txt", Pages: 1, Format: "pdf"})
	ingesttest.Touch(t, filepath.Join(dir, "extra.txt"), "x")

	got := Audit(r, dir, ingest.New(nil))
	assert.Equal(t, []Discrepancy{
		{Number: 1, Name: "Основной чертёж.pdf", Kind: Missing},
		{Number: 2, Name: "spec.txt", Kind: PagesMismatch, Want: "3", Got: "1"},
		{Number: 3, Name: "3. extra.txt", Kind: FormatMismatch, Want: "pdf", Got: "txt"},
	}, got)
}
