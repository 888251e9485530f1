// Package ingesttest writes small document fixtures for tests.
package ingesttest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// WritePDF writes a structurally valid PDF with the given number of blank
// pages and a correct cross-reference table.
func WritePDF(t testing.TB, path string, pages int) {
	t.Helper()
	var objs []string
	kids := make([]string, pages)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages),
	)
	for range pages {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objs)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)

	mkParent(t, path)
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
}

// WritePDFBadXref writes a one-page PDF whose startxref points past the end
// of the file.
func WritePDFBadXref(t testing.TB, path string) {
	t.Helper()
	WritePDF(t, path, 1)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	i := bytes.LastIndex(b, []byte("startxref"))
	require.GreaterOrEqual(t, i, 0)
	b = append(b[:i:i], "startxref\n99999\n%%EOF\n"...)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

// WriteDOCX writes a minimal .docx. Each paragraph becomes a w:p; sections
// is the number of w:sectPr elements; a non-nil table is emitted before
// the paragraphs.
func WriteDOCX(t testing.TB, path string, paragraphs []string, sections int, table [][]string) {
	t.Helper()
	var body strings.Builder
	if table != nil {
		body.WriteString("<w:tbl>")
		for _, row := range table {
			body.WriteString("<w:tr>")
			for _, cell := range row {
				body.WriteString("<w:tc>" + para(cell) + "</w:tc>")
			}
			body.WriteString("</w:tr>")
		}
		body.WriteString("</w:tbl>")
	}
	for _, p := range paragraphs {
		body.WriteString(para(p))
	}
	for range sections {
		body.WriteString(`<w:p><w:pPr><w:sectPr><w:pgSz w:w="11906" w:h="16838"/></w:sectPr></w:pPr></w:p>`)
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	WriteZip(t, path, map[string][]byte{
		"[Content_Types].xml": []byte(`<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`),
		"word/document.xml":   []byte(doc),
	})
}

func para(s string) string {
	var b bytes.Buffer
	b.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
	_ = xml.EscapeText(&b, []byte(s))
	b.WriteString(`</w:t></w:r></w:p>`)
	return b.String()
}

// WriteZip writes a zip archive holding the given entries.
func WriteZip(t testing.TB, path string, entries map[string][]byte) {
	t.Helper()
	mkParent(t, path)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// WriteXLSX writes a workbook; sheets maps sheet name to rows, in the
// order given by names.
func WriteXLSX(t testing.TB, path string, names []string, sheets map[string][][]string) {
	t.Helper()
	mkParent(t, path)
	f := excelize.NewFile()
	defer f.Close()
	for i, name := range names {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			vals := make([]any, len(row))
			for j, v := range row {
				vals[j] = v
			}
			require.NoError(t, f.SetSheetRow(name, cell, &vals))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

// Touch writes content to path, creating parent directories.
func Touch(t testing.TB, path, content string) {
	t.Helper()
	mkParent(t, path)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func mkParent(t testing.TB, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
}
