package inventory

import (
	"archive/zip"
	"bufio"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/MalithGihan/opis-service/internal/validate"
)

// Renderer turns a report into one output document.
type Renderer interface {
	Name() string
	Ext() string
	Render(w io.Writer, r Report) error
}

var renderers = map[string]Renderer{
	"markdown": markdownRenderer{},
	"json":     jsonRenderer{},
	"yaml":     yamlRenderer{},
	"xlsx":     xlsxRenderer{},
	"docx":     docxRenderer{},
}

// Names lists the registered renderer names.
func Names() []string {
	return []string{"markdown", "json", "yaml", "xlsx", "docx"}
}

// Resolve maps renderer names to renderers, keeping order.
func Resolve(names []string) ([]Renderer, error) {
	out := make([]Renderer, 0, len(names))
	for _, n := range names {
		r, ok := renderers[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("unknown renderer %q", n)
		}
		out = append(out, r)
	}
	return out, nil
}

type markdownRenderer struct{}

func (markdownRenderer) Name() string { return "markdown" }
func (markdownRenderer) Ext() string  { return "md" }

func (markdownRenderer) Render(w io.Writer, r Report) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s\n", r.Title)
	for _, e := range r.Entries {
		fmt.Fprintf(bw, "\n### № %d\n\n", e.Number)
		fmt.Fprintf(bw, "Наименование: %s  \n", e.Name)
		fmt.Fprintf(bw, "Обозначение: %s  \n", e.Designation)
		fmt.Fprintf(bw, "Количество листов: %d  \n", e.Pages)
		fmt.Fprintf(bw, "Формат: %s\n", e.Format)
	}
	return bw.Flush()
}

type jsonRenderer struct{}

func (jsonRenderer) Name() string { return "json" }
func (jsonRenderer) Ext() string  { return "json" }

// Render refuses to write a report that does not satisfy the inventory schema.
func (jsonRenderer) Render(w io.Writer, r Report) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := validate.InventoryJSON(b); err != nil {
		return fmt.Errorf("inventory json: %w", err)
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

type yamlRenderer struct{}

func (yamlRenderer) Name() string { return "yaml" }
func (yamlRenderer) Ext() string  { return "yaml" }

func (yamlRenderer) Render(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

type xlsxRenderer struct{}

func (xlsxRenderer) Name() string { return "xlsx" }
func (xlsxRenderer) Ext() string  { return "xlsx" }

var xlsxHeader = []any{"№", "Наименование", "Обозначение", "Количество листов", "Формат"}

// SheetName is the worksheet the xlsx renderer writes.
const SheetName = "Опись"

func (xlsxRenderer) Render(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, "A1", &xlsxHeader); err != nil {
		return err
	}
	for i, e := range r.Entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{e.Number, e.Name, e.Designation, e.Pages, e.Format}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return err
		}
	}
	return f.Write(w)
}

type docxRenderer struct{}

func (docxRenderer) Name() string { return "docx" }
func (docxRenderer) Ext() string  { return "docx" }

const (
	docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`
	docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`
)

// Render writes the paragraph layout of the legacy Word inventory: a title
// and one paragraph per entry with four labelled lines.
func (docxRenderer) Render(w io.Writer, r Report) error {
	var body strings.Builder
	body.WriteString(`<w:p><w:pPr><w:pStyle w:val="Title"/></w:pPr><w:r><w:t>`)
	xmlText(&body, r.Title)
	body.WriteString(`</w:t></w:r></w:p>`)
	for _, e := range r.Entries {
		lines := []string{
			"Наименование: " + e.Name,
			"Обозначение: " + e.Designation,
			"Количество листов: " + strconv.Itoa(e.Pages),
			"Формат: " + e.Format,
		}
		body.WriteString(`<w:p>`)
		for i, l := range lines {
			body.WriteString(`<w:r>`)
			if i > 0 {
				body.WriteString(`<w:br/>`)
			}
			body.WriteString(`<w:t xml:space="preserve">`)
			xmlText(&body, l)
			body.WriteString(`</w:t></w:r>`)
		}
		body.WriteString(`</w:p>`)
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	zw := zip.NewWriter(w)
	parts := []struct{ name, data string }{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxRels},
		{"word/document.xml", doc},
	}
	for _, p := range parts {
		fw, err := zw.Create(p.name)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(fw, p.data); err != nil {
			return err
		}
	}
	return zw.Close()
}

func xmlText(b *strings.Builder, s string) {
	_ = xml.EscapeText(b, []byte(s))
}

// WriteFiles renders report once per renderer into dir/<basename>.<ext>.
// Each file is written to a hidden temp file first and renamed into place.
func WriteFiles(dir, basename string, report Report, rs []Renderer) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, r := range rs {
		dst := filepath.Join(dir, basename+"."+r.Ext())
		if err := writeAtomic(dst, func(w io.Writer) error { return r.Render(w, report) }); err != nil {
			return written, fmt.Errorf("render %s: %w", r.Name(), err)
		}
		written = append(written, dst)
	}
	return written, nil
}

func writeAtomic(dst string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := fill(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
