package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const documentPart = "word/document.xml"

var errNoDocumentPart = errors.New("docx: word/document.xml not found")

type wDocument struct {
	Body wBody `xml:"body"`
}
type wBody struct {
	Tables []wTable `xml:"tbl"`
}
type wTable struct {
	Rows []wRow `xml:"tr"`
}
type wRow struct {
	Cells []wCell `xml:"tc"`
}
type wCell struct {
	Paras []wPara `xml:"p"`
}
type wPara struct {
	Runs []wRun `xml:"r"`
}
type wRun struct {
	Text []string `xml:"t"`
}

func readDocumentPart(p string) ([]byte, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != documentPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, errNoDocumentPart
}

// docxPageCount counts w:sectPr elements. Word does not store a page count
// in the body, so sections stand in for pages.
func docxPageCount(p string) (int, error) {
	b, err := readDocumentPart(p)
	if err != nil {
		return 0, err
	}
	dec := xml.NewDecoder(bytes.NewReader(b))
	n := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("docx: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "sectPr" {
			n++
		}
	}
}

// docxText returns the paragraph text, one paragraph per line.
func docxText(p string) (string, error) {
	b, err := readDocumentPart(p)
	if err != nil {
		return "", err
	}
	dec := xml.NewDecoder(bytes.NewReader(b))
	var out strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out.String(), nil
		}
		if err != nil {
			return out.String(), fmt.Errorf("docx: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteByte('\t')
			case "br", "cr":
				out.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
}

// DocxFirstTable returns the cell text of the first table in a .docx file.
func DocxFirstTable(p string) ([][]string, error) {
	b, err := readDocumentPart(p)
	if err != nil {
		return nil, err
	}
	var doc wDocument
	if err := xml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("docx: %w", err)
	}
	if len(doc.Body.Tables) == 0 {
		return nil, errors.New("docx: no table found")
	}
	var rows [][]string
	for _, r := range doc.Body.Tables[0].Rows {
		row := make([]string, 0, len(r.Cells))
		for _, c := range r.Cells {
			var parts []string
			for _, para := range c.Paras {
				var sb strings.Builder
				for _, run := range para.Runs {
					for _, t := range run.Text {
						sb.WriteString(t)
					}
				}
				parts = append(parts, sb.String())
			}
			row = append(row, strings.Join(parts, "\n"))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// docxMedia copies word/media/* into outDir as "<prefix>_<name>".
func docxMedia(p, outDir, prefix string) (int, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return 0, err
	}
	defer zr.Close()
	n := 0
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "word/media/") || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if err := copyZipEntry(f, filepath.Join(outDir, prefix+"_"+path.Base(f.Name))); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func copyZipEntry(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
