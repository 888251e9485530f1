package ingest

import (
	"bytes"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// LinesPerPage is the page size used for plain text files.
const LinesPerPage = 50

// readText returns the file as UTF-8. Bytes that are not valid UTF-8 are
// decoded as Windows-1251, the usual encoding of legacy Russian text files.
func readText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if utf8.Valid(b) {
		return string(b), nil
	}
	dec, err := charmap.Windows1251.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(dec), nil
}

func textPageCount(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return PagesForLines(CountLines(b)), nil
}

// CountLines counts newline characters, plus one for an unterminated last
// line. Empty input has no lines.
func CountLines(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	n := bytes.Count(b, []byte{'\n'})
	if b[len(b)-1] != '\n' {
		n++
	}
	return n
}

func PagesForLines(lines int) int {
	return (lines + LinesPerPage - 1) / LinesPerPage
}
