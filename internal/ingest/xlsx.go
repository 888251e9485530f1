package ingest

import (
	"strings"

	"github.com/xuri/excelize/v2"
)

func sheetCount(path string) (int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return len(f.GetSheetList()), nil
}

func sheetText(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return b.String(), err
		}
		b.WriteString("Лист " + name + ":\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
