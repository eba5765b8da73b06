package normalize

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads the first sheet of a workbook the same way ReadCSV reads
// an export: header row first, one map per following row.
func ReadXLSX(path string) ([]map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return recordsToRows(records), nil
}
