package source

import (
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// readWorkbook reads the active sheet of an .xlsx file. Row one is the header.
func readWorkbook(path string) (*table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %q of %s", sheet, path)
	}
	if len(rows) == 0 {
		return &table{}, nil
	}
	return newTable(rows[0], rows[1:]), nil
}
