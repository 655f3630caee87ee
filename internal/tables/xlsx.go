package tables

import (
	"context"
	"io/fs"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/branch-insights/internal/model"
)

// XLSXSource reads a workbook with one sheet per table, named after the
// table. A missing sheet fails the load; a sheet with no rows is an empty
// table.
type XLSXSource struct {
	Path string
}

// Name implements Source.
func (s *XLSXSource) Name() string { return "xlsx:" + s.Path }

// Load implements Source.
func (s *XLSXSource) Load(ctx context.Context) (*model.Tables, error) {
	f, err := xlsx.OpenFile(s.Path)
	if err != nil {
		return nil, eris.Wrap(err, "tables: open workbook")
	}
	return assemble(func(table string) (csvutil.Reader, func() error, error) {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "tables: load xlsx")
		}
		sheet, ok := f.Sheet[table]
		if !ok {
			return nil, nil, eris.Wrapf(fs.ErrNotExist, "tables: sheet %s", table)
		}
		return &sliceReader{rows: sheetRows(sheet)}, nil, nil
	})
}

// sheetRows returns the cell text of every non-empty row.
func sheetRows(sheet *xlsx.Sheet) [][]string {
	var rows [][]string
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		empty := true
		for j, cell := range row.Cells {
			cells[j] = cell.String()
			if cells[j] != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, cells)
		}
	}
	return rows
}

// WriteXLSX saves every table as a sheet of a new workbook.
func WriteXLSX(path string, t *model.Tables) error {
	f := xlsx.NewFile()
	rows := Rows(t)
	for _, table := range model.TableNames() {
		sheet, err := f.AddSheet(table)
		if err != nil {
			return eris.Wrapf(err, "tables: add sheet %s", table)
		}
		for _, data := range rows[table] {
			row := sheet.AddRow()
			for _, v := range data {
				row.AddCell().SetString(v)
			}
		}
	}
	return eris.Wrap(f.Save(path), "tables: save workbook")
}
