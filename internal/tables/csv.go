package tables

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/branch-insights/internal/model"
)

// CSVSource reads one <table>.csv file per table from Dir.
type CSVSource struct {
	Dir string
}

// Name implements Source.
func (s *CSVSource) Name() string { return "csv:" + s.Dir }

// Load implements Source. A missing file fails the load.
func (s *CSVSource) Load(ctx context.Context) (*model.Tables, error) {
	return assemble(func(table string) (csvutil.Reader, func() error, error) {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "tables: load csv")
		}
		path := filepath.Join(s.Dir, table+".csv")
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "tables: open %s", path)
		}
		r := csv.NewReader(f)
		r.TrimLeadingSpace = true
		r.FieldsPerRecord = -1
		return r, f.Close, nil
	})
}

// WriteCSV writes every table to <dir>/<table>.csv.
func WriteCSV(dir string, t *model.Tables) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "tables: create %s", dir)
	}
	for table, rows := range Rows(t) {
		path := filepath.Join(dir, table+".csv")
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "tables: create %s", path)
		}
		w := csv.NewWriter(f)
		if err := w.WriteAll(rows); err != nil {
			f.Close() //nolint:errcheck
			return eris.Wrapf(err, "tables: write %s", path)
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "tables: close %s", path)
		}
	}
	return nil
}
