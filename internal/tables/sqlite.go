package tables

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/branch-insights/internal/model"
)

// SQLiteSource reads the tables from a SQLite database.
type SQLiteSource struct {
	db  *sql.DB
	dsn string
}

// NewSQLite opens the database at dsn.
func NewSQLite(dsn string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: exec busy_timeout")
	}
	return &SQLiteSource{db: db, dsn: dsn}, nil
}

// Name implements Source.
func (s *SQLiteSource) Name() string { return "sqlite:" + s.dsn }

// Close closes the database.
func (s *SQLiteSource) Close() error { return s.db.Close() }

// sqliteTypes declares the column types of the numeric columns. Everything
// else is TEXT.
var sqliteTypes = map[string]string{
	"sales_value": "REAL", "orders": "INTEGER", "customers": "INTEGER",
	"qty": "REAL", "line_value": "REAL", "hours_worked": "REAL",
	"revenue": "REAL", "delivery": "REAL", "table": "REAL", "take_away": "REAL",
	"total": "REAL", "sales": "REAL", "avg_per_customer": "REAL",
}

func quote(ident string) string { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` }

// Migrate creates the seven tables when missing.
func (s *SQLiteSource) Migrate(ctx context.Context) error {
	for _, table := range model.TableNames() {
		defs := make([]string, 0, len(columns[table]))
		for _, c := range columns[table] {
			typ := sqliteTypes[c]
			if typ == "" {
				typ = "TEXT"
			}
			defs = append(defs, quote(c)+" "+typ)
		}
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", "))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "sqlite: create %s", table)
		}
	}
	return nil
}

// Save replaces the content of every table in one transaction.
func (s *SQLiteSource) Save(ctx context.Context, t *model.Tables) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for table, rows := range Rows(t) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quote(table)); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s", table)
		}
		cols := make([]string, len(rows[0]))
		marks := make([]string, len(rows[0]))
		for i, c := range rows[0] {
			cols[i], marks[i] = quote(c), "?"
		}
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quote(table), strings.Join(cols, ", "), strings.Join(marks, ", ")))
		if err != nil {
			return eris.Wrapf(err, "sqlite: prepare insert %s", table)
		}
		for _, row := range rows[1:] {
			args := make([]any, len(row))
			for i, v := range row {
				args[i] = v
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				stmt.Close() //nolint:errcheck
				return eris.Wrapf(err, "sqlite: insert %s", table)
			}
		}
		stmt.Close() //nolint:errcheck
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Load implements Source. All tables are read inside one read transaction so
// the load sees a consistent database.
func (s *SQLiteSource) Load(ctx context.Context) (*model.Tables, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	return assemble(func(table string) (csvutil.Reader, func() error, error) {
		rows, err := readSQL(ctx, tx, table)
		if err != nil {
			return nil, nil, err
		}
		return &sliceReader{rows: rows}, nil, nil
	})
}

func readSQL(ctx context.Context, tx *sql.Tx, table string) ([][]string, error) {
	cols := columns[table]
	sel := make([]string, len(cols))
	for i, c := range cols {
		sel[i] = quote(c)
	}
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(sel, ", "), quote(table)))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", table)
	}
	defer rows.Close() //nolint:errcheck

	out := [][]string{append([]string(nil), cols...)}
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", table)
		}
		rec := make([]string, len(cols))
		for i, v := range vals {
			rec[i] = v.String
		}
		out = append(out, rec)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", table)
}
