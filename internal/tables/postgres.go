package tables

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/branch-insights/internal/model"
)

// Querier is the subset of a pgx pool the Postgres source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads the tables from a Postgres schema. Every column is
// selected as text and decoded like a CSV cell.
type PostgresSource struct {
	q       Querier
	schema  string
	closeFn func()
}

// NewPostgres connects a pool to url.
func NewPostgres(ctx context.Context, url, schema string) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresSource{q: pool, schema: schema, closeFn: pool.Close}, nil
}

// NewPostgresWithQuerier builds a source over an existing querier.
func NewPostgresWithQuerier(q Querier, schema string) *PostgresSource {
	return &PostgresSource{q: q, schema: schema}
}

// Name implements Source.
func (s *PostgresSource) Name() string { return "postgres:" + s.schema }

// Close releases the pool.
func (s *PostgresSource) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Query returns the SELECT statement used for table.
func (s *PostgresSource) Query(table string) string {
	cols := columns[table]
	sel := make([]string, len(cols))
	for i, c := range cols {
		sel[i] = fmt.Sprintf("COALESCE(%s::text, '')", pgx.Identifier{c}.Sanitize())
	}
	name := pgx.Identifier{table}
	if s.schema != "" {
		name = pgx.Identifier{s.schema, table}
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(sel, ", "), name.Sanitize())
}

// Load implements Source.
func (s *PostgresSource) Load(ctx context.Context) (*model.Tables, error) {
	return assemble(func(table string) (csvutil.Reader, func() error, error) {
		rows, err := s.read(ctx, table)
		if err != nil {
			return nil, nil, err
		}
		return &sliceReader{rows: rows}, nil, nil
	})
}

func (s *PostgresSource) read(ctx context.Context, table string) ([][]string, error) {
	cols := columns[table]
	rows, err := s.q.Query(ctx, s.Query(table))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query %s", table)
	}
	defer rows.Close()

	out := [][]string{append([]string(nil), cols...)}
	for rows.Next() {
		vals := make([]string, len(cols))
		dest := make([]any, len(cols))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", table)
		}
		out = append(out, vals)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: iterate %s", table)
}
