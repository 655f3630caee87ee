// Package tables loads the seven input tables from a configured source and
// publishes them as immutable snapshots.
package tables

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/branch-insights/internal/config"
	"github.com/sells-group/branch-insights/internal/model"
	"github.com/sells-group/branch-insights/internal/synth"
)

// Source loads a complete set of tables. Every source treats a missing
// table (file, sheet or database table) as a failed load, while a table
// that exists with no rows loads as empty.
type Source interface {
	Name() string
	Load(ctx context.Context) (*model.Tables, error)
}

// Open builds the source selected by cfg.Source. Sources holding connections
// implement io.Closer.
func Open(ctx context.Context, cfg config.DataConfig) (Source, error) {
	switch strings.ToLower(cfg.Source) {
	case "csv":
		return &CSVSource{Dir: cfg.Dir}, nil
	case "xlsx":
		return &XLSXSource{Path: cfg.XLSXPath}, nil
	case "sqlite":
		return NewSQLite(cfg.SQLiteDSN)
	case "postgres":
		return NewPostgres(ctx, cfg.PostgresURL, cfg.PostgresSchema)
	case "demo", "":
		return &DemoSource{Options: synth.DefaultOptions(cfg.DemoSeed)}, nil
	}
	return nil, eris.Errorf("tables: unknown source %q", cfg.Source)
}

// DemoSource serves seeded synthetic tables.
type DemoSource struct {
	Options synth.Options
}

// Name implements Source.
func (s *DemoSource) Name() string { return "demo" }

// Load implements Source.
func (s *DemoSource) Load(ctx context.Context) (*model.Tables, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "tables: load demo")
	}
	t := synth.Generate(s.Options)
	return &t, nil
}
