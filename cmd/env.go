package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/branch-insights/internal/engine"
	"github.com/sells-group/branch-insights/internal/tables"
)

// appEnv is the loaded snapshot holder and engine registry shared by the
// commands.
type appEnv struct {
	Holder   *tables.Holder
	Registry *engine.Registry
	source   tables.Source
}

// initEnv opens the configured source, publishes the first snapshot and
// builds the engines.
func initEnv(ctx context.Context) (*appEnv, error) {
	src, err := tables.Open(ctx, cfg.Data)
	if err != nil {
		return nil, eris.Wrap(err, "open table source")
	}
	holder := tables.NewHolder(src, tables.WithRetry(tables.RetryFromConfig(cfg.Data.LoadAttempts, cfg.Data.LoadBackoff)))
	if _, err := holder.Reload(ctx); err != nil {
		closeSource(src)
		return nil, eris.Wrap(err, "load tables")
	}
	reg, err := engine.NewRegistry(cfg, holder)
	if err != nil {
		closeSource(src)
		return nil, err
	}
	return &appEnv{Holder: holder, Registry: reg, source: src}, nil
}

// Close releases the table source.
func (e *appEnv) Close() {
	closeSource(e.source)
}

func closeSource(src tables.Source) {
	if c, ok := src.(io.Closer); ok {
		if err := c.Close(); err != nil {
			zap.L().Warn("close table source", zap.Error(err))
		}
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
