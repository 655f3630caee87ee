package tables

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/branch-insights/internal/model"
)

// Holder owns the published snapshot. Reloads load and validate the whole
// table set before swapping the pointer, so readers see either the old or
// the new snapshot and never a mix.
type Holder struct {
	source  Source
	current atomic.Pointer[model.Snapshot]
	mu      sync.Mutex // serializes reloads
	now     func() time.Time
	retry   RetryPolicy
}

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithRetry retries failed loads according to p.
func WithRetry(p RetryPolicy) HolderOption {
	return func(h *Holder) { h.retry = p }
}

// NewHolder creates a holder with nothing published. Loads are attempted
// once unless WithRetry is given.
func NewHolder(source Source, opts ...HolderOption) *Holder {
	h := &Holder{source: source, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Current returns the published snapshot or nil.
func (h *Holder) Current() *model.Snapshot {
	return h.current.Load()
}

// SourceName names the source snapshots are loaded from.
func (h *Holder) SourceName() string { return h.source.Name() }

// Reload loads a new snapshot and publishes it. On failure the previous
// snapshot stays published.
func (h *Holder) Reload(ctx context.Context) (*model.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := h.now()
	t, err := loadWithRetry(ctx, h.source, h.retry)
	if err != nil {
		return nil, eris.Wrapf(err, "tables: load %s", h.source.Name())
	}
	snap, err := model.NewSnapshot(*t, uuid.NewString(), start.UTC())
	if err != nil {
		return nil, eris.Wrapf(err, "tables: validate %s", h.source.Name())
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "tables: reload cancelled")
	}

	prev := h.current.Swap(snap)
	fields := []zap.Field{
		zap.String("source", h.source.Name()),
		zap.String("version", snap.Version),
		zap.Any("rows", snap.RowCounts()),
		zap.Duration("elapsed", h.now().Sub(start)),
	}
	if prev != nil {
		fields = append(fields, zap.String("previous", prev.Version))
	}
	zap.L().Info("tables: snapshot published", fields...)
	return snap, nil
}
