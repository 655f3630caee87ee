package engine

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/branch-insights/internal/config"
	"github.com/sells-group/branch-insights/internal/model"
)

// ErrNoSnapshot is returned when no snapshot has been published yet.
var ErrNoSnapshot = eris.New("engine: no snapshot loaded")

// SnapshotProvider hands out the current published snapshot.
type SnapshotProvider interface {
	Current() *model.Snapshot
}

// BranchResult is one branch's result of a fan-out run.
type BranchResult struct {
	Branch model.Branch `json:"branch"`
	Result Result       `json:"result"`
}

// Registry holds exactly one engine per kind and runs them against the
// provider's current snapshot.
type Registry struct {
	engines     map[Kind]Engine
	snapshots   SnapshotProvider
	concurrency int
	runs        atomic.Int64
}

// NewRegistry builds every engine from configuration.
func NewRegistry(cfg *config.Config, snapshots SnapshotProvider) (*Registry, error) {
	engines, err := build(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "engine: build engines")
	}
	concurrency := cfg.Server.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Registry{engines: engines, snapshots: snapshots, concurrency: concurrency}, nil
}

// Engine returns the engine registered for k.
func (r *Registry) Engine(k Kind) (Engine, bool) {
	e, ok := r.engines[k]
	return e, ok
}

// Runs returns how many engine computations have completed.
func (r *Registry) Runs() int64 { return r.runs.Load() }

func (r *Registry) snapshot() (*model.Snapshot, error) {
	snap := r.snapshots.Current()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Run computes one request against the current snapshot.
func (r *Registry) Run(ctx context.Context, k Kind, req Request) (Result, error) {
	snap, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	return r.run(ctx, snap, k, req)
}

func (r *Registry) run(ctx context.Context, snap *model.Snapshot, k Kind, req Request) (Result, error) {
	e, ok := r.engines[k]
	if !ok {
		return nil, model.InvalidParam("kind", k, "no engine registered")
	}
	res, err := e.Compute(ctx, snap, req)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: run %s", k)
	}
	r.runs.Add(1)
	zap.L().Debug("engine: run complete",
		zap.String("kind", string(k)),
		zap.String("branch", string(req.Branch)),
		zap.String("snapshot", snap.Version),
		zap.String("status", string(res.Summary().Status)),
	)
	return res, nil
}

// RunAllBranches computes req once per canonical branch, in parallel, against
// one pinned snapshot. Results come back in canonical branch order.
func (r *Registry) RunAllBranches(ctx context.Context, k Kind, req Request) ([]BranchResult, error) {
	snap, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	branches := model.Branches()
	out := make([]BranchResult, len(branches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, b := range branches {
		g.Go(func() error {
			br := req
			br.Branch = b
			res, err := r.run(gctx, snap, k, br)
			if err != nil {
				return err
			}
			out[i] = BranchResult{Branch: b, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "engine: run %s for all branches", k)
	}
	return out, nil
}
