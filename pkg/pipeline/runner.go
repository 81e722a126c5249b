package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/pipeflow/pkg/cache"
	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/observability"
	"github.com/matzehuels/pipeflow/pkg/render/nodelink"
)

// Runner encapsulates solving and rendering with caching.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store results. Multiple goroutines can use the same Runner with
// different trees.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Solve runs calculation passes over t until the leaf flows converge or the
// iteration cap is reached. t is left in its solved state.
//
// A tree without exactly one trunk is not solved: the result carries a
// single FittingError and zero iterations. Hard failures (fail-fast
// pressure errors, context cancellation) are returned as errors.
func (r *Runner) Solve(ctx context.Context, t *fitting.Tree, opts Options) (*Result, error) {
	if t == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "tree must not be nil")
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	logger := r.logger(opts)

	var cacheKey string
	if opts.NetworkHash != "" {
		cacheKey = r.Keyer.SolveKey(opts.NetworkHash, opts.SolveKeyOpts())
		if !opts.Refresh {
			if res, ok := r.cachedResult(ctx, t, cacheKey); ok {
				logger.Info("solve cache hit", "run", res.RunID, "iterations", res.Iterations)
				return res, nil
			}
		}
	}

	res, err := r.solve(ctx, t, opts, logger)
	if err != nil {
		return nil, err
	}

	if cacheKey != "" {
		if data, err := json.Marshal(res); err == nil {
			if err := r.Cache.Set(ctx, cacheKey, data, cache.TTLSolve); err == nil {
				observability.Cache().OnCacheSet(ctx, cacheKey, len(data))
			}
		}
	}
	return res, nil
}

func (r *Runner) cachedResult(ctx context.Context, t *fitting.Tree, key string) (*Result, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, key)
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		observability.Cache().OnCacheMiss(ctx, key)
		return nil, false
	}
	if err := res.Snapshot.Apply(t); err != nil {
		// Stale entry for a different tree; fall through to recompute.
		observability.Cache().OnCacheMiss(ctx, key)
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, key)
	res.CacheHit = true
	return &res, true
}

func (r *Runner) solve(ctx context.Context, t *fitting.Tree, opts Options, logger *log.Logger) (_ *Result, err error) {
	hooks := observability.Solver()
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	defer func() {
		hooks.OnSolveComplete(ctx, res.RunID, res.Iterations, res.Converged, time.Since(start), err)
	}()

	trunk, terr := t.Trunk()
	if terr != nil {
		res.Errors = []fitting.FittingError{fitting.ErrorFrom(nil, terr)}
		res.Stats.Components = len(t.Flatten())
		res.Stats.Duration = time.Since(start)
		logger.Warn("network has no single trunk", "error", terr)
		return res, nil
	}

	calcs, err := NewCalculators(opts.Config)
	if err != nil {
		return nil, err
	}

	maxIter := opts.Config.Convergence.MaxIterations
	for pass := 1; pass <= maxIter; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hooks.OnPassStart(ctx, pass)
		passStart := time.Now()

		errs, err := calcs.Flow.AssignFlowCalcs(t)
		if err != nil {
			return nil, fmt.Errorf("pass %d: flow: %w", pass, err)
		}
		perrs, err := calcs.Pressure.UpdatePressureCalcs(t)
		if err != nil {
			return nil, fmt.Errorf("pass %d: pressure: %w", pass, err)
		}
		errs = append(errs, perrs...)

		again, err := calcs.Flow.UpdateLeafFlow(t)
		if err != nil {
			return nil, fmt.Errorf("pass %d: leaf flow: %w", pass, err)
		}

		res.Iterations = pass
		res.Errors = errs
		hooks.OnPassComplete(ctx, pass, len(errs), time.Since(passStart))
		logger.Debug("pass complete",
			"pass", pass,
			"errors", len(errs),
			"damping", calcs.Strategy.Damping(),
			"again", again)

		if !again {
			res.Converged = true
			break
		}
	}

	res.Snapshot = TakeSnapshot(t)
	summarize(t, trunk, &res.Stats)
	res.Stats.FinalDamping = calcs.Strategy.Damping()
	res.Stats.Duration = time.Since(start)

	if res.Converged {
		logger.Info("solved",
			"iterations", res.Iterations,
			"trunk_flow", res.Stats.TrunkFlow,
			"errors", len(res.Errors),
			"duration", res.Stats.Duration)
	} else {
		logger.Warn("iteration cap reached",
			"iterations", res.Iterations,
			"damping", res.Stats.FinalDamping)
	}
	return res, nil
}

// =============================================================================
// Rendering
// =============================================================================

// RenderOptions configures a diagram render.
type RenderOptions struct {
	// Format is one of FormatSVG, FormatPNG, FormatPDF or FormatDOT.
	Format string

	// Detailed labels the diagram with flows and pressures.
	Detailed bool

	// Highlight lists component IDs to draw with a warning fill.
	Highlight map[string]bool

	// Scale is the PNG resolution factor. Zero means 2.
	Scale float64
}

// Render draws t in the requested format. Rendered artifacts are cached by
// the content hash of their DOT source, so an unchanged diagram is never
// laid out twice.
func (r *Runner) Render(ctx context.Context, t *fitting.Tree, opts RenderOptions) ([]byte, error) {
	data, _, err := r.RenderWithCacheInfo(ctx, t, opts)
	return data, err
}

// RenderWithCacheInfo is like [Runner.Render] and also reports whether the
// artifact came from the cache.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, t *fitting.Tree, opts RenderOptions) ([]byte, bool, error) {
	if t == nil {
		return nil, false, errors.New(errors.ErrCodeInvalidInput, "tree must not be nil")
	}
	if err := ValidateFormat(opts.Format); err != nil {
		return nil, false, err
	}
	if opts.Scale == 0 {
		opts.Scale = 2
	}

	dot := nodelink.ToDOT(t, nodelink.Options{Detailed: opts.Detailed, Highlight: opts.Highlight})
	if opts.Format == FormatDOT {
		return []byte(dot), false, nil
	}

	key := r.Keyer.RenderKey(cache.Hash([]byte(dot)), cache.RenderKeyOpts{Format: opts.Format, Solved: opts.Detailed, Scale: opts.Scale})
	if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
		observability.Cache().OnCacheHit(ctx, key)
		return data, true, nil
	}
	observability.Cache().OnCacheMiss(ctx, key)

	var (
		data []byte
		err  error
	)
	switch opts.Format {
	case FormatSVG:
		data, err = nodelink.RenderSVG(ctx, dot)
	case FormatPDF:
		data, err = nodelink.RenderPDF(ctx, dot)
	case FormatPNG:
		data, err = nodelink.RenderPNG(ctx, dot, opts.Scale)
	}
	if err != nil {
		return nil, false, fmt.Errorf("render %s: %w", opts.Format, err)
	}

	if err := r.Cache.Set(ctx, key, data, cache.TTLRender); err == nil {
		observability.Cache().OnCacheSet(ctx, key, len(data))
	}
	r.logger(Options{}).Debug("rendered diagram", "format", opts.Format, "bytes", len(data))
	return data, false, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// logger returns the options logger, falling back to the runner's.
func (r *Runner) logger(opts Options) *log.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return r.Logger
}
