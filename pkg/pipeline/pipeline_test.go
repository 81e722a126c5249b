package pipeline

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/pipeflow/pkg/cache"
	"github.com/matzehuels/pipeflow/pkg/config"
	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/fitting/fittingtest"
	"github.com/matzehuels/pipeflow/pkg/geom"
	"github.com/matzehuels/pipeflow/pkg/observability"
	"github.com/matzehuels/pipeflow/pkg/render/nodelink"
)

const k = 1e-5

func lineConfig() *config.Config {
	cfg := config.Default()
	cfg.Pressure.TrunkStaticPressure = 300000
	return cfg
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"svg", false},
		{"png", false},
		{"pdf", false},
		{"dot", false},
		{"json", true},
		{"SVG", true}, // case-sensitive
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateFormat(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}

func TestSolveConverges(t *testing.T) {
	tree := fittingtest.Line(0.05, 10, 0.004, k)
	r := NewRunner(nil, nil, nil)

	res, err := r.Solve(context.Background(), tree, Options{Config: lineConfig()})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Greater(t, res.Iterations, 1)
	assert.Less(t, res.Iterations, config.DefaultMaxIterations)
	assert.Empty(t, res.Errors)
	assert.NotEmpty(t, res.RunID)

	head := fittingtest.Leaf(tree, fittingtest.Head1)
	leaf, _ := head.Leaf()
	p, ok := head.TrunkPort().StaticPressure()
	require.True(t, ok)
	assert.InDelta(t, k*math.Sqrt(p), leaf.Flow, 1e-5)

	assert.Equal(t, 3, res.Stats.Components)
	assert.Equal(t, 1, res.Stats.Leaves)
	require.NotNil(t, res.Stats.TrunkPressure)
	assert.Equal(t, 300000.0, *res.Stats.TrunkPressure)
	require.NotNil(t, res.Stats.MinLeafPressure)
	assert.Equal(t, p, *res.Stats.MinLeafPressure)
}

func TestSolveIterationCap(t *testing.T) {
	tree := fittingtest.Line(0.05, 10, 0.004, k)
	r := NewRunner(nil, nil, nil)

	res, err := r.Solve(context.Background(), tree, Options{Config: lineConfig(), MaxIterations: 1})
	require.NoError(t, err)

	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
}

func TestSolveMaxIterationsDoesNotMutateConfig(t *testing.T) {
	cfg := lineConfig()
	r := NewRunner(nil, nil, nil)

	_, err := r.Solve(context.Background(), fittingtest.Line(0.05, 10, 0.004, k), Options{Config: cfg, MaxIterations: 3})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultMaxIterations, cfg.Convergence.MaxIterations)
}

func TestSolveMultipleTrunks(t *testing.T) {
	r := NewRunner(nil, nil, nil)

	res, err := r.Solve(context.Background(), fittingtest.WithStrayTerminal(), Options{})
	require.NoError(t, err)

	assert.Zero(t, res.Iterations)
	assert.False(t, res.Converged)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, errors.ErrCodeMultipleTrunks, res.Errors[0].Code)
}

func TestSolveRemoteArea(t *testing.T) {
	cfg := config.Default()
	cfg.Flow.Mode = config.FlowRemote
	cfg.Flow.Area = [][2]float64{{15, -1}, {25, -1}, {25, 10}, {15, 10}}
	tree := fittingtest.Sample()
	r := NewRunner(nil, nil, nil)

	res, err := r.Solve(context.Background(), tree, Options{Config: cfg})
	require.NoError(t, err)

	// Sample leaves have no K-factor, so their demands stay fixed.
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.InDelta(t, fittingtest.Head1Demand, res.Stats.TrunkFlow, 1e-12)
	assert.Zero(t, fittingtest.Port(tree, fittingtest.Wye, fitting.WyeBranch).FlowRate())
}

func TestSolveFailFast(t *testing.T) {
	tree := fitting.New()
	require.NoError(t, tree.Add(fitting.NewTrunk("supply", 0.05, geom.Vec3{})))
	require.NoError(t, tree.Add(fitting.NewCoupler("joint", 0.05, geom.Vec3{})))
	require.NoError(t, tree.Add(fitting.NewLeaf("head", 0.05, geom.Vec3{}, 0.001, 0)))
	require.NoError(t, tree.Connect("joint", "supply", 0))
	require.NoError(t, tree.Connect("head", "joint", 1))

	cfg := config.Default()
	cfg.Pressure.Couplers = "unsupported"
	r := NewRunner(nil, nil, nil)

	res, err := r.Solve(context.Background(), tree, Options{Config: cfg})
	require.NoError(t, err)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, errors.ErrCodeNotSupported, res.Errors[0].Code)

	cfg.Pressure.FailFast = true
	_, err = r.Solve(context.Background(), tree, Options{Config: cfg})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotSupported), "error = %v", err)
}

func TestSolveInvalidOptions(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	tree := fittingtest.Sample()

	_, err := r.Solve(context.Background(), tree, Options{MaxIterations: -1})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput), "error = %v", err)

	cfg := config.Default()
	cfg.Pressure.CFactor = 200
	_, err = r.Solve(context.Background(), tree, Options{Config: cfg})
	assert.True(t, errors.Is(err, errors.ErrCodeOutOfRange), "error = %v", err)

	_, err = r.Solve(context.Background(), nil, Options{})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput), "error = %v", err)
}

func TestSolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(nil, nil, nil)

	_, err := r.Solve(ctx, fittingtest.Line(0.05, 10, 0.004, k), Options{Config: lineConfig()})
	assert.Equal(t, context.Canceled, err)
}

func TestSolveCache(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)
	r := NewRunner(fc, nil, nil)
	defer r.Close()
	ctx := context.Background()
	opts := Options{Config: lineConfig(), NetworkHash: cache.Hash([]byte("line"))}

	first, err := r.Solve(ctx, fittingtest.Line(0.05, 10, 0.004, k), opts)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	tree := fittingtest.Line(0.05, 10, 0.004, k)
	second, err := r.Solve(ctx, tree, opts)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, first.Iterations, second.Iterations)

	// The cached snapshot is applied to the tree.
	leaf, _ := fittingtest.Leaf(tree, fittingtest.Head1).Leaf()
	assert.Equal(t, first.Snapshot.Leaves[0].Flow, leaf.Flow)
	p, ok := fittingtest.Port(tree, "pipe", 1).StaticPressure()
	assert.True(t, ok)
	assert.Greater(t, p, 0.0)

	opts.Refresh = true
	third, err := r.Solve(ctx, fittingtest.Line(0.05, 10, 0.004, k), opts)
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
	assert.NotEqual(t, first.RunID, third.RunID)

	// A different configuration misses.
	other := Options{Config: config.Default(), NetworkHash: opts.NetworkHash}
	fourth, err := r.Solve(ctx, fittingtest.Line(0.05, 10, 0.004, k), other)
	require.NoError(t, err)
	assert.False(t, fourth.CacheHit)
}

func TestSnapshotApply(t *testing.T) {
	solved := fittingtest.Line(0.05, 10, 0.004, k)
	r := NewRunner(nil, nil, nil)
	_, err := r.Solve(context.Background(), solved, Options{Config: lineConfig()})
	require.NoError(t, err)
	snap := TakeSnapshot(solved)

	fresh := fittingtest.Line(0.05, 10, 0.004, k)
	require.NoError(t, snap.Apply(fresh))
	assert.Equal(t, snap, TakeSnapshot(fresh))

	err = snap.Apply(fittingtest.Sample())
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "error = %v", err)
}

type recordingHooks struct {
	mu        sync.Mutex
	passes    []int
	completed int
	converged bool
}

func (h *recordingHooks) OnPassStart(_ context.Context, pass int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.passes = append(h.passes, pass)
}

func (h *recordingHooks) OnPassComplete(context.Context, int, int, time.Duration) {}

func (h *recordingHooks) OnSolveComplete(_ context.Context, _ string, _ int, converged bool, _ time.Duration, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed++
	h.converged = converged
}

func TestSolveHooks(t *testing.T) {
	h := &recordingHooks{}
	observability.SetSolverHooks(h)
	defer observability.Reset()

	r := NewRunner(nil, nil, nil)
	res, err := r.Solve(context.Background(), fittingtest.Line(0.05, 10, 0.004, k), Options{Config: lineConfig()})
	require.NoError(t, err)

	assert.Len(t, h.passes, res.Iterations)
	assert.Equal(t, 1, h.passes[0])
	assert.Equal(t, 1, h.completed)
	assert.True(t, h.converged)
}

func TestRenderDOT(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	tree := fittingtest.Sample()

	data, hit, err := r.RenderWithCacheInfo(context.Background(), tree, RenderOptions{
		Format:    FormatDOT,
		Highlight: map[string]bool{fittingtest.Elbow: true},
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, strings.HasPrefix(string(data), "digraph G {"))
	assert.Contains(t, string(data), "salmon")

	_, err = r.Render(context.Background(), tree, RenderOptions{Format: "gif"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput), "error = %v", err)
}

type memCache struct {
	data map[string][]byte
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	d, ok := m.data[key]
	return d, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	m.data[key] = data
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *memCache) Close() error { return nil }

func TestRenderUsesCache(t *testing.T) {
	mc := &memCache{data: map[string][]byte{}}
	r := NewRunner(mc, nil, nil)
	tree := fittingtest.Sample()

	dot := []byte(nodelink.ToDOT(tree, nodelink.Options{}))
	key := r.Keyer.RenderKey(cache.Hash(dot), cache.RenderKeyOpts{Format: FormatSVG, Scale: 2})
	mc.data[key] = []byte("<svg>cached</svg>")

	data, hit, err := r.RenderWithCacheInfo(context.Background(), tree, RenderOptions{Format: FormatSVG})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "<svg>cached</svg>", string(data))
}
