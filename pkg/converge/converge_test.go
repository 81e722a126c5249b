package converge_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/pipeflow/pkg/converge"
	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/fitting/fittingtest"
)

const k = 1e-5 // m³/s per √Pa

// line returns a single-leaf tree whose leaf sees pressure p.
func line(flow, p float64) *fitting.Tree {
	tree := fittingtest.Line(0.05, 10, flow, k)
	fittingtest.Port(tree, fittingtest.Head1, 0).SetStaticPressure(p)
	return tree
}

func leafFlow(t *testing.T, tree *fitting.Tree) float64 {
	t.Helper()
	leaf, ok := fittingtest.Leaf(tree, fittingtest.Head1).Leaf()
	require.True(t, ok)
	return leaf.Flow
}

func newStrategy(t *testing.T, opts converge.Options) *converge.KFactor {
	t.Helper()
	s, err := converge.New(opts)
	require.NoError(t, err)
	return s
}

func TestConvergedStartNeedsNoPass(t *testing.T) {
	p := 50_000.0
	tree := line(k*math.Sqrt(p), p)
	s := newStrategy(t, converge.Options{})

	again, err := s.UpdateLeafFlow(tree)
	require.NoError(t, err)
	assert.False(t, again)

	flows := s.Flows()
	require.Len(t, flows, 1)
	assert.Equal(t, fittingtest.Head1, flows[0].ID)
	assert.InDelta(t, flows[0].Expected, flows[0].Flow, 1e-15)
	assert.Equal(t, converge.DefaultDamping, s.Damping())
}

func TestStepTowardExpected(t *testing.T) {
	p := 1e5
	tree := line(0.001, p)
	s := newStrategy(t, converge.Options{InitialDamping: 0.5})

	again, err := s.UpdateLeafFlow(tree)
	require.NoError(t, err)
	assert.True(t, again)

	expected := k * math.Sqrt(p)
	assert.InDelta(t, 0.001+(expected-0.001)*0.5, leafFlow(t, tree), 1e-15)
	assert.InDelta(t, expected, s.Flows()[0].Expected, 1e-15)
}

func TestUnreachableLeafBacksOff(t *testing.T) {
	tree := line(0.002, -10)
	s := newStrategy(t, converge.Options{InitialDamping: 0.25})

	_, err := s.UpdateLeafFlow(tree)
	require.NoError(t, err)
	assert.InDelta(t, 0.0015, leafFlow(t, tree), 1e-15)
	assert.Zero(t, s.Flows()[0].Expected)
}

func TestUnreachableLeafKeepsFlowWithDefaults(t *testing.T) {
	tree := line(0.002, -10)
	s := newStrategy(t, converge.Options{})

	_, err := s.UpdateLeafFlow(tree)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, leafFlow(t, tree), 1e-15)

	// Pressure returns: the leaf moves from its reduced flow, not from zero.
	fittingtest.Port(tree, fittingtest.Head1, 0).SetStaticPressure(1e5)
	_, err = s.UpdateLeafFlow(tree)
	require.NoError(t, err)
	expected := k * math.Sqrt(1e5)
	assert.InDelta(t, 0.001+(expected-0.001)*converge.DefaultDamping, leafFlow(t, tree), 1e-12)
}

func TestUnreachableShrinkIsBounded(t *testing.T) {
	tree := line(0.002, 0)
	s := newStrategy(t, converge.Options{InitialDamping: 1})

	for i := 0; i < 3; i++ {
		_, err := s.UpdateLeafFlow(tree)
		require.NoError(t, err)
		assert.Greater(t, leafFlow(t, tree), 0.0, "pass %d", i)
	}
	assert.InDelta(t, 0.00025, leafFlow(t, tree), 1e-15)
}

func TestLeavesWithoutPressureOrKFactorAreKept(t *testing.T) {
	tree := fittingtest.Line(0.05, 10, 0.002, k)
	s := newStrategy(t, converge.Options{})
	again, err := s.UpdateLeafFlow(tree)
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, 0.002, leafFlow(t, tree))

	tree = line(0.002, 1e5)
	s = newStrategy(t, converge.Options{KFactor: func(*fitting.Terminal) float64 { return 0 }})
	again, err = s.UpdateLeafFlow(tree)
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, 0.002, leafFlow(t, tree))
}

func TestKFactorCallback(t *testing.T) {
	p := 1e4
	tree := line(0.001, p)
	s := newStrategy(t, converge.Options{KFactor: func(term *fitting.Terminal) float64 {
		assert.Equal(t, fittingtest.Head1, term.ID)
		return 2 * k
	}})

	_, err := s.UpdateLeafFlow(tree)
	require.NoError(t, err)
	assert.InDelta(t, 2*k*math.Sqrt(p), leafFlow(t, tree), 1e-15)
}

// TestDampingAdapts drives a single leaf through pressures that first
// alternate the flow direction and then keep pulling it down.
func TestDampingAdapts(t *testing.T) {
	tree := line(0.001, 0)
	port := fittingtest.Port(tree, fittingtest.Head1, 0)
	s := newStrategy(t, converge.Options{})

	steps := []struct {
		pressure float64
		damping  float64 // after the call
	}{
		{0, 0.5},    // down, first move
		{1e5, 0.25}, // up: reversal
		{0, 0.125},  // down: reversal
		{0, 0.125},  // down, second in a row
		{0, 0.25},   // down, third in a row: restored
		{0, 0.25},   // restored only once per run
		{0, 0.25},
	}
	for i, step := range steps {
		port.SetStaticPressure(step.pressure)
		_, err := s.UpdateLeafFlow(tree)
		require.NoError(t, err)
		assert.Equal(t, step.damping, s.Damping(), "step %d", i)
	}

	s.Reset()
	assert.Equal(t, converge.DefaultDamping, s.Damping())
	assert.Empty(t, s.Flows())
}

func TestAlternationStrictlyDecreasesDamping(t *testing.T) {
	tree := line(0.001, 1e5)
	port := fittingtest.Port(tree, fittingtest.Head1, 0)
	s := newStrategy(t, converge.Options{InitialDamping: 0.5})

	_, err := s.UpdateLeafFlow(tree)
	require.NoError(t, err)
	before := s.Damping()

	port.SetStaticPressure(100)
	_, err = s.UpdateLeafFlow(tree)
	require.NoError(t, err)
	assert.Less(t, s.Damping(), before)
}

func TestConvergesOnFixedPressure(t *testing.T) {
	p := 2e5
	tree := line(0.0005, p)
	s := newStrategy(t, converge.Options{InitialDamping: 0.5})

	again := true
	for i := 0; again && i < 100; i++ {
		var err error
		again, err = s.UpdateLeafFlow(tree)
		require.NoError(t, err)
	}
	assert.False(t, again)
	assert.InDelta(t, k*math.Sqrt(p), leafFlow(t, tree), 10*converge.DefaultTolerance)
}

func TestNewValidates(t *testing.T) {
	tests := []converge.Options{
		{Tolerance: -1},
		{InitialDamping: -0.5},
		{InitialDamping: 1.5},
	}
	for _, opts := range tests {
		_, err := converge.New(opts)
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput), "%+v", opts)
	}
}

func TestUpdateLeafFlowErrors(t *testing.T) {
	s := newStrategy(t, converge.Options{})
	_, err := s.UpdateLeafFlow(nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = s.UpdateLeafFlow(fittingtest.WithStrayTerminal())
	assert.True(t, errors.Is(err, errors.ErrCodeMultipleTrunks))
}
