package pressure_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/fitting/fittingtest"
	"github.com/matzehuels/pipeflow/pkg/flowcalc"
	"github.com/matzehuels/pipeflow/pkg/geom"
	"github.com/matzehuels/pipeflow/pkg/hydraulics"
	"github.com/matzehuels/pipeflow/pkg/pressure"
)

const (
	c130  = hydraulics.DefaultCFactor
	delta = 1e-6
)

func hw(q, d float64) float64 { return hydraulics.HazenWilliamsPD(c130, q, d) }

func newCalc(t *testing.T, opts pressure.Options) *pressure.Empirical {
	t.Helper()
	calc, err := pressure.NewEmpirical(opts)
	require.NoError(t, err)
	return calc
}

func assignFlows(t *testing.T, tree *fitting.Tree) {
	t.Helper()
	errs, err := (&flowcalc.FullFlow{}).AssignFlowCalcs(tree)
	require.NoError(t, err)
	require.Empty(t, errs)
}

func pressureAt(t *testing.T, tree *fitting.Tree, id string, port int) float64 {
	t.Helper()
	p, ok := fittingtest.Port(tree, id, port).StaticPressure()
	require.True(t, ok, "%s port %d has no pressure", id, port)
	return p
}

func TestLineLosses(t *testing.T) {
	tree := fittingtest.Line(0.05, 10, 0.002, 0)
	assignFlows(t, tree)

	calc := newCalc(t, pressure.Options{TrunkStaticPressure: 300_000})
	errs, err := calc.UpdatePressureCalcs(tree)
	require.NoError(t, err)
	require.Empty(t, errs)

	pipe := hw(0.002, 0.05) * 10
	outlet := hw(0.002, 0.05) * hydraulics.TerminalEquivalentLength
	assert.InDelta(t, 300_000, pressureAt(t, tree, fittingtest.Supply, 0), delta)
	assert.InDelta(t, 300_000, pressureAt(t, tree, "pipe", 0), delta)
	assert.InDelta(t, 300_000-pipe, pressureAt(t, tree, "pipe", 1), delta)
	assert.InDelta(t, 300_000-pipe-outlet, pressureAt(t, tree, fittingtest.Head1, 0), delta)
}

func TestFixedPressureOverridesConfiguredTrunkPressure(t *testing.T) {
	tree := fittingtest.Line(0.05, 10, 0.002, 0)
	fixed := 120_000.0
	node, _ := fittingtest.Leaf(tree, fittingtest.Supply).TrunkNode()
	node.FixedPressure = &fixed
	assignFlows(t, tree)

	_, err := newCalc(t, pressure.Options{TrunkStaticPressure: 300_000}).UpdatePressureCalcs(tree)
	require.NoError(t, err)
	assert.InDelta(t, fixed, pressureAt(t, tree, fittingtest.Supply, 0), delta)
}

func TestElevation(t *testing.T) {
	tree := fitting.New()
	require.NoError(t, tree.Add(fitting.NewTrunk("supply", 0.05, geom.Vec3{})))
	require.NoError(t, tree.Add(fitting.NewSegment("riser", 0.05, geom.Vec3{}, geom.Vec3{Z: 10})))
	require.NoError(t, tree.Add(fitting.NewLeaf("head", 0.05, geom.Vec3{Z: 10}, 0, 0)))
	require.NoError(t, tree.Connect("riser", "supply", 0))
	require.NoError(t, tree.Connect("head", "riser", 1))
	assignFlows(t, tree)

	flat := newCalc(t, pressure.Options{TrunkStaticPressure: 200_000})
	_, err := flat.UpdatePressureCalcs(tree)
	require.NoError(t, err)
	assert.InDelta(t, 200_000, pressureAt(t, tree, "head", 0), delta)

	lifted := newCalc(t, pressure.Options{TrunkStaticPressure: 200_000, IncludeElevation: true})
	_, err = lifted.UpdatePressureCalcs(tree)
	require.NoError(t, err)
	assert.InDelta(t, 200_000-10*hydraulics.WaterUnitWeight, pressureAt(t, tree, "head", 0), delta)
}

func TestWyeDistinguishesMainAndBranch(t *testing.T) {
	tree := fittingtest.Sample()
	assignFlows(t, tree)
	calc := newCalc(t, pressure.Options{})

	trunkStub := hw(0.003, 0.1) * 0.1
	wantMain := trunkStub + hw(0.002, 0.1)*wyeLength(t, 0.1) + hw(0.002, 0.1)*0.2
	wantBranch := trunkStub + hw(0.001, 0.05)*wyeLength(t, 0.05) + hw(0.001, 0.05)*0.15

	main, err := calc.StaticPressureLoss(tree, fittingtest.Wye, fittingtest.RunA)
	require.NoError(t, err)
	branch, err := calc.StaticPressureLoss(tree, fittingtest.Wye, fittingtest.BranchB)
	require.NoError(t, err)

	assert.InDelta(t, wantMain, main, delta)
	assert.InDelta(t, wantBranch, branch, delta)
	assert.NotEqual(t, main, branch)

	rec, err := calc.Record(tree, mustComponent(t, tree, fittingtest.Wye))
	require.NoError(t, err)
	wye := rec.(pressure.WyeRecord)
	assert.InDelta(t, 0.003, wye.Flow, 1e-12)
	assert.InDelta(t, hw(0.002, 0.1)*wyeLength(t, 0.1), wye.ZLoss, delta)
	assert.Greater(t, wye.ZLoss, 0.0)
	assert.InDelta(t, wye.MainLoss(), main, delta)
	assert.InDelta(t, wye.BranchLoss(), branch, delta)
}

// TestWyeBranchFollowsGeometry connects a leaf to the main port index of a
// wye but places it at the side outlet. The side outlet's loss is reported.
func TestWyeBranchFollowsGeometry(t *testing.T) {
	tree := fitting.New()
	require.NoError(t, tree.Add(fitting.NewTrunk("supply", 0.1, geom.Vec3{X: 0.9})))
	require.NoError(t, tree.Add(fitting.NewWye("wye", geom.Vec3{X: 1},
		fitting.PortSpec{Diameter: 0.1, Position: geom.Vec3{X: 0.9}},
		fitting.PortSpec{Diameter: 0.1, Position: geom.Vec3{X: 1.1}},
		fitting.PortSpec{Diameter: 0.05, Position: geom.Vec3{X: 1, Y: 0.1}},
	)))
	require.NoError(t, tree.Add(fitting.NewLeaf("head", 0.025, geom.Vec3{X: 1, Y: 0.1}, 0.002, 0)))
	require.NoError(t, tree.Connect("wye", "supply", 0))
	require.NoError(t, tree.Connect("head", "wye", fitting.WyeMain))
	assignFlows(t, tree)
	calc := newCalc(t, pressure.Options{})

	got, err := calc.StaticPressureLoss(tree, "wye", "head")
	require.NoError(t, err)

	rec, err := calc.Record(tree, mustComponent(t, tree, "wye"))
	require.NoError(t, err)
	wye := rec.(pressure.WyeRecord)
	assert.InDelta(t, wye.BranchLoss(), got, delta)
	assert.NotEqual(t, wye.MainLoss(), got)
}

// crossTree feeds three leaves from a cross at (1, 0, 0): one straight
// ahead, one to the left (+Y) and one to the right (-Y).
func crossTree(t *testing.T) *fitting.Tree {
	t.Helper()
	tree := fitting.New()
	require.NoError(t, tree.Add(fitting.NewTrunk("supply", 0.1, geom.Vec3{X: 0.9})))
	require.NoError(t, tree.Add(fitting.NewCross("cross", geom.Vec3{X: 1},
		fitting.PortSpec{Diameter: 0.1, Position: geom.Vec3{X: 0.9}},
		fitting.PortSpec{Diameter: 0.1, Position: geom.Vec3{X: 1.2}},
		fitting.PortSpec{Diameter: 0.05, Position: geom.Vec3{X: 1, Y: 0.2}},
		fitting.PortSpec{Diameter: 0.04, Position: geom.Vec3{X: 1, Y: -0.3}},
	)))
	require.NoError(t, tree.Add(fitting.NewLeaf("ahead", 0.025, geom.Vec3{X: 1.2}, 0.003, 0)))
	require.NoError(t, tree.Add(fitting.NewLeaf("left", 0.025, geom.Vec3{X: 1, Y: 0.2}, 0.002, 0)))
	require.NoError(t, tree.Add(fitting.NewLeaf("right", 0.025, geom.Vec3{X: 1, Y: -0.3}, 0.001, 0)))
	require.NoError(t, tree.Connect("cross", "supply", 0))
	require.NoError(t, tree.Connect("ahead", "cross", fitting.CrossMain))
	require.NoError(t, tree.Connect("left", "cross", fitting.CrossLeft))
	require.NoError(t, tree.Connect("right", "cross", fitting.CrossRight))
	assignFlows(t, tree)
	return tree
}

func TestCrossLosses(t *testing.T) {
	tree := crossTree(t)
	calc := newCalc(t, pressure.Options{TrunkStaticPressure: 200_000})

	trunkStub := hw(0.006, 0.1) * 0.1
	tests := []struct {
		leaf string
		port int
		want float64
	}{
		{"ahead", fitting.CrossMain, trunkStub + hw(0.003, 0.1)*wyeLength(t, 0.1) + hw(0.003, 0.1)*0.2},
		{"left", fitting.CrossLeft, trunkStub + hw(0.002, 0.05)*wyeLength(t, 0.05) + hw(0.002, 0.05)*0.2},
		{"right", fitting.CrossRight, trunkStub + hw(0.001, 0.04)*wyeLength(t, 0.04) + hw(0.001, 0.04)*0.3},
	}
	rec, err := calc.Record(tree, mustComponent(t, tree, "cross"))
	require.NoError(t, err)
	for _, tt := range tests {
		got, err := calc.StaticPressureLoss(tree, "cross", tt.leaf)
		require.NoError(t, err, tt.leaf)
		assert.InDelta(t, tt.want, got, delta, tt.leaf)

		portLoss, ok := rec.PortLoss(tt.port)
		require.True(t, ok, tt.leaf)
		assert.InDelta(t, tt.want, portLoss, delta, tt.leaf)
	}
	_, ok := rec.PortLoss(4)
	assert.False(t, ok)

	cross := rec.(pressure.CrossRecord)
	assert.InDelta(t, 0.006, cross.Flow, 1e-12)
	assert.InDelta(t, 0.002, cross.FlowLeft, 1e-12)
	assert.InDelta(t, 0.001, cross.FlowRight, 1e-12)
	assert.Greater(t, cross.ZLoss, 0.0)

	errs, err := calc.UpdatePressureCalcs(tree)
	require.NoError(t, err)
	require.Empty(t, errs)
	for _, tt := range tests {
		assert.InDelta(t, 200_000-tt.want, pressureAt(t, tree, "cross", tt.port), delta, tt.leaf)
	}
}

func TestStaticPressureLossSingleOutlet(t *testing.T) {
	tree := fittingtest.Sample()
	assignFlows(t, tree)
	calc := newCalc(t, pressure.Options{})

	got, err := calc.StaticPressureLoss(tree, fittingtest.RunA, fittingtest.Elbow)
	require.NoError(t, err)
	assert.InDelta(t, hw(0.002, 0.1)*9.8, got, delta)
}

func TestStaticPressureLossErrors(t *testing.T) {
	tree := fittingtest.Sample()
	assignFlows(t, tree)
	calc := newCalc(t, pressure.Options{})

	tests := []struct {
		name            string
		current, branch string
		code            errors.Code
	}{
		{"not downstream", fittingtest.Wye, fittingtest.Head1, errors.ErrCodeNotDownstream},
		{"reversed", fittingtest.RunA, fittingtest.Wye, errors.ErrCodeNotDownstream},
		{"unknown current", "nope", fittingtest.RunA, errors.ErrCodeNotFound},
		{"unknown branch side", fittingtest.Wye, "nope", errors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.StaticPressureLoss(tree, tt.current, tt.branch)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}

	_, err := calc.StaticPressureLoss(nil, fittingtest.Wye, fittingtest.RunA)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestStaticPressureLossUnknownBranch(t *testing.T) {
	// The leaf sits on the wye's trunk-side port, so no branch port is closest.
	tree := fitting.New()
	require.NoError(t, tree.Add(fitting.NewTrunk("supply", 0.1, geom.Vec3{})))
	require.NoError(t, tree.Add(fitting.NewWye("wye", geom.Vec3{X: 1},
		fitting.PortSpec{Diameter: 0.1, Position: geom.Vec3{X: 0.9}},
		fitting.PortSpec{Diameter: 0.1, Position: geom.Vec3{X: 1.1}},
		fitting.PortSpec{Diameter: 0.05, Position: geom.Vec3{X: 1, Y: 0.1}},
	)))
	require.NoError(t, tree.Add(fitting.NewLeaf("head", 0.025, geom.Vec3{X: 0.9}, 0.001, 0)))
	require.NoError(t, tree.Connect("wye", "supply", 0))
	require.NoError(t, tree.Connect("head", "wye", fitting.WyeMain))
	assignFlows(t, tree)

	_, err := newCalc(t, pressure.Options{}).StaticPressureLoss(tree, "wye", "head")
	assert.True(t, errors.Is(err, errors.ErrCodeUnknownBranch), "got %v", err)
}

func TestElbowEquivalentLength(t *testing.T) {
	tests := []struct {
		angle float64
		want  float64
	}{
		{90, 3.0},
		{90.5, 3.0},
		{45, hydraulics.DefaultEquivalentLength},
	}
	calc := newCalc(t, pressure.Options{})
	for _, tt := range tests {
		tree := fitting.New()
		el := fitting.NewElbow("e", 0.1, tt.angle, geom.Vec3{})
		require.NoError(t, tree.Add(el))
		el.Ports[0].SetFlowRate(0.01)

		rec, err := calc.Record(tree, el)
		require.NoError(t, err)
		got := rec.(pressure.ElbowRecord)
		assert.InDelta(t, tt.want, got.EquivalentLength, 1e-9, "angle %g", tt.angle)
		assert.InDelta(t, hw(0.01, 0.1)*tt.want, got.Loss, delta, "angle %g", tt.angle)
	}
}

func TestManifoldBranchLosses(t *testing.T) {
	tree := fitting.New()
	m := fitting.NewManifold("m", geom.Vec3{}, 1.5,
		fitting.PortSpec{Diameter: 0.1},
		fitting.PortSpec{Diameter: 0.05, Position: geom.Vec3{Y: 0.5}},
		fitting.PortSpec{Diameter: 0.05, Position: geom.Vec3{Y: -1}},
	)
	require.NoError(t, tree.Add(m))
	m.Ports[1].SetFlowRate(0.002)
	m.Ports[2].SetFlowRate(0.001)

	rec, err := newCalc(t, pressure.Options{}).Record(tree, m)
	require.NoError(t, err)
	loss1, ok := rec.PortLoss(1)
	require.True(t, ok)
	loss2, ok := rec.PortLoss(2)
	require.True(t, ok)
	assert.InDelta(t, hw(0.002, 0.05)*2.0, loss1, delta)
	assert.InDelta(t, hw(0.001, 0.05)*2.5, loss2, delta)
	_, ok = rec.PortLoss(3)
	assert.False(t, ok)
}

func TestSectionLoss(t *testing.T) {
	tree := fittingtest.Sample()
	assignFlows(t, tree)
	calc := newCalc(t, pressure.Options{})

	var total, want float64
	for _, sec := range tree.Sections() {
		loss, err := calc.SectionLoss(sec)
		require.NoError(t, err)
		total += loss
	}
	for _, seg := range fitting.All[*fitting.StraightSegment](tree) {
		rec, err := calc.Record(tree, seg)
		require.NoError(t, err)
		want += rec.(pressure.SegmentRecord).Loss()
	}
	assert.InDelta(t, want, total, delta)
}

// valve is a component type the empirical model does not know.
type valve struct {
	fitting.Base
}

func valveLine(t *testing.T) *fitting.Tree {
	t.Helper()
	tree := fitting.New()
	require.NoError(t, tree.Add(fitting.NewTrunk("supply", 0.05, geom.Vec3{})))
	require.NoError(t, tree.Add(fitting.NewSegment("pipe", 0.05, geom.Vec3{}, geom.Vec3{X: 2})))
	require.NoError(t, tree.Add(&valve{fitting.Base{ID: "valve", Origin: geom.Vec3{X: 2}, Ports: []*fitting.Port{
		{Diameter: 0.05, Position: geom.Vec3{X: 2}},
		{Diameter: 0.05, Position: geom.Vec3{X: 2}},
	}}}))
	require.NoError(t, tree.Add(fitting.NewLeaf("head", 0.05, geom.Vec3{X: 2}, 0.001, 0)))
	require.NoError(t, tree.Connect("pipe", "supply", 0))
	require.NoError(t, tree.Connect("valve", "pipe", 1))
	require.NoError(t, tree.Connect("head", "valve", 1))
	assignFlows(t, tree)
	return tree
}

func TestUnsupportedComponentLenient(t *testing.T) {
	tree := valveLine(t)
	errs, err := newCalc(t, pressure.Options{TrunkStaticPressure: 1000}).UpdatePressureCalcs(tree)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, errors.ErrCodeUnsupportedComponent, errs[0].Code)
	assert.Equal(t, "valve", errs[0].ComponentID)
	require.NotNil(t, errs[0].Location)

	_ = pressureAt(t, tree, "pipe", 1)
	_, ok := fittingtest.Port(tree, "head", 0).StaticPressure()
	assert.False(t, ok, "pressure below the unsupported component should stay unknown")
}

func TestUnsupportedComponentFailFast(t *testing.T) {
	tree := valveLine(t)
	_, err := newCalc(t, pressure.Options{FailFast: true}).UpdatePressureCalcs(tree)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnsupportedComponent))
}

func TestCouplerModels(t *testing.T) {
	build := func() *fitting.Tree {
		tree := fitting.New()
		require.NoError(t, tree.Add(fitting.NewTrunk("supply", 0.05, geom.Vec3{})))
		require.NoError(t, tree.Add(fitting.NewCoupler("coupler", 0.05, geom.Vec3{})))
		require.NoError(t, tree.Add(fitting.NewLeaf("head", 0.05, geom.Vec3{}, 0.001, 0)))
		require.NoError(t, tree.Connect("coupler", "supply", 0))
		require.NoError(t, tree.Connect("head", "coupler", 1))
		assignFlows(t, tree)
		return tree
	}

	tree := build()
	errs, err := newCalc(t, pressure.Options{TrunkStaticPressure: 1000}).UpdatePressureCalcs(tree)
	require.NoError(t, err)
	require.Empty(t, errs)
	assert.InDelta(t, 1000, pressureAt(t, tree, "coupler", 1), delta)

	tree = build()
	errs, err = newCalc(t, pressure.Options{Couplers: pressure.CouplerUnsupported}).UpdatePressureCalcs(tree)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, errors.ErrCodeNotSupported, errs[0].Code)
}

func TestLenientReportsEachFailingComponent(t *testing.T) {
	tree := fitting.New()
	require.NoError(t, tree.Add(fitting.NewTrunk("supply", 0.05, geom.Vec3{})))
	require.NoError(t, tree.Add(fitting.NewCoupler("c1", 0.05, geom.Vec3{})))
	require.NoError(t, tree.Add(fitting.NewCoupler("c2", 0.05, geom.Vec3{})))
	require.NoError(t, tree.Add(fitting.NewLeaf("head", 0.05, geom.Vec3{}, 0.001, 0)))
	require.NoError(t, tree.Connect("c1", "supply", 0))
	require.NoError(t, tree.Connect("c2", "c1", 1))
	require.NoError(t, tree.Connect("head", "c2", 1))
	assignFlows(t, tree)

	errs, err := newCalc(t, pressure.Options{Couplers: pressure.CouplerUnsupported}).UpdatePressureCalcs(tree)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, "c1", errs[0].ComponentID)
	assert.Equal(t, "c2", errs[1].ComponentID)
	for _, fe := range errs {
		assert.Equal(t, errors.ErrCodeNotSupported, fe.Code)
	}
}

func TestTableOverflowReportedOnce(t *testing.T) {
	tree := fitting.New()
	require.NoError(t, tree.Add(fitting.NewTrunk("supply", 0.4, geom.Vec3{})))
	require.NoError(t, tree.Add(fitting.NewElbow("elbow", 0.4, 90, geom.Vec3{})))
	require.NoError(t, tree.Add(fitting.NewLeaf("head", 0.4, geom.Vec3{}, 0.01, 0)))
	require.NoError(t, tree.Connect("elbow", "supply", 0))
	require.NoError(t, tree.Connect("head", "elbow", 1))
	assignFlows(t, tree)

	errs, err := newCalc(t, pressure.Options{}).UpdatePressureCalcs(tree)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, errors.ErrCodeOutOfRange, errs[0].Code)
}

func TestMultipleTrunks(t *testing.T) {
	errs, err := newCalc(t, pressure.Options{}).UpdatePressureCalcs(fittingtest.WithStrayTerminal())
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, errors.ErrCodeMultipleTrunks, errs[0].Code)
}

func TestNewEmpiricalRejectsCFactor(t *testing.T) {
	for _, c := range []float64{90, 151} {
		_, err := pressure.NewEmpirical(pressure.Options{CFactor: c})
		assert.True(t, errors.Is(err, errors.ErrCodeOutOfRange), "C=%g", c)
	}
	calc := newCalc(t, pressure.Options{})
	assert.Equal(t, c130, calc.Options().CFactor)
}

func TestParseCouplerModel(t *testing.T) {
	m, err := pressure.ParseCouplerModel("unsupported")
	require.NoError(t, err)
	assert.Equal(t, pressure.CouplerUnsupported, m)
	assert.Equal(t, "unsupported", m.String())

	m, err = pressure.ParseCouplerModel("")
	require.NoError(t, err)
	assert.Equal(t, pressure.CouplerZeroLoss, m)

	_, err = pressure.ParseCouplerModel("bogus")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))
}

func wyeLength(t *testing.T, d float64) float64 {
	t.Helper()
	leq, err := hydraulics.WyeEquivalentLength(d, c130)
	require.NoError(t, err)
	return leq
}

func mustComponent(t *testing.T, tree *fitting.Tree, id string) fitting.Component {
	t.Helper()
	c, ok := tree.Component(id)
	require.True(t, ok, "component %s", id)
	return c
}
