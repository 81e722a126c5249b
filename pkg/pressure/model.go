package pressure

import (
	"math"

	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/hydraulics"
)

// Record computes the loss record of component c from the flow rates
// currently assigned to its ports.
//
// Returns an ErrCodeUnsupportedComponent error for component types the model
// does not know, and ErrCodeNotSupported for couplers under
// CouplerUnsupported.
func (e *Empirical) Record(t *fitting.Tree, c fitting.Component) (fitting.LossRecord, error) {
	switch c := c.(type) {
	case *fitting.StraightSegment:
		return e.segment(c)
	case *fitting.Elbow:
		return e.elbow(c)
	case *fitting.Wye:
		return e.wye(c)
	case *fitting.Cross:
		return e.cross(c)
	case *fitting.Reducer:
		return e.reducer(c), nil
	case *fitting.Coupler:
		return e.coupler(c)
	case *fitting.Manifold:
		return e.manifold(c), nil
	case *fitting.Terminal:
		_, fed := t.Upstream(c.ID)
		return e.terminal(c, !fed), nil
	default:
		return nil, errors.New(errors.ErrCodeUnsupportedComponent, "unsupported component type %T", c)
	}
}

// friction returns the loss of q through length metres of diameter d.
func (e *Empirical) friction(q, d, length float64) float64 {
	if length == 0 {
		return 0
	}
	return hydraulics.HazenWilliamsPD(e.opts.CFactor, q, d) * length
}

func (e *Empirical) segment(s *fitting.StraightSegment) (SegmentRecord, error) {
	q, d := s.Ports[0].FlowRate(), s.Diameter()
	rec := SegmentRecord{
		ID:       s.ID,
		Flow:     q,
		Diameter: d,
		Length:   s.Length,
		Friction: e.friction(q, d, s.Length),
	}
	if e.opts.IncludeElevation {
		drop := -s.Rise()
		rec.Elevation = -hydraulics.StaticGain(drop)
	}
	if math.IsNaN(rec.Loss()) || math.IsInf(rec.Loss(), 0) {
		return SegmentRecord{}, errors.New(errors.ErrCodeInternal, "segment loss is not finite")
	}
	return rec, nil
}

func (e *Empirical) elbow(el *fitting.Elbow) (ElbowRecord, error) {
	q, d := el.Ports[0].FlowRate(), el.Ports[0].Diameter
	leq := hydraulics.DefaultEquivalentLength
	if hydraulics.IsRightAngle(el.Angle) {
		var err error
		if leq, err = hydraulics.ElbowEquivalentLength(d, e.opts.CFactor); err != nil {
			return ElbowRecord{}, err
		}
	}
	return ElbowRecord{
		ID:               el.ID,
		Flow:             q,
		Diameter:         d,
		EquivalentLength: leq,
		Loss:             e.friction(q, d, leq),
	}, nil
}

// stub returns the friction loss between port p and the fitting origin.
func (e *Empirical) stub(b *fitting.Base, p *fitting.Port) float64 {
	return e.friction(p.FlowRate(), p.Diameter, p.Position.Dist(b.Origin))
}

// outlet returns the local loss of the flow leaving a branching fitting
// through p, on p's own flow and diameter.
func (e *Empirical) outlet(p *fitting.Port) (float64, error) {
	leq, err := hydraulics.WyeEquivalentLength(p.Diameter, e.opts.CFactor)
	if err != nil {
		return 0, err
	}
	return e.friction(p.FlowRate(), p.Diameter, leq), nil
}

func (e *Empirical) wye(w *fitting.Wye) (WyeRecord, error) {
	trunk, main, branch := w.Ports[fitting.WyeTrunk], w.Ports[fitting.WyeMain], w.Ports[fitting.WyeBranch]
	zMain, err := e.outlet(main)
	if err != nil {
		return WyeRecord{}, err
	}
	zBranch, err := e.outlet(branch)
	if err != nil {
		return WyeRecord{}, err
	}
	return WyeRecord{
		ID:                 w.ID,
		Flow:               trunk.FlowRate(),
		FlowMain:           main.FlowRate(),
		FlowBranch:         branch.FlowRate(),
		ZLoss:              zMain,
		ZLossBranchToTrunk: zBranch,
		PipeLossTrunk:      e.stub(&w.Base, trunk),
		PipeLossMain:       e.stub(&w.Base, main),
		PipeLossBranch:     e.stub(&w.Base, branch),
	}, nil
}

func (e *Empirical) cross(x *fitting.Cross) (CrossRecord, error) {
	p := x.Ports
	main := p[fitting.CrossMain]
	zMain, err := e.outlet(main)
	if err != nil {
		return CrossRecord{}, err
	}
	zLeft, err := e.outlet(p[fitting.CrossLeft])
	if err != nil {
		return CrossRecord{}, err
	}
	zRight, err := e.outlet(p[fitting.CrossRight])
	if err != nil {
		return CrossRecord{}, err
	}
	return CrossRecord{
		ID:            x.ID,
		Flow:          p[fitting.CrossTrunk].FlowRate(),
		FlowMain:      main.FlowRate(),
		FlowLeft:      p[fitting.CrossLeft].FlowRate(),
		FlowRight:     p[fitting.CrossRight].FlowRate(),
		ZLoss:         zMain,
		ZLossLeft:     zLeft,
		ZLossRight:    zRight,
		PipeLossTrunk: e.stub(&x.Base, p[fitting.CrossTrunk]),
		PipeLossMain:  e.stub(&x.Base, main),
		PipeLossLeft:  e.stub(&x.Base, p[fitting.CrossLeft]),
		PipeLossRight: e.stub(&x.Base, p[fitting.CrossRight]),
	}, nil
}

func (e *Empirical) reducer(r *fitting.Reducer) ReducerRecord {
	q := r.Ports[0].FlowRate()
	d := math.Min(r.Ports[0].Diameter, r.Ports[1].Diameter)
	return ReducerRecord{
		ID:               r.ID,
		Flow:             q,
		Diameter:         d,
		EquivalentLength: hydraulics.DefaultEquivalentLength,
		Loss:             e.friction(q, d, hydraulics.DefaultEquivalentLength),
	}
}

func (e *Empirical) coupler(c *fitting.Coupler) (CouplerRecord, error) {
	if e.opts.Couplers == CouplerUnsupported {
		return CouplerRecord{}, errors.New(errors.ErrCodeNotSupported, "coupler pressure loss is not modelled")
	}
	return CouplerRecord{ID: c.ID, Flow: c.Ports[0].FlowRate()}, nil
}

func (e *Empirical) terminal(t *fitting.Terminal, isTrunk bool) TerminalRecord {
	p := t.Ports[0]
	rec := TerminalRecord{ID: t.ID, Flow: p.FlowRate(), Diameter: p.Diameter, Trunk: isTrunk}
	if !isTrunk {
		rec.Loss = e.friction(rec.Flow, rec.Diameter, hydraulics.TerminalEquivalentLength)
	}
	return rec
}

func (e *Empirical) manifold(m *fitting.Manifold) ManifoldRecord {
	rec := ManifoldRecord{
		ID:           m.ID,
		Flow:         m.Ports[0].FlowRate(),
		TrunkLength:  m.TrunkLength,
		BranchLosses: make([]float64, len(m.Ports)),
	}
	for i, p := range m.Ports[1:] {
		length := p.Position.Dist(m.Origin) + m.TrunkLength
		rec.BranchLosses[i+1] = e.friction(p.FlowRate(), p.Diameter, length)
	}
	return rec
}
