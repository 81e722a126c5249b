// Package converge reconciles leaf flow demands with the static pressures
// computed for them.
//
// Outlets such as sprinkler heads discharge q = K√p, so the flow a leaf
// actually draws depends on the pressure that reaches it, which in turn
// depends on every flow in the tree. [KFactor] performs one damped
// fixed-point correction per call:
//
//	flow ← flow + (K√p − flow) × damping
//
// The damping factor adapts between calls. When the total leaf flow turns
// back on itself the factor is halved; after more than two calls in the same
// direction it is doubled once, up to its initial value. A leaf whose static
// pressure is not positive gives up part of its flow each call, at most half.
//
// A strategy holds history across calls and must be [KFactor.Reset] between
// independent analyses. It does not cap the number of passes; see package
// pipeline for a bounded driver.
package converge

import (
	"math"

	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/hydraulics"
)

const (
	// DefaultTolerance is the flow tolerance in m³/s (about 0.06 L/min).
	DefaultTolerance = 1e-6

	// DefaultDamping is the initial and maximum damping factor.
	DefaultDamping = 0.5

	// maxShrink bounds the fraction of its flow an unreachable leaf gives up
	// in one call, so such a leaf never drops straight to zero.
	maxShrink = 0.5

	// reversalRatio classifies a step as a reversal when the ratio of this
	// step's movement to the previous one falls below it.
	reversalRatio = 0.1

	// restoreAfter is the number of same-direction calls after which the
	// damping factor is restored.
	restoreAfter = 2

	// outlierFactor scales the tolerance for single-leaf checks.
	outlierFactor = 10
)

// Options configures a [KFactor] strategy.
type Options struct {
	// Tolerance is the flow tolerance in m³/s. Zero means DefaultTolerance.
	Tolerance float64

	// InitialDamping is the starting and maximum damping factor, in (0, 1].
	// Zero means DefaultDamping.
	InitialDamping float64

	// KFactor returns the discharge coefficient of a leaf terminal, in
	// m³/s per √Pa. Nil means the leaf's own KFactor. Leaves with a
	// non-positive coefficient keep their demand unchanged.
	KFactor func(*fitting.Terminal) float64
}

// LeafFlow is the outcome of the last pass for one leaf.
type LeafFlow struct {
	ID       string
	Flow     float64 // assigned after the pass
	Expected float64 // K√p at the pressure the pass started from
}

// KFactor is the K-factor leaf-flow convergence strategy.
//
// A KFactor is not safe for concurrent use.
type KFactor struct {
	opts    Options
	damping float64

	lastMove float64 // change of total leaf flow in the previous moving call
	moved    bool    // lastMove is valid
	sameDir  int     // consecutive moving calls in the current direction
	restored bool    // damping already restored in the current run

	flows []LeafFlow
}

// New returns a strategy for opts.
// Returns an ErrCodeInvalidInput error for a negative tolerance or a damping
// factor outside (0, 1].
func New(opts Options) (*KFactor, error) {
	if opts.Tolerance == 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.InitialDamping == 0 {
		opts.InitialDamping = DefaultDamping
	}
	if err := errors.ValidatePositive("tolerance", opts.Tolerance); err != nil {
		return nil, err
	}
	if err := errors.ValidatePositive("initial damping", opts.InitialDamping); err != nil {
		return nil, err
	}
	if opts.InitialDamping > 1 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "initial damping must be at most 1, got %g", opts.InitialDamping)
	}
	s := &KFactor{opts: opts}
	s.Reset()
	return s, nil
}

// Reset clears the iteration history and restores the initial damping.
func (s *KFactor) Reset() {
	s.damping = s.opts.InitialDamping
	s.lastMove = 0
	s.moved = false
	s.sameDir = 0
	s.restored = false
	s.flows = nil
}

// Damping returns the factor the next call will use.
func (s *KFactor) Damping() float64 { return s.damping }

// Tolerance returns the effective flow tolerance.
func (s *KFactor) Tolerance() float64 { return s.opts.Tolerance }

// Flows returns the per-leaf results of the last call, in terminal order.
func (s *KFactor) Flows() []LeafFlow {
	out := make([]LeafFlow, len(s.flows))
	copy(out, s.flows)
	return out
}

// UpdateLeafFlow performs one correction pass over every leaf with a known
// static pressure and reports whether another pass is needed.
//
// A pass is needed when the mean deviation between expected and assigned
// flow exceeds the tolerance, or when a single leaf deviates or moves by more
// than ten times the tolerance.
func (s *KFactor) UpdateLeafFlow(t *fitting.Tree) (bool, error) {
	if t == nil {
		return false, errors.New(errors.ErrCodeInvalidInput, "tree must not be nil")
	}
	trunk, err := t.Trunk()
	if err != nil {
		return false, err
	}

	type update struct {
		leaf     *fitting.Leaf
		flow     float64
		expected float64
	}
	var (
		updates  []update
		flows    []LeafFlow
		preTotal float64
		newTotal float64
	)
	for _, term := range t.Terminals() {
		if term == trunk {
			continue
		}
		leaf, ok := term.Leaf()
		if !ok {
			continue
		}
		p, known := term.TrunkPort().StaticPressure()
		k := s.kFactor(term, leaf)
		if !known || k <= 0 {
			flows = append(flows, LeafFlow{ID: term.ID, Flow: leaf.Flow, Expected: leaf.Flow})
			continue
		}

		cur := leaf.Flow
		var expected, next float64
		if p > 0 {
			expected = hydraulics.ExpectedDischarge(p, k)
			next = cur + (expected-cur)*s.damping
		} else {
			// Unreachable outlet: back off instead of snapping to zero.
			next = cur * (1 - math.Min(s.damping, maxShrink))
		}
		preTotal += cur
		newTotal += next
		updates = append(updates, update{leaf: leaf, flow: next, expected: expected})
		flows = append(flows, LeafFlow{ID: term.ID, Flow: next, Expected: expected})
	}

	s.adapt(newTotal - preTotal)

	var sumDev float64
	again := false
	limit := outlierFactor * s.opts.Tolerance
	for _, u := range updates {
		dev := math.Abs(u.expected - u.flow)
		sumDev += dev
		if dev > limit || math.Abs(u.flow-u.leaf.Flow) > limit {
			again = true
		}
		u.leaf.Flow = u.flow
	}
	if len(updates) > 0 && sumDev/float64(len(updates)) > s.opts.Tolerance {
		again = true
	}
	s.flows = flows
	return again, nil
}

// adapt updates the damping factor from the change of total leaf flow.
func (s *KFactor) adapt(move float64) {
	if move == 0 {
		return
	}
	if !s.moved || s.lastMove == 0 {
		s.sameDir = 1
	} else if move/s.lastMove < reversalRatio {
		s.damping /= 2
		s.sameDir = 1
		s.restored = false
	} else {
		s.sameDir++
		if s.sameDir > restoreAfter && !s.restored && s.damping < s.opts.InitialDamping {
			s.damping = math.Min(s.damping*2, s.opts.InitialDamping)
			s.restored = true
		}
	}
	s.lastMove = move
	s.moved = true
}

func (s *KFactor) kFactor(term *fitting.Terminal, leaf *fitting.Leaf) float64 {
	if s.opts.KFactor != nil {
		return s.opts.KFactor(term)
	}
	return leaf.KFactor
}
