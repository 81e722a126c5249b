// Package pressure computes static pressure losses across a fitting tree and
// writes the resulting port pressures back onto it.
//
// The [Empirical] calculator uses the Hazen-Williams formula with
// equivalent-length allowances for fittings. Each pass produces one record
// per component (see [SegmentRecord], [WyeRecord] and friends); the records
// are handed to [fitting.Tree.AssignPressures], which walks from the trunk
// and subtracts each component's losses from the pressure feeding it.
//
// Flow rates must be assigned first, normally by a flowcalc calculator.
//
// # Error handling
//
// By default each component whose loss cannot be computed is reported as its
// own [fitting.FittingError] and its subtree is left without pressures. With
// [Options].FailFast set, the first such failure is returned as an error
// instead.
package pressure

import (
	"math"

	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/hydraulics"
)

// Calculator computes and assigns port pressures for one pass.
type Calculator interface {
	// UpdatePressureCalcs computes a loss record for every component and
	// assigns the static pressure of every port reachable from the trunk.
	UpdatePressureCalcs(t *fitting.Tree) ([]fitting.FittingError, error)

	// StaticPressureLoss returns the loss across component current on the
	// path to its downstream neighbor branchSide.
	StaticPressureLoss(t *fitting.Tree, current, branchSide string) (float64, error)
}

// CouplerModel selects how couplers are treated.
type CouplerModel int

const (
	// CouplerZeroLoss treats couplers as lossless.
	CouplerZeroLoss CouplerModel = iota
	// CouplerUnsupported reports every coupler as ErrCodeNotSupported.
	CouplerUnsupported
)

// ParseCouplerModel parses "zero" or "unsupported".
func ParseCouplerModel(s string) (CouplerModel, error) {
	switch s {
	case "", "zero":
		return CouplerZeroLoss, nil
	case "unsupported":
		return CouplerUnsupported, nil
	}
	return 0, errors.New(errors.ErrCodeInvalidConfig, "unknown coupler model %q (want zero or unsupported)", s)
}

// String returns the name accepted by ParseCouplerModel.
func (m CouplerModel) String() string {
	if m == CouplerUnsupported {
		return "unsupported"
	}
	return "zero"
}

// Options configures an [Empirical] calculator.
type Options struct {
	// CFactor is the Hazen-Williams roughness coefficient. Zero means
	// hydraulics.DefaultCFactor. Must be within the C-factor table (100-150).
	CFactor float64

	// TrunkStaticPressure is assigned to the trunk outlet when nonzero and
	// the trunk has no fixed pressure of its own, in Pa.
	TrunkStaticPressure float64

	// FailFast makes per-component failures abort the pass with an error.
	FailFast bool

	// IncludeElevation adds the hydrostatic loss of rising segments.
	IncludeElevation bool

	Couplers CouplerModel
}

// Empirical is the Hazen-Williams pressure calculator.
type Empirical struct {
	opts Options
}

var _ Calculator = (*Empirical)(nil)

// NewEmpirical returns a calculator for opts.
// Returns an ErrCodeOutOfRange error if the C-factor is outside the table.
func NewEmpirical(opts Options) (*Empirical, error) {
	if opts.CFactor == 0 {
		opts.CFactor = hydraulics.DefaultCFactor
	}
	if _, err := hydraulics.MultiplierForCFactor(opts.CFactor); err != nil {
		return nil, err
	}
	return &Empirical{opts: opts}, nil
}

// Options returns the effective options.
func (e *Empirical) Options() Options { return e.opts }

// UpdatePressureCalcs implements [Calculator].
//
// Records are computed in [fitting.Tree.Flatten] order. The trunk outlet is
// then set to the trunk's fixed pressure, or to TrunkStaticPressure when that
// is nonzero, and the tree assigns every reachable port.
func (e *Empirical) UpdatePressureCalcs(t *fitting.Tree) ([]fitting.FittingError, error) {
	if t == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "tree must not be nil")
	}
	trunk, err := t.Trunk()
	if err != nil {
		return []fitting.FittingError{fitting.ErrorFrom(nil, err)}, nil
	}

	var errs []fitting.FittingError
	failed := make(map[string]bool)
	components := t.Flatten()
	records := make([]fitting.LossRecord, 0, len(components))
	for _, c := range components {
		rec, err := e.Record(t, c)
		if err != nil {
			if e.opts.FailFast {
				return errs, errors.New(errors.GetCode(err), "%s: %s", c.ComponentID(), errors.UserMessage(err))
			}
			errs = append(errs, fitting.ErrorFrom(c, err))
			failed[c.ComponentID()] = true
			continue
		}
		records = append(records, rec)
	}

	outlet := trunk.TrunkPort()
	if node, ok := trunk.TrunkNode(); ok && node.FixedPressure != nil {
		outlet.SetStaticPressure(*node.FixedPressure)
	} else if e.opts.TrunkStaticPressure != 0 {
		outlet.SetStaticPressure(e.opts.TrunkStaticPressure)
	}

	for _, fe := range t.AssignPressures(records) {
		if !failed[fe.ComponentID] {
			errs = append(errs, fe)
		}
	}
	return errs, nil
}

// StaticPressureLoss implements [Calculator].
//
// branchSide must be fed directly by current. For wyes, crosses and
// manifolds the outlet is the port of current closest to the trunk-side port
// of branchSide; if that is current's own trunk side the branch is unknown.
// Other components report the loss to the port that feeds branchSide.
func (e *Empirical) StaticPressureLoss(t *fitting.Tree, current, branchSide string) (float64, error) {
	if t == nil {
		return 0, errors.New(errors.ErrCodeInvalidInput, "tree must not be nil")
	}
	cur, ok := t.Component(current)
	if !ok {
		return 0, errors.New(errors.ErrCodeNotFound, "unknown component %q", current)
	}
	down, ok := t.Component(branchSide)
	if !ok {
		return 0, errors.New(errors.ErrCodeNotFound, "unknown component %q", branchSide)
	}
	ref, fed := t.Upstream(branchSide)
	if !fed || ref.Component != current {
		return 0, errors.New(errors.ErrCodeNotDownstream, "%q is not directly downstream of %q", branchSide, current)
	}

	rec, err := e.Record(t, cur)
	if err != nil {
		return 0, err
	}

	port := ref.Port
	switch cur.(type) {
	case *fitting.Wye, *fitting.Cross, *fitting.Manifold:
		port = closestPort(fitting.BaseOf(cur), fitting.BaseOf(down).TrunkPort())
		if port <= 0 {
			return 0, errors.New(errors.ErrCodeUnknownBranch, "%q does not connect to a branch of %q", branchSide, current)
		}
	}
	loss, ok := rec.PortLoss(port)
	if !ok || math.IsNaN(loss) {
		return 0, errors.New(errors.ErrCodeUnknownBranch, "%s has no loss for port %d", current, port)
	}
	return loss, nil
}

// SectionLoss returns the combined loss along a section.
func (e *Empirical) SectionLoss(sec fitting.Section) (float64, error) {
	var total float64
	for _, seg := range sec.Segments {
		rec, err := e.segment(seg)
		if err != nil {
			return 0, err
		}
		total += rec.Loss()
	}
	return total, nil
}

// closestPort returns the index of the port of b nearest to target, or -1.
func closestPort(b *fitting.Base, target *fitting.Port) int {
	if target == nil {
		return -1
	}
	best, bestDist := -1, math.Inf(1)
	for i, p := range b.Ports {
		if d := p.Position.Dist(target.Position); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
