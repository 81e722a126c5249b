// Package flowcalc assigns flow rates to every port of a fitting tree.
//
// A [Calculator] pushes each leaf's demand upstream through the tree until it
// reaches the trunk, so every junction carries the sum of the flows it feeds.
// Two strategies are provided:
//
//   - [FullFlow] activates every leaf.
//   - [RemoteArea] activates only the leaves inside a horizontal polygon,
//     the "design area" of a fire-code calculation.
//
// After a pass every port has a non-nil flow. Ports that no leaf reaches
// (disconnected parts of the tree) are set to zero rather than left unknown.
//
// Both strategies can carry a [LeafFlowStrategy] that corrects leaf demands
// from the pressures of the previous pass; see package converge.
package flowcalc

import (
	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/geom"
)

// Calculator assigns port flow rates for one pass.
type Calculator interface {
	// AssignFlowCalcs sets the flow rate of every port in t. Network
	// conditions are returned as FittingErrors; error is reserved for
	// misuse such as a nil tree.
	AssignFlowCalcs(t *fitting.Tree) ([]fitting.FittingError, error)

	// UpdateLeafFlow runs one leaf-flow correction and reports whether
	// another pass is needed. Without a strategy it returns false.
	UpdateLeafFlow(t *fitting.Tree) (bool, error)
}

// LeafFlowStrategy corrects leaf demands between passes.
type LeafFlowStrategy interface {
	UpdateLeafFlow(t *fitting.Tree) (bool, error)
}

// FullFlow propagates the demand of every leaf.
type FullFlow struct {
	Strategy LeafFlowStrategy // optional
}

// AssignFlowCalcs implements [Calculator].
func (f *FullFlow) AssignFlowCalcs(t *fitting.Tree) ([]fitting.FittingError, error) {
	return assign(t, func(_ *fitting.Terminal, leaf *fitting.Leaf) float64 {
		return leaf.Flow
	})
}

// UpdateLeafFlow implements [Calculator].
func (f *FullFlow) UpdateLeafFlow(t *fitting.Tree) (bool, error) {
	return delegate(f.Strategy, t)
}

// RemoteArea propagates the demand of the leaves whose origin, projected to
// the horizontal plane, lies inside Area. Other leaves flow nothing.
type RemoteArea struct {
	Area     geom.Polygon
	Strategy LeafFlowStrategy // optional
}

// AssignFlowCalcs implements [Calculator].
func (r *RemoteArea) AssignFlowCalcs(t *fitting.Tree) ([]fitting.FittingError, error) {
	return assign(t, func(term *fitting.Terminal, leaf *fitting.Leaf) float64 {
		if !r.Active(term) {
			return 0
		}
		return leaf.Flow
	})
}

// UpdateLeafFlow implements [Calculator].
func (r *RemoteArea) UpdateLeafFlow(t *fitting.Tree) (bool, error) {
	return delegate(r.Strategy, t)
}

// Active reports whether the leaf terminal term lies inside the area.
func (r *RemoteArea) Active(term *fitting.Terminal) bool {
	return r.Area.Contains(term.Origin.XY())
}

func delegate(s LeafFlowStrategy, t *fitting.Tree) (bool, error) {
	if s == nil {
		return false, nil
	}
	if t == nil {
		return false, errors.New(errors.ErrCodeInvalidInput, "tree must not be nil")
	}
	return s.UpdateLeafFlow(t)
}

// assign runs one flow pass, asking demand for the flow of each leaf.
func assign(t *fitting.Tree, demand func(*fitting.Terminal, *fitting.Leaf) float64) ([]fitting.FittingError, error) {
	if t == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "tree must not be nil")
	}
	trunk, err := t.Trunk()
	if err != nil {
		return []fitting.FittingError{fitting.ErrorFrom(nil, err)}, nil
	}

	components := t.Flatten()
	for _, c := range components {
		if isLeaf(c, trunk) {
			continue
		}
		for _, p := range fitting.BaseOf(c).Ports {
			p.SetFlowRate(0)
		}
	}

	var errs []fitting.FittingError
	for _, term := range t.Terminals() {
		if term == trunk {
			continue
		}
		leaf, ok := term.Leaf()
		if !ok {
			errs = append(errs, fitting.NewFittingError(term, errors.ErrCodeMissingLeaf,
				"terminal is not classified as a leaf"))
			continue
		}
		if err := t.PropagateFlow(term, demand(term, leaf)); err != nil {
			errs = append(errs, fitting.ErrorFrom(term, err))
		}
	}

	for _, c := range components {
		for _, p := range fitting.BaseOf(c).Ports {
			if p.Flow == nil {
				p.SetFlowRate(0)
			}
		}
	}
	return errs, nil
}

func isLeaf(c fitting.Component, trunk *fitting.Terminal) bool {
	term, ok := c.(*fitting.Terminal)
	if !ok || term == trunk {
		return false
	}
	_, ok = term.Leaf()
	return ok
}
