package fitting

import (
	"math"

	"github.com/matzehuels/pipeflow/pkg/errors"
)

// LossRecord reports the static pressure loss of one component between its
// inlet (the port feeding its trunk side) and each of its ports.
type LossRecord interface {
	// ComponentID returns the component the record was computed for.
	ComponentID() string
	// PortLoss returns the loss from the inlet to port, and false if the
	// record does not cover that port.
	PortLoss(port int) (float64, bool)
}

// PropagateFlow assigns q to the port of terminal term and accumulates it
// upstream: every component on the path to the trunk adds q to the branch
// port the flow enters through and to its trunk-side port.
//
// PropagateFlow does not reset any port; callers zero flows first.
// Returns an error if term is nil or not part of the tree.
func (t *Tree) PropagateFlow(term *Terminal, q float64) error {
	if term == nil {
		return errors.New(errors.ErrCodeInvalidInput, "terminal must not be nil")
	}
	if c, ok := t.components[term.ID]; !ok || c != Component(term) {
		return errors.New(errors.ErrCodeNotFound, "terminal %q is not part of the tree", term.ID)
	}

	term.Ports[0].SetFlowRate(q)
	for id, steps := term.ID, 0; steps <= len(t.order); steps++ {
		ref, fed := t.upstream[id]
		if !fed {
			return nil
		}
		up := t.components[ref.Component].base()
		up.Ports[ref.Port].AddFlowRate(q)
		if ref.Port != 0 {
			up.Ports[0].AddFlowRate(q)
		}
		id = ref.Component
	}
	return errors.New(errors.ErrCodeInternal, "upstream walk from %q did not end", term.ID)
}

// ResetFlows clears the flow state of every port.
func (t *Tree) ResetFlows() {
	for _, c := range t.Flatten() {
		for _, p := range c.base().Ports {
			p.Flow = nil
		}
	}
}

// AssignPressures sets the static pressure of every port reachable from the
// trunk. The trunk outlet keeps its assigned pressure (0 if none); a
// component's ports are set to the pressure of the port feeding it minus the
// loss its record reports for each port.
//
// A component without a record, or whose record does not cover one of its
// ports, yields a FittingError and the pressures of its subtree are cleared,
// so no port keeps a value from an earlier pass. A trunk problem yields a
// single FittingError and nothing is assigned.
func (t *Tree) AssignPressures(records []LossRecord) []FittingError {
	trunk, err := t.Trunk()
	if err != nil {
		return []FittingError{ErrorFrom(nil, err)}
	}
	byID := make(map[string]LossRecord, len(records))
	for _, r := range records {
		if r != nil {
			byID[r.ComponentID()] = r
		}
	}

	var errs []FittingError
	outlet := trunk.Ports[0]
	if _, ok := outlet.StaticPressure(); !ok {
		outlet.SetStaticPressure(0)
	}

	_ = t.Walk(func(c Component, feed *Port) bool {
		if feed == nil {
			return true // trunk
		}
		inlet, _ := feed.StaticPressure()
		rec, ok := byID[c.ComponentID()]
		if !ok {
			errs = append(errs, NewFittingError(c, errors.ErrCodeUnsupportedComponent, "no pressure record for %T", c))
			t.clearPressures(c.ComponentID())
			return false
		}
		ports := c.base().Ports
		pressures := make([]float64, len(ports))
		for i := range ports {
			loss, ok := rec.PortLoss(i)
			if !ok || math.IsNaN(loss) {
				errs = append(errs, NewFittingError(c, errors.ErrCodeUnknownBranch, "pressure record does not resolve port %d", i))
				t.clearPressures(c.ComponentID())
				return false
			}
			pressures[i] = inlet - loss
		}
		for i, p := range ports {
			p.SetStaticPressure(pressures[i])
		}
		return true
	})
	return errs
}

// clearPressures clears the port pressures of id and everything below it.
func (t *Tree) clearPressures(id string) {
	stack := []string{id}
	for len(stack) > 0 {
		id, stack = stack[len(stack)-1], stack[:len(stack)-1]
		for _, p := range t.components[id].base().Ports {
			p.ClearStaticPressure()
		}
		for _, l := range t.downstream[id] {
			stack = append(stack, l.Component)
		}
	}
}
