package fitting

import (
	"slices"

	"github.com/matzehuels/pipeflow/pkg/errors"
)

// Link is a downstream connection: the component whose trunk-side port is
// attached to Port of the upstream component.
type Link struct {
	Port      int
	Component string
}

// Tree owns every component of a network and the relations between them.
//
// The zero value is not usable - use New to create a Tree.
// Tree is not safe for concurrent use without external synchronization.
type Tree struct {
	components map[string]Component
	order      []string           // insertion order, assemblies before their parts
	assembly   map[string]string  // part ID -> assembly ID
	upstream   map[string]PortRef // component ID -> port feeding its trunk side
	downstream map[string][]Link  // component ID -> links, sorted by port
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{
		components: make(map[string]Component),
		assembly:   make(map[string]string),
		upstream:   make(map[string]PortRef),
		downstream: make(map[string][]Link),
	}
}

// Add registers a component. Adding an [Assembly] also registers its parts.
//
// Returns an ErrCodeInvalidInput error if c is nil, its ID is invalid or
// already used, its port count does not match its kind, or a port diameter
// is not positive.
func (t *Tree) Add(c Component) error {
	if c == nil {
		return errors.New(errors.ErrCodeInvalidInput, "component must not be nil")
	}
	b := c.base()
	if err := errors.ValidateComponentID(b.ID); err != nil {
		return err
	}
	if _, exists := t.components[b.ID]; exists {
		return errors.New(errors.ErrCodeInvalidInput, "duplicate component ID %q", b.ID)
	}
	if err := checkPorts(c); err != nil {
		return err
	}
	for i, p := range b.Ports {
		if p == nil {
			return errors.New(errors.ErrCodeInvalidInput, "%s: port %d is nil", b.ID, i)
		}
		if err := errors.ValidatePositive(b.ID+" port diameter", p.Diameter); err != nil {
			return err
		}
		p.Index = i
	}

	t.components[b.ID] = c
	t.order = append(t.order, b.ID)

	if a, ok := c.(*Assembly); ok {
		for _, part := range a.Parts {
			if _, nested := part.(*Assembly); nested {
				return errors.New(errors.ErrCodeInvalidInput, "%s: assemblies cannot be nested", a.ID)
			}
			if err := t.Add(part); err != nil {
				return err
			}
			t.assembly[part.ComponentID()] = a.ID
		}
	}
	return nil
}

func checkPorts(c Component) error {
	want := -1
	switch c.(type) {
	case *StraightSegment, *Elbow, *Reducer, *Coupler:
		want = 2
	case *Wye:
		want = 3
	case *Cross:
		want = 4
	case *Terminal:
		want = 1
	case *Assembly:
		want = 0
	case *Manifold:
		if n := len(c.base().Ports); n < 2 {
			return errors.New(errors.ErrCodeInvalidInput, "%s: manifold needs a trunk and at least one branch port, has %d", c.ComponentID(), n)
		}
		return nil
	default:
		return nil
	}
	if n := len(c.base().Ports); n != want {
		return errors.New(errors.ErrCodeInvalidInput, "%s: %T needs %d ports, has %d", c.ComponentID(), c, want, n)
	}
	return nil
}

// Connect attaches the trunk-side port of component down to port upPort of
// component up.
//
// Port 0 of a non-terminal component is its own trunk side and cannot feed
// another component. A terminal can feed only through port 0, which makes it
// the trunk. Connect rejects unknown IDs, assemblies, occupied ports, a
// component that already has an upstream, and connections that would close
// a loop.
func (t *Tree) Connect(down, up string, upPort int) error {
	dc, ok := t.components[down]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "unknown downstream component %q", down)
	}
	uc, ok := t.components[up]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "unknown upstream component %q", up)
	}
	if _, isAsm := dc.(*Assembly); isAsm {
		return errors.New(errors.ErrCodeInvalidInput, "assembly %q has no ports to connect", down)
	}
	if _, isAsm := uc.(*Assembly); isAsm {
		return errors.New(errors.ErrCodeInvalidInput, "assembly %q has no ports to connect", up)
	}
	if uc.base().Port(upPort) == nil {
		return errors.New(errors.ErrCodeInvalidInput, "%s has no port %d", up, upPort)
	}
	if _, isTerm := uc.(*Terminal); isTerm {
		if _, fed := t.upstream[up]; fed {
			return errors.New(errors.ErrCodeInvalidInput, "terminal %q is fed from upstream and cannot feed %q", up, down)
		}
	} else if upPort == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "port 0 of %q is its trunk side and cannot feed %q", up, down)
	}
	if existing, fed := t.upstream[down]; fed {
		return errors.New(errors.ErrCodeInvalidInput, "%q is already fed from %s port %d", down, existing.Component, existing.Port)
	}
	for _, l := range t.downstream[up] {
		if l.Port == upPort {
			return errors.New(errors.ErrCodeInvalidInput, "%s port %d already feeds %q", up, upPort, l.Component)
		}
	}
	for id := up; id != ""; {
		if id == down {
			return errors.New(errors.ErrCodeInvalidInput, "connecting %q under %q would close a loop", down, up)
		}
		ref, fed := t.upstream[id]
		if !fed {
			break
		}
		id = ref.Component
	}

	t.upstream[down] = PortRef{Component: up, Port: upPort}
	links := append(t.downstream[up], Link{Port: upPort, Component: down})
	slices.SortFunc(links, func(a, b Link) int { return a.Port - b.Port })
	t.downstream[up] = links
	return nil
}

// Component returns the component with the given ID.
func (t *Tree) Component(id string) (Component, bool) {
	c, ok := t.components[id]
	return c, ok
}

// Len returns the number of registered components, assemblies included.
func (t *Tree) Len() int { return len(t.order) }

// Components returns every component in insertion order. Assemblies are
// followed by their parts.
func (t *Tree) Components() []Component {
	out := make([]Component, len(t.order))
	for i, id := range t.order {
		out[i] = t.components[id]
	}
	return out
}

// Flatten returns every component except assemblies, in insertion order.
// These are the components that carry ports and participate in flow.
func (t *Tree) Flatten() []Component {
	out := make([]Component, 0, len(t.order))
	for _, id := range t.order {
		c := t.components[id]
		if _, ok := c.(*Assembly); ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

// All returns every component of type T in insertion order.
//
//	wyes := fitting.All[*fitting.Wye](tree)
func All[T Component](t *Tree) []T {
	var out []T
	for _, id := range t.order {
		if c, ok := t.components[id].(T); ok {
			out = append(out, c)
		}
	}
	return out
}

// AssemblyOf returns the ID of the assembly containing component id.
func (t *Tree) AssemblyOf(id string) (string, bool) {
	a, ok := t.assembly[id]
	return a, ok
}

// Terminals returns every terminal in insertion order.
func (t *Tree) Terminals() []*Terminal { return All[*Terminal](t) }

// Trunk returns the single terminal that has no upstream port.
//
// Returns an ErrCodeMultipleTrunks error if more than one terminal has no
// upstream, or ErrCodeNoTrunk if none does.
func (t *Tree) Trunk() (*Terminal, error) {
	var trunk *Terminal
	var extra []string
	for _, term := range t.Terminals() {
		if _, fed := t.upstream[term.ID]; fed {
			continue
		}
		if trunk == nil {
			trunk = term
			continue
		}
		extra = append(extra, term.ID)
	}
	if trunk == nil {
		return nil, errors.New(errors.ErrCodeNoTrunk, "no terminal without an upstream port")
	}
	if len(extra) > 0 {
		return nil, errors.New(errors.ErrCodeMultipleTrunks,
			"multiple terminals without an upstream port: %s and %v", trunk.ID, extra)
	}
	return trunk, nil
}

// Upstream returns the port feeding the trunk side of component id.
func (t *Tree) Upstream(id string) (PortRef, bool) {
	ref, ok := t.upstream[id]
	return ref, ok
}

// TrunkSideComponent returns the upstream neighbor of component id.
func (t *Tree) TrunkSideComponent(id string) (Component, bool) {
	ref, ok := t.upstream[id]
	if !ok {
		return nil, false
	}
	return t.components[ref.Component], true
}

// TrunkSidePort returns the upstream port that feeds component id.
func (t *Tree) TrunkSidePort(id string) (*Port, bool) {
	ref, ok := t.upstream[id]
	if !ok {
		return nil, false
	}
	return t.components[ref.Component].base().Port(ref.Port), true
}

// Children returns the downstream links of component id, sorted by port.
// The returned slice should not be modified.
func (t *Tree) Children(id string) []Link { return t.downstream[id] }

// Walk visits every component reachable from the trunk, parents before
// children, in breadth-first order. It stops early if fn returns false for
// a component, skipping that component's subtree.
func (t *Tree) Walk(fn func(c Component, feed *Port) bool) error {
	trunk, err := t.Trunk()
	if err != nil {
		return err
	}
	if !fn(trunk, nil) {
		return nil
	}
	queue := slices.Clone(t.downstream[trunk.ID])
	parent := make(map[string]PortRef, len(t.order))
	for _, l := range queue {
		parent[l.Component] = PortRef{trunk.ID, l.Port}
	}
	for len(queue) > 0 {
		l := queue[0]
		queue = queue[1:]
		c := t.components[l.Component]
		ref := parent[l.Component]
		feed := t.components[ref.Component].base().Port(ref.Port)
		if !fn(c, feed) {
			continue
		}
		for _, child := range t.downstream[l.Component] {
			parent[child.Component] = PortRef{l.Component, child.Port}
			queue = append(queue, child)
		}
	}
	return nil
}

// Validate reports conditions that make a tree unsolvable or partly
// unsolvable: trunk problems, components not reachable from the trunk, and
// fed terminals that are not leaves.
func (t *Tree) Validate() []FittingError {
	var errs []FittingError
	trunk, err := t.Trunk()
	if err != nil {
		return []FittingError{ErrorFrom(nil, err)}
	}
	if _, ok := trunk.TrunkNode(); !ok {
		errs = append(errs, NewFittingError(trunk, errors.ErrCodeNoTrunk, "terminal without upstream is not classified as trunk"))
	}

	reached := make(map[string]bool, len(t.order))
	_ = t.Walk(func(c Component, _ *Port) bool {
		reached[c.ComponentID()] = true
		return true
	})
	for _, c := range t.Flatten() {
		if !reached[c.ComponentID()] {
			errs = append(errs, NewFittingError(c, errors.ErrCodeInvalidInput, "not connected to the trunk"))
			continue
		}
		if term, ok := c.(*Terminal); ok && term != trunk {
			if _, leaf := term.Leaf(); !leaf {
				errs = append(errs, NewFittingError(c, errors.ErrCodeMissingLeaf, "fed terminal has no leaf classification"))
			}
		}
	}
	return errs
}
