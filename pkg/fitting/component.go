package fitting

import "github.com/matzehuels/pipeflow/pkg/geom"

// Component is one fitting in the tree.
//
// The set of components is closed: every variant embeds [Base], and the
// calculators switch over the concrete types defined in this package. A type
// from another package that embeds Base satisfies the interface but is
// reported as unsupported by every calculator.
type Component interface {
	// ComponentID returns the unique identifier of the component.
	ComponentID() string
	base() *Base
}

// Base holds the state shared by every component.
type Base struct {
	ID     string
	Origin geom.Vec3 // transform origin of the fitting
	Ports  []*Port
}

// ComponentID returns b.ID.
func (b *Base) ComponentID() string { return b.ID }

func (b *Base) base() *Base { return b }

// BaseOf returns the shared state of any component.
func BaseOf(c Component) *Base { return c.base() }

// Port returns port i, or nil if the component has no such port.
func (b *Base) Port(i int) *Port {
	if i < 0 || i >= len(b.Ports) {
		return nil
	}
	return b.Ports[i]
}

// TrunkPort returns the trunk-side port (port 0), or nil for portless components.
func (b *Base) TrunkPort() *Port { return b.Port(0) }

// Port indices of a [Wye].
const (
	WyeTrunk = iota
	WyeMain
	WyeBranch
)

// Port indices of a [Cross].
const (
	CrossTrunk = iota
	CrossMain
	CrossLeft
	CrossRight
)

// StraightSegment is a run of straight pipe between port 0 and port 1.
type StraightSegment struct {
	Base
	Length float64 // m
}

// Diameter returns the segment's internal diameter.
func (s *StraightSegment) Diameter() float64 { return s.Ports[0].Diameter }

// Rise returns the elevation gained from the trunk side to the branch side.
func (s *StraightSegment) Rise() float64 { return s.Ports[1].Position.Z - s.Ports[0].Position.Z }

// Elbow turns the flow by Angle degrees.
type Elbow struct {
	Base
	Angle float64
}

// Wye splits the trunk into a main run and one side branch.
type Wye struct{ Base }

// Cross splits the trunk into a main run and two side branches.
type Cross struct{ Base }

// Reducer changes diameter between port 0 and port 1.
type Reducer struct{ Base }

// Coupler joins two pipes of the same size.
type Coupler struct{ Base }

// Manifold feeds any number of branch ports from a trunk of length TrunkLength.
type Manifold struct {
	Base
	TrunkLength float64 // m
}

// Terminal is an end of the tree: the trunk (supply) or a leaf (outlet).
type Terminal struct {
	Base
	Node FlowNode
}

// Leaf returns the leaf node of the terminal, if it has one.
func (t *Terminal) Leaf() (*Leaf, bool) {
	l, ok := t.Node.(*Leaf)
	return l, ok
}

// TrunkNode returns the trunk node of the terminal, if it has one.
func (t *Terminal) TrunkNode() (*Trunk, bool) {
	n, ok := t.Node.(*Trunk)
	return n, ok
}

// Assembly groups components that were placed together. It has no ports of
// its own; its parts are connected like any other component.
type Assembly struct {
	Base
	Parts []Component
}

// FlowNode classifies a terminal.
type FlowNode interface {
	isFlowNode()
}

// Leaf is an outlet with a flow demand. The convergence strategy mutates
// Flow between passes.
type Leaf struct {
	Flow    float64 // demand, m³/s
	KFactor float64 // discharge coefficient, m³/s per √Pa (0 if unknown)
}

// Trunk is the supply. FixedPressure, when set, overrides the calculator's
// configured trunk pressure.
type Trunk struct {
	FixedPressure *float64
}

func (*Leaf) isFlowNode()  {}
func (*Trunk) isFlowNode() {}

// =============================================================================
// Constructors
// =============================================================================

// NewSegment returns a straight segment of diameter d from one point to
// another. Its length is the distance between the points.
func NewSegment(id string, d float64, from, to geom.Vec3) *StraightSegment {
	return &StraightSegment{
		Base:   Base{ID: id, Origin: from, Ports: newPorts(PortSpec{d, from}, PortSpec{d, to})},
		Length: from.Dist(to),
	}
}

// NewElbow returns an elbow of diameter d turning by angle degrees at point at.
func NewElbow(id string, d, angle float64, at geom.Vec3) *Elbow {
	return &Elbow{
		Base:  Base{ID: id, Origin: at, Ports: newPorts(PortSpec{d, at}, PortSpec{d, at})},
		Angle: angle,
	}
}

// NewWye returns a wye with the given trunk, main and branch ports.
func NewWye(id string, origin geom.Vec3, trunk, main, branch PortSpec) *Wye {
	return &Wye{Base{ID: id, Origin: origin, Ports: newPorts(trunk, main, branch)}}
}

// NewCross returns a cross with the given trunk, main and two side ports.
func NewCross(id string, origin geom.Vec3, trunk, main, left, right PortSpec) *Cross {
	return &Cross{Base{ID: id, Origin: origin, Ports: newPorts(trunk, main, left, right)}}
}

// NewReducer returns a reducer from trunkD to branchD at point at.
func NewReducer(id string, trunkD, branchD float64, at geom.Vec3) *Reducer {
	return &Reducer{Base{ID: id, Origin: at, Ports: newPorts(PortSpec{trunkD, at}, PortSpec{branchD, at})}}
}

// NewCoupler returns a coupler of diameter d at point at.
func NewCoupler(id string, d float64, at geom.Vec3) *Coupler {
	return &Coupler{Base{ID: id, Origin: at, Ports: newPorts(PortSpec{d, at}, PortSpec{d, at})}}
}

// NewManifold returns a manifold with a trunk port and one or more branch ports.
func NewManifold(id string, origin geom.Vec3, trunkLength float64, trunk PortSpec, branches ...PortSpec) *Manifold {
	return &Manifold{
		Base:        Base{ID: id, Origin: origin, Ports: newPorts(append([]PortSpec{trunk}, branches...)...)},
		TrunkLength: trunkLength,
	}
}

// NewLeaf returns a leaf terminal with demand flow and discharge coefficient k.
func NewLeaf(id string, d float64, at geom.Vec3, flow, k float64) *Terminal {
	return &Terminal{
		Base: Base{ID: id, Origin: at, Ports: newPorts(PortSpec{d, at})},
		Node: &Leaf{Flow: flow, KFactor: k},
	}
}

// NewTrunk returns the trunk terminal of diameter d at point at.
func NewTrunk(id string, d float64, at geom.Vec3) *Terminal {
	return &Terminal{
		Base: Base{ID: id, Origin: at, Ports: newPorts(PortSpec{d, at})},
		Node: &Trunk{},
	}
}

// NewAssembly groups parts under id.
func NewAssembly(id string, parts ...Component) *Assembly {
	return &Assembly{Base: Base{ID: id}, Parts: parts}
}
