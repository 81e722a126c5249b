package netio

import (
	"fmt"

	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/geom"
)

// Component type names used in documents.
const (
	TypeSegment  = "segment"
	TypeElbow    = "elbow"
	TypeWye      = "wye"
	TypeCross    = "cross"
	TypeReducer  = "reducer"
	TypeCoupler  = "coupler"
	TypeManifold = "manifold"
	TypeTerminal = "terminal"
	TypeAssembly = "assembly"
)

// Document is the serialized form of a network.
type Document struct {
	Components []Component `json:"components" yaml:"components"`
}

// Component is one entry of a document.
type Component struct {
	ID          string      `json:"id" yaml:"id"`
	Type        string      `json:"type" yaml:"type"`
	Origin      *[3]float64 `json:"origin,omitempty" yaml:"origin,omitempty"`
	Ports       []Port      `json:"ports,omitempty" yaml:"ports,omitempty"`
	Upstream    *Ref        `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	Angle       float64     `json:"angle,omitempty" yaml:"angle,omitempty"`
	TrunkLength float64     `json:"trunk_length,omitempty" yaml:"trunk_length,omitempty"`
	Leaf        *Leaf       `json:"leaf,omitempty" yaml:"leaf,omitempty"`
	Trunk       *Trunk      `json:"trunk,omitempty" yaml:"trunk,omitempty"`
	Parts       []Component `json:"parts,omitempty" yaml:"parts,omitempty"`
}

// Port is a serialized port.
type Port struct {
	Diameter float64    `json:"diameter" yaml:"diameter"`
	Position [3]float64 `json:"position" yaml:"position,flow"`
	Flow     *float64   `json:"flow,omitempty" yaml:"flow,omitempty"`
	Pressure *float64   `json:"pressure,omitempty" yaml:"pressure,omitempty"`
}

// Ref names the port feeding a component.
type Ref struct {
	Component string `json:"component" yaml:"component"`
	Port      int    `json:"port" yaml:"port"`
}

// Leaf is the classification of an outlet terminal.
type Leaf struct {
	Flow    float64 `json:"flow" yaml:"flow"`
	KFactor float64 `json:"k_factor,omitempty" yaml:"k_factor,omitempty"`
}

// Trunk is the classification of the supply terminal.
type Trunk struct {
	FixedPressure *float64 `json:"fixed_pressure,omitempty" yaml:"fixed_pressure,omitempty"`
}

// Build creates a fitting tree from a document.
//
// Components are added first and connected afterwards, so upstream
// references may point forward in the list. Errors name the component that
// caused them.
func Build(doc *Document) (*fitting.Tree, error) {
	t := fitting.New()
	var links []link
	for _, cd := range doc.Components {
		c, err := buildComponent(cd, &links)
		if err != nil {
			return nil, err
		}
		if err := t.Add(c); err != nil {
			return nil, fmt.Errorf("component %s: %w", cd.ID, err)
		}
	}
	for _, l := range links {
		if err := t.Connect(l.down, l.ref.Component, l.ref.Port); err != nil {
			return nil, fmt.Errorf("component %s: %w", l.down, err)
		}
	}
	return t, nil
}

type link struct {
	down string
	ref  Ref
}

func buildComponent(cd Component, links *[]link) (fitting.Component, error) {
	if cd.Upstream != nil {
		*links = append(*links, link{down: cd.ID, ref: *cd.Upstream})
	}
	specs := make([]fitting.PortSpec, len(cd.Ports))
	for i, p := range cd.Ports {
		specs[i] = fitting.PortSpec{Diameter: p.Diameter, Position: vec(p.Position)}
	}
	origin := geom.Vec3{}
	switch {
	case cd.Origin != nil:
		origin = vec(*cd.Origin)
	case len(specs) > 0:
		origin = specs[0].Position
	}

	need := func(n int) error {
		if len(specs) != n {
			return errors.New(errors.ErrCodeInvalidFormat, "component %s: %s needs %d ports, has %d", cd.ID, cd.Type, n, len(specs))
		}
		return nil
	}

	switch cd.Type {
	case TypeSegment:
		if err := need(2); err != nil {
			return nil, err
		}
		s := fitting.NewSegment(cd.ID, specs[0].Diameter, specs[0].Position, specs[1].Position)
		s.Ports[1].Diameter = specs[1].Diameter
		s.Origin = origin
		return s, nil
	case TypeElbow:
		if err := need(2); err != nil {
			return nil, err
		}
		return &fitting.Elbow{Base: base(cd.ID, origin, specs), Angle: cd.Angle}, nil
	case TypeWye:
		if err := need(3); err != nil {
			return nil, err
		}
		return fitting.NewWye(cd.ID, origin, specs[0], specs[1], specs[2]), nil
	case TypeCross:
		if err := need(4); err != nil {
			return nil, err
		}
		return fitting.NewCross(cd.ID, origin, specs[0], specs[1], specs[2], specs[3]), nil
	case TypeReducer:
		if err := need(2); err != nil {
			return nil, err
		}
		return &fitting.Reducer{Base: base(cd.ID, origin, specs)}, nil
	case TypeCoupler:
		if err := need(2); err != nil {
			return nil, err
		}
		return &fitting.Coupler{Base: base(cd.ID, origin, specs)}, nil
	case TypeManifold:
		if len(specs) < 2 {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "component %s: manifold needs at least 2 ports", cd.ID)
		}
		return fitting.NewManifold(cd.ID, origin, cd.TrunkLength, specs[0], specs[1:]...), nil
	case TypeTerminal:
		if err := need(1); err != nil {
			return nil, err
		}
		term := &fitting.Terminal{Base: base(cd.ID, origin, specs)}
		switch {
		case cd.Leaf != nil && cd.Trunk != nil:
			return nil, errors.New(errors.ErrCodeInvalidFormat, "component %s: terminal cannot be both leaf and trunk", cd.ID)
		case cd.Leaf != nil:
			term.Node = &fitting.Leaf{Flow: cd.Leaf.Flow, KFactor: cd.Leaf.KFactor}
		case cd.Trunk != nil:
			term.Node = &fitting.Trunk{FixedPressure: cd.Trunk.FixedPressure}
		}
		return term, nil
	case TypeAssembly:
		if len(specs) != 0 {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "component %s: assemblies have no ports", cd.ID)
		}
		parts := make([]fitting.Component, 0, len(cd.Parts))
		for _, pd := range cd.Parts {
			p, err := buildComponent(pd, links)
			if err != nil {
				return nil, err
			}
			parts = append(parts, p)
		}
		a := fitting.NewAssembly(cd.ID, parts...)
		a.Origin = origin
		return a, nil
	case "":
		return nil, errors.New(errors.ErrCodeInvalidFormat, "component %s: missing type", cd.ID)
	default:
		return nil, errors.New(errors.ErrCodeInvalidFormat, "component %s: unknown type %q", cd.ID, cd.Type)
	}
}

func base(id string, origin geom.Vec3, specs []fitting.PortSpec) fitting.Base {
	ports := make([]*fitting.Port, len(specs))
	for i, s := range specs {
		ports[i] = &fitting.Port{Index: i, Diameter: s.Diameter, Position: s.Position}
	}
	return fitting.Base{ID: id, Origin: origin, Ports: ports}
}

// FromTree converts a tree into a document. Assembly parts are nested under
// their assembly. Port flows and pressures are included when known.
func FromTree(t *fitting.Tree) (*Document, error) {
	doc := &Document{}
	for _, c := range t.Components() {
		if _, inAssembly := t.AssemblyOf(c.ComponentID()); inAssembly {
			continue
		}
		cd, err := fromComponent(t, c)
		if err != nil {
			return nil, err
		}
		doc.Components = append(doc.Components, cd)
	}
	return doc, nil
}

func fromComponent(t *fitting.Tree, c fitting.Component) (Component, error) {
	b := fitting.BaseOf(c)
	origin := arr(b.Origin)
	cd := Component{ID: b.ID, Origin: &origin}
	if ref, ok := t.Upstream(b.ID); ok {
		cd.Upstream = &Ref{Component: ref.Component, Port: ref.Port}
	}
	for _, p := range b.Ports {
		pd := Port{Diameter: p.Diameter, Position: arr(p.Position)}
		if p.Flow != nil {
			q := p.Flow.Rate
			pd.Flow = &q
		}
		if v, ok := p.StaticPressure(); ok {
			pd.Pressure = &v
		}
		cd.Ports = append(cd.Ports, pd)
	}

	switch c := c.(type) {
	case *fitting.StraightSegment:
		cd.Type = TypeSegment
	case *fitting.Elbow:
		cd.Type = TypeElbow
		cd.Angle = c.Angle
	case *fitting.Wye:
		cd.Type = TypeWye
	case *fitting.Cross:
		cd.Type = TypeCross
	case *fitting.Reducer:
		cd.Type = TypeReducer
	case *fitting.Coupler:
		cd.Type = TypeCoupler
	case *fitting.Manifold:
		cd.Type = TypeManifold
		cd.TrunkLength = c.TrunkLength
	case *fitting.Terminal:
		cd.Type = TypeTerminal
		switch n := c.Node.(type) {
		case *fitting.Leaf:
			cd.Leaf = &Leaf{Flow: n.Flow, KFactor: n.KFactor}
		case *fitting.Trunk:
			cd.Trunk = &Trunk{FixedPressure: n.FixedPressure}
		}
	case *fitting.Assembly:
		cd.Type = TypeAssembly
		for _, part := range c.Parts {
			pd, err := fromComponent(t, part)
			if err != nil {
				return Component{}, err
			}
			cd.Parts = append(cd.Parts, pd)
		}
	default:
		return Component{}, errors.New(errors.ErrCodeUnsupportedComponent, "component %s: cannot serialize %T", b.ID, c)
	}
	return cd, nil
}

func vec(a [3]float64) geom.Vec3 { return geom.Vec3{X: a[0], Y: a[1], Z: a[2]} }

func arr(v geom.Vec3) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }
