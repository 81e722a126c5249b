package fitting

import "github.com/matzehuels/pipeflow/pkg/geom"

// Flow is the hydraulic state of a port.
type Flow struct {
	Rate           float64 // volumetric flow, m³/s
	StaticPressure float64 // Pa, valid only when HasPressure is set
	HasPressure    bool
}

// Port is a connection point of a component.
// Flow is nil until a flow calculator assigns it.
type Port struct {
	Index    int
	Diameter float64   // internal diameter, m
	Position geom.Vec3 // connection point in model space
	Flow     *Flow
}

// PortSpec describes a port for the component constructors.
type PortSpec struct {
	Diameter float64
	Position geom.Vec3
}

// PortRef identifies a port by component ID and port index.
type PortRef struct {
	Component string
	Port      int
}

// FlowRate returns the assigned flow rate, or 0 if none is assigned.
func (p *Port) FlowRate() float64 {
	if p.Flow == nil {
		return 0
	}
	return p.Flow.Rate
}

// SetFlowRate assigns the flow rate, keeping any known pressure.
func (p *Port) SetFlowRate(q float64) {
	if p.Flow == nil {
		p.Flow = &Flow{}
	}
	p.Flow.Rate = q
}

// AddFlowRate accumulates q onto the assigned flow rate.
func (p *Port) AddFlowRate(q float64) {
	p.SetFlowRate(p.FlowRate() + q)
}

// StaticPressure returns the port pressure and whether one is known.
func (p *Port) StaticPressure() (float64, bool) {
	if p.Flow == nil || !p.Flow.HasPressure {
		return 0, false
	}
	return p.Flow.StaticPressure, true
}

// SetStaticPressure records a known static pressure on the port.
func (p *Port) SetStaticPressure(v float64) {
	if p.Flow == nil {
		p.Flow = &Flow{}
	}
	p.Flow.StaticPressure = v
	p.Flow.HasPressure = true
}

// ClearStaticPressure forgets the port pressure, keeping the flow rate.
func (p *Port) ClearStaticPressure() {
	if p.Flow != nil {
		p.Flow.StaticPressure = 0
		p.Flow.HasPressure = false
	}
}

func newPorts(specs ...PortSpec) []*Port {
	ports := make([]*Port, len(specs))
	for i, s := range specs {
		ports[i] = &Port{Index: i, Diameter: s.Diameter, Position: s.Position}
	}
	return ports
}
