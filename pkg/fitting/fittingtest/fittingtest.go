// Package fittingtest builds small fitting trees for tests.
package fittingtest

import (
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/geom"
)

// Component IDs of the network returned by [Sample].
const (
	Supply  = "supply"
	Main    = "main"
	Wye     = "wye"
	RunA    = "run-a"
	Elbow   = "elbow"
	RunA2   = "run-a2"
	Head1   = "head-1"
	BranchB = "branch-b"
	Head2   = "head-2"
)

// Demands of the leaves of [Sample], in m³/s.
const (
	Head1Demand = 0.002
	Head2Demand = 0.001
)

// Sample returns a two-outlet network:
//
//	supply ─ main ─ wye ─┬─ run-a ─ elbow ─ run-a2 ─ head-1   (20, 5)
//	                     └─ branch-b ─ head-2                  (10, 6)
//
// The wye sits at (10, 0, 0); its main outlet continues along +X and its
// side branch leaves along +Y. Leaves carry K-factor 0.
func Sample() *fitting.Tree {
	t := fitting.New()
	must(t.Add(fitting.NewTrunk(Supply, 0.1, geom.Vec3{})))
	must(t.Add(fitting.NewSegment(Main, 0.1, geom.Vec3{}, geom.Vec3{X: 9.9})))
	must(t.Add(fitting.NewWye(Wye, geom.Vec3{X: 10},
		fitting.PortSpec{Diameter: 0.1, Position: geom.Vec3{X: 9.9}},
		fitting.PortSpec{Diameter: 0.1, Position: geom.Vec3{X: 10.2}},
		fitting.PortSpec{Diameter: 0.05, Position: geom.Vec3{X: 10, Y: 0.15}},
	)))
	must(t.Add(fitting.NewSegment(RunA, 0.1, geom.Vec3{X: 10.2}, geom.Vec3{X: 20})))
	must(t.Add(fitting.NewElbow(Elbow, 0.1, 90, geom.Vec3{X: 20})))
	must(t.Add(fitting.NewSegment(RunA2, 0.1, geom.Vec3{X: 20}, geom.Vec3{X: 20, Y: 5})))
	must(t.Add(fitting.NewLeaf(Head1, 0.025, geom.Vec3{X: 20, Y: 5}, Head1Demand, 0)))
	must(t.Add(fitting.NewSegment(BranchB, 0.05, geom.Vec3{X: 10, Y: 0.15}, geom.Vec3{X: 10, Y: 6})))
	must(t.Add(fitting.NewLeaf(Head2, 0.025, geom.Vec3{X: 10, Y: 6}, Head2Demand, 0)))

	must(t.Connect(Main, Supply, 0))
	must(t.Connect(Wye, Main, 1))
	must(t.Connect(RunA, Wye, fitting.WyeMain))
	must(t.Connect(Elbow, RunA, 1))
	must(t.Connect(RunA2, Elbow, 1))
	must(t.Connect(Head1, RunA2, 1))
	must(t.Connect(BranchB, Wye, fitting.WyeBranch))
	must(t.Connect(Head2, BranchB, 1))
	return t
}

// WithStrayTerminal returns [Sample] plus an unconnected trunk terminal,
// giving the tree two terminals without an upstream port.
func WithStrayTerminal() *fitting.Tree {
	t := Sample()
	must(t.Add(fitting.NewTrunk("stray", 0.05, geom.Vec3{X: -5})))
	return t
}

// Line returns supply ─ pipe ─ head: one segment of diameter d and length
// length feeding a single leaf with demand q and K-factor k.
func Line(d, length, q, k float64) *fitting.Tree {
	t := fitting.New()
	must(t.Add(fitting.NewTrunk(Supply, d, geom.Vec3{})))
	must(t.Add(fitting.NewSegment("pipe", d, geom.Vec3{}, geom.Vec3{X: length})))
	must(t.Add(fitting.NewLeaf(Head1, d, geom.Vec3{X: length}, q, k)))
	must(t.Connect("pipe", Supply, 0))
	must(t.Connect(Head1, "pipe", 1))
	return t
}

// Leaf returns the leaf terminal id of t, panicking if it is missing.
func Leaf(t *fitting.Tree, id string) *fitting.Terminal {
	c, ok := t.Component(id)
	if !ok {
		panic("fittingtest: no component " + id)
	}
	return c.(*fitting.Terminal)
}

// Port returns port i of component id, panicking if it is missing.
func Port(t *fitting.Tree, id string, i int) *fitting.Port {
	c, ok := t.Component(id)
	if !ok {
		panic("fittingtest: no component " + id)
	}
	p := fitting.BaseOf(c).Port(i)
	if p == nil {
		panic("fittingtest: component " + id + " has no such port")
	}
	return p
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
