// Package fitting provides the rooted tree of typed pipe fittings that the
// flow, pressure and convergence calculators operate on.
//
// # Overview
//
// A piping network is modeled as a tree. Its single root is the trunk
// terminal (the supply) and its leaves are leaf terminals (outlets with a
// flow demand). Between them sit straight segments, elbows, wyes, crosses,
// reducers, couplers and manifolds. Components can be grouped into an
// [Assembly], which is expanded into its parts by every traversal.
//
// Each component owns an ordered list of [Port] values. Port 0 is the
// trunk-side port of every component except the trunk terminal, whose only
// port is its outlet. The remaining ports are branch-side ports.
//
// # Basic Usage
//
// Create a tree with [New], add components with [Tree.Add], and connect each
// component's trunk-side port to a branch port of its upstream neighbor with
// [Tree.Connect]:
//
//	t := fitting.New()
//	_ = t.Add(fitting.NewTrunk("supply", 0.05, geom.Vec3{}))
//	_ = t.Add(fitting.NewSegment("s1", 0.05, geom.Vec3{}, geom.Vec3{X: 4}))
//	_ = t.Add(fitting.NewLeaf("head", 0.025, geom.Vec3{X: 4}, 0.001, 0))
//	_ = t.Connect("s1", "supply", 0)
//	_ = t.Connect("head", "s1", 1)
//
// # Relations
//
// The upstream relation is stored as a [PortRef] (component ID and port
// index) in the tree, never as a pointer on the component. This keeps the
// tree the single owner of every component and lets documents be written and
// read back without rebuilding pointer graphs. Use [Tree.TrunkSideComponent]
// and [Tree.TrunkSidePort] to follow it.
//
// # Flow and Pressure
//
// [Tree.PropagateFlow] pushes a leaf's flow up to the trunk, summing it into
// every port on the way. [Tree.AssignPressures] walks down from the trunk and
// sets every port's static pressure to the trunk pressure minus the losses
// reported by a [LossRecord] for each component on the path.
//
// # Errors
//
// Misuse (nil components, duplicate IDs, unknown references) is reported
// through returned errors carrying a code from pkg/errors. Network
// conditions found during a calculation pass are reported as ordered
// [FittingError] lists so that one bad fitting does not hide the others.
//
// # Concurrency
//
// A Tree is not safe for concurrent use. Run independent analyses on
// independent trees.
package fitting
