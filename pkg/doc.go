// Package pkg provides the core libraries for Pipeflow steady-state fluid
// network solving.
//
// # Overview
//
// Pipeflow solves flows and pressures in a tree of pipe fittings fed by a
// single supply. The pkg directory is organized into four main areas:
//
//  1. Domain model - [geom], [hydraulics] and [fitting] describe the
//     network and the lookup tables behind it
//  2. Calculators - [flowcalc], [pressure] and [converge] perform one
//     calculation pass each
//  3. Orchestration - [pipeline] repeats passes until convergence and
//     renders diagrams through [render/nodelink]
//  4. Infrastructure - [config], [netio], [cache], [store] and
//     [observability]
//
// # Architecture
//
// The typical data flow of a solve:
//
//	network.yaml
//	     ↓
//	[netio] package (decode and build the fitting tree)
//	     ↓
//	[flowcalc] package (distribute outlet demands)
//	     ↓
//	[pressure] package (friction losses and static pressures)
//	     ↓
//	[converge] package (correct demands against K-factors, repeat)
//	     ↓
//	solved network, run history, SVG/PDF/PNG/DOT diagram
//
// # Quick Start
//
//	import (
//	    "github.com/matzehuels/pipeflow/pkg/cache"
//	    "github.com/matzehuels/pipeflow/pkg/config"
//	    "github.com/matzehuels/pipeflow/pkg/netio"
//	    "github.com/matzehuels/pipeflow/pkg/pipeline"
//	)
//
//	tree, data, _ := netio.ImportBytes("network.yaml")
//	runner := pipeline.NewRunner(nil, nil, nil)
//	res, _ := runner.Solve(ctx, tree, pipeline.Options{
//	    Config:      config.Default(),
//	    NetworkHash: cache.Hash(data),
//	})
//	fmt.Println(res.Converged, res.Iterations)
//
// # Packages
//
// [fitting] - The fitting tree: components, ports, connections, traversal
// and validation. Assemblies group components and flatten into their parts.
//
// [flowcalc] - Flow calculators. FullFlow feeds every outlet; RemoteArea
// feeds only the outlets inside a plan polygon.
//
// [pressure] - The empirical pressure calculator: Hazen-Williams friction,
// equivalent lengths of fittings, elevation head.
//
// [converge] - The K-factor strategy that corrects outlet demands from
// their static pressures with damping.
//
// [netio] - JSON and YAML network documents.
//
// [store] - SQLite run history.
//
// [geom]: github.com/matzehuels/pipeflow/pkg/geom
// [hydraulics]: github.com/matzehuels/pipeflow/pkg/hydraulics
// [fitting]: github.com/matzehuels/pipeflow/pkg/fitting
// [flowcalc]: github.com/matzehuels/pipeflow/pkg/flowcalc
// [pressure]: github.com/matzehuels/pipeflow/pkg/pressure
// [converge]: github.com/matzehuels/pipeflow/pkg/converge
// [pipeline]: github.com/matzehuels/pipeflow/pkg/pipeline
// [render/nodelink]: github.com/matzehuels/pipeflow/pkg/render/nodelink
// [config]: github.com/matzehuels/pipeflow/pkg/config
// [netio]: github.com/matzehuels/pipeflow/pkg/netio
// [cache]: github.com/matzehuels/pipeflow/pkg/cache
// [store]: github.com/matzehuels/pipeflow/pkg/store
// [observability]: github.com/matzehuels/pipeflow/pkg/observability
package pkg
