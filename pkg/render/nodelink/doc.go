// Package nodelink renders fitting networks as node-link diagrams.
//
// # Overview
//
// Each component becomes a node and each port connection an arrow from the
// feeding component to the component it feeds. The supply is drawn as a
// double octagon and outlets as ellipses. After a solve, the detailed mode
// labels nodes with port pressures and edges with flow rates; ports that
// carry no flow are drawn dashed.
//
// # Usage
//
//	dot := nodelink.ToDOT(tree, nodelink.Options{Detailed: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// For PDF or PNG output:
//
//	pdf, err := nodelink.RenderPDF(ctx, dot)
//	png, err := nodelink.RenderPNG(ctx, dot, 2.0)  // 2x scale
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering. PDF and PNG conversion requires librsvg (rsvg-convert).
package nodelink
