// Package render converts rendered network diagrams between output formats.
//
// The [ToPDF] and [ToPNG] functions convert SVG produced by the
// [nodelink] renderer using the external rsvg-convert tool (from librsvg).
//
//	svg, err := nodelink.RenderSVG(ctx, dot)
//	pdf, err := render.ToPDF(svg)
//	png, err := render.ToPNG(svg, 2.0)  // 2x scale
//
// [nodelink]: github.com/matzehuels/pipeflow/pkg/render/nodelink
package render
