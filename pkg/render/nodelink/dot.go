package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/render"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed adds port flow and pressure to node labels and flow rates
	// to edge labels. When false, only component IDs and kinds are shown.
	Detailed bool

	// Highlight lists component IDs drawn with a warning fill, typically
	// the components a calculation pass reported errors for.
	Highlight map[string]bool
}

// ToDOT converts a fitting tree to Graphviz DOT format.
// The resulting DOT string can be rendered using [RenderSVG], [RenderPDF], or [RenderPNG].
//
// Edges run from the feeding component to the component it feeds. Parts of
// an assembly are grouped in a cluster labelled with the assembly ID.
func ToDOT(t *fitting.Tree, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=11];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	clusters := make(map[string][]fitting.Component)
	var loose []fitting.Component
	for _, c := range t.Flatten() {
		if a, ok := t.AssemblyOf(c.ComponentID()); ok {
			clusters[a] = append(clusters[a], c)
			continue
		}
		loose = append(loose, c)
	}

	for _, c := range loose {
		writeNode(&buf, "  ", c, opts)
	}
	for _, a := range fitting.All[*fitting.Assembly](t) {
		parts := clusters[a.ID]
		if len(parts) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "  subgraph %q {\n", "cluster_"+a.ID)
		fmt.Fprintf(&buf, "    label=%q;\n", a.ID)
		buf.WriteString("    style=dashed;\n")
		for _, c := range parts {
			writeNode(&buf, "    ", c, opts)
		}
		buf.WriteString("  }\n")
	}

	buf.WriteString("\n")
	for _, c := range t.Flatten() {
		for _, l := range t.Children(c.ComponentID()) {
			attrs := fmtEdgeAttrs(fitting.BaseOf(c).Port(l.Port), l.Port, opts.Detailed)
			fmt.Fprintf(&buf, "  %q -> %q [%s];\n", c.ComponentID(), l.Component, strings.Join(attrs, ", "))
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func writeNode(buf *bytes.Buffer, indent string, c fitting.Component, opts Options) {
	label := fmtLabel(c, opts.Detailed)
	attrs := fmtAttrs(c, label, opts.Highlight[c.ComponentID()])
	fmt.Fprintf(buf, "%s%q [%s];\n", indent, c.ComponentID(), strings.Join(attrs, ", "))
}

// kind returns the short name shown under the component ID.
func kind(c fitting.Component) string {
	switch c := c.(type) {
	case *fitting.StraightSegment:
		return fmt.Sprintf("pipe %.3g m", c.Length)
	case *fitting.Elbow:
		return fmt.Sprintf("elbow %g°", c.Angle)
	case *fitting.Wye:
		return "wye"
	case *fitting.Cross:
		return "cross"
	case *fitting.Reducer:
		return "reducer"
	case *fitting.Coupler:
		return "coupler"
	case *fitting.Manifold:
		return fmt.Sprintf("manifold ×%d", len(c.Ports)-1)
	case *fitting.Terminal:
		if _, ok := c.TrunkNode(); ok {
			return "supply"
		}
		return "outlet"
	default:
		return fmt.Sprintf("%T", c)
	}
}

func fmtLabel(c fitting.Component, detailed bool) string {
	lines := []string{c.ComponentID(), kind(c)}
	if !detailed {
		return strings.Join(lines, "\n")
	}
	if term, ok := c.(*fitting.Terminal); ok {
		if leaf, ok := term.Leaf(); ok {
			lines = append(lines, fmt.Sprintf("demand: %.4g m³/s", leaf.Flow))
		}
	}
	for _, p := range fitting.BaseOf(c).Ports {
		if v, ok := p.StaticPressure(); ok {
			lines = append(lines, fmt.Sprintf("p%d: %.4g kPa", p.Index, v/1000))
		}
	}
	return strings.Join(lines, "\n")
}

func fmtAttrs(c fitting.Component, label string, highlight bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if term, ok := c.(*fitting.Terminal); ok {
		if _, isTrunk := term.TrunkNode(); isTrunk {
			attrs = append(attrs, "shape=doubleoctagon")
		} else {
			attrs = append(attrs, "shape=ellipse")
		}
	}
	if highlight {
		attrs = append(attrs, "fillcolor=salmon")
	}
	return attrs
}

func fmtEdgeAttrs(p *fitting.Port, port int, detailed bool) []string {
	label := fmt.Sprintf("%d", port)
	if detailed && p != nil && p.Flow != nil {
		label = fmt.Sprintf("%d: %.4g m³/s", port, p.Flow.Rate)
	}
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if p != nil && p.Flow != nil && p.Flow.Rate == 0 {
		attrs = append(attrs, "style=dashed", "color=grey")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
// Returns the SVG bytes ready for display or further conversion with [render.ToPDF] or [render.ToPNG].
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	newSvg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAll(svg, []byte(newSvg))
}

// RenderPDF renders a DOT graph as PDF via SVG conversion.
//
// Requires librsvg: brew install librsvg (macOS), apt install librsvg2-bin (Linux).
func RenderPDF(ctx context.Context, dot string) ([]byte, error) {
	svg, err := RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	return render.ToPDF(svg)
}

// RenderPNG renders a DOT graph as PNG via SVG conversion at the given scale.
//
// Requires librsvg: brew install librsvg (macOS), apt install librsvg2-bin (Linux).
func RenderPNG(ctx context.Context, dot string, scale float64) ([]byte, error) {
	svg, err := RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	return render.ToPNG(svg, scale)
}
