// Package pipeline runs the outer solve loop over a fitting tree.
//
// One calculation pass assigns flows, computes pressures and lets the
// leaf-flow strategy correct outlet demands. The calculators perform exactly
// one pass per call; this package repeats passes until the strategy reports
// convergence or an iteration cap is reached, and caches the result.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	tree, data, err := netio.ImportBytes("network.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := runner.Solve(ctx, tree, pipeline.Options{
//	    Config:      cfg,
//	    NetworkHash: cache.Hash(data),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Converged, result.Iterations)
//
// Render a diagram of the (solved) tree:
//
//	svg, err := runner.Render(ctx, tree, pipeline.RenderOptions{Format: pipeline.FormatSVG})
package pipeline

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pipeflow/pkg/cache"
	"github.com/matzehuels/pipeflow/pkg/config"
	"github.com/matzehuels/pipeflow/pkg/converge"
	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/flowcalc"
	"github.com/matzehuels/pipeflow/pkg/geom"
	"github.com/matzehuels/pipeflow/pkg/pressure"
)

// Format constants for rendered diagrams.
const (
	FormatSVG = "svg"
	FormatPNG = "png"
	FormatPDF = "pdf"
	FormatDOT = "dot"
)

// ValidFormats is the set of supported diagram formats.
var ValidFormats = map[string]bool{
	FormatSVG: true,
	FormatPNG: true,
	FormatPDF: true,
	FormatDOT: true,
}

// ValidateFormat returns an error if format is not a supported diagram format.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidInput, "invalid format: %s (must be svg, png, pdf, or dot)", format)
	}
	return nil
}

// =============================================================================
// Options
// =============================================================================

// Options configures a solve.
type Options struct {
	// Config holds the calculator settings. Nil means config.Default().
	Config *config.Config

	// MaxIterations overrides Config.Convergence.MaxIterations when positive.
	MaxIterations int

	// NetworkHash is the content hash of the network document. Results are
	// cached only when it is set.
	NetworkHash string

	// Refresh skips the cache lookup but still stores the new result.
	Refresh bool

	Logger *log.Logger
}

// ValidateAndSetDefaults fills in the default configuration and validates it.
func (o *Options) ValidateAndSetDefaults() error {
	if o.Config == nil {
		o.Config = config.Default()
	}
	if o.MaxIterations < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "max iterations must not be negative, got %d", o.MaxIterations)
	}
	if o.MaxIterations > 0 {
		cfg := *o.Config
		cfg.Convergence.MaxIterations = o.MaxIterations
		o.Config = &cfg
	}
	return o.Config.Validate()
}

// SolveKeyOpts returns the cache key options for these settings.
func (o *Options) SolveKeyOpts() cache.SolveKeyOpts {
	c := o.Config
	return cache.SolveKeyOpts{
		FlowMode:      c.Flow.Mode,
		Area:          c.Flow.Area,
		CFactor:       c.Pressure.CFactor,
		TrunkPressure: c.Pressure.TrunkStaticPressure,
		FailFast:      c.Pressure.FailFast,
		Elevation:     c.Pressure.IncludeElevation,
		Couplers:      c.Pressure.Couplers,
		Tolerance:     c.Convergence.Tolerance,
		Damping:       c.Convergence.InitialDamping,
		DefaultK:      c.Convergence.DefaultKFactor,
		MaxIterations: c.Convergence.MaxIterations,
	}
}

// Calculators are the per-pass collaborators built from a configuration.
type Calculators struct {
	Flow     flowcalc.Calculator
	Pressure *pressure.Empirical
	Strategy *converge.KFactor
}

// NewCalculators builds the flow calculator, pressure calculator and
// convergence strategy that cfg describes.
func NewCalculators(cfg *config.Config) (*Calculators, error) {
	couplers, err := pressure.ParseCouplerModel(cfg.Pressure.Couplers)
	if err != nil {
		return nil, err
	}
	press, err := pressure.NewEmpirical(pressure.Options{
		CFactor:             cfg.Pressure.CFactor,
		TrunkStaticPressure: cfg.Pressure.TrunkStaticPressure,
		FailFast:            cfg.Pressure.FailFast,
		IncludeElevation:    cfg.Pressure.IncludeElevation,
		Couplers:            couplers,
	})
	if err != nil {
		return nil, err
	}

	defaultK := cfg.Convergence.DefaultKFactor
	strategy, err := converge.New(converge.Options{
		Tolerance:      cfg.Convergence.Tolerance,
		InitialDamping: cfg.Convergence.InitialDamping,
		KFactor: func(term *fitting.Terminal) float64 {
			if leaf, ok := term.Leaf(); ok && leaf.KFactor > 0 {
				return leaf.KFactor
			}
			return defaultK
		},
	})
	if err != nil {
		return nil, err
	}

	var flow flowcalc.Calculator
	switch cfg.Flow.Mode {
	case config.FlowRemote:
		flow = &flowcalc.RemoteArea{Area: Polygon(cfg.Flow.Area), Strategy: strategy}
	default:
		flow = &flowcalc.FullFlow{Strategy: strategy}
	}
	return &Calculators{Flow: flow, Pressure: press, Strategy: strategy}, nil
}

// Polygon converts configured [x, y] vertices to a polygon.
func Polygon(pts [][2]float64) geom.Polygon {
	pg := make(geom.Polygon, len(pts))
	for i, p := range pts {
		pg[i] = geom.Vec2{X: p[0], Y: p[1]}
	}
	return pg
}

// =============================================================================
// Results
// =============================================================================

// Result is the outcome of a solve.
type Result struct {
	// RunID identifies the solve. A cached result keeps the ID of the run
	// that produced it.
	RunID string `json:"run_id"`

	// Iterations is the number of passes run.
	Iterations int `json:"iterations"`

	// Converged reports whether the leaf-flow strategy stopped asking for
	// another pass before the iteration cap.
	Converged bool `json:"converged"`

	// Errors are the network conditions reported by the last pass.
	Errors []fitting.FittingError `json:"errors,omitempty"`

	// Snapshot is the port and leaf state after the last pass.
	Snapshot Snapshot `json:"snapshot"`

	Stats Stats `json:"stats"`

	// CacheHit is set when the result came from the cache.
	CacheHit bool `json:"-"`
}

// Stats summarizes a solve. Flows are in m³/s, pressures in Pa.
type Stats struct {
	Components      int           `json:"components"`
	Leaves          int           `json:"leaves"`
	TrunkFlow       float64       `json:"trunk_flow"`
	TrunkPressure   *float64      `json:"trunk_pressure,omitempty"`
	MinLeafPressure *float64      `json:"min_leaf_pressure,omitempty"`
	FinalDamping    float64       `json:"final_damping"`
	Duration        time.Duration `json:"duration"`
}

// Snapshot is the solved state of a tree.
type Snapshot struct {
	Ports  []PortState `json:"ports"`
	Leaves []LeafState `json:"leaves"`
}

// PortState is the solved state of one port.
type PortState struct {
	Component string   `json:"component"`
	Port      int      `json:"port"`
	Flow      float64  `json:"flow"`
	Pressure  *float64 `json:"pressure,omitempty"`
}

// LeafState is the corrected demand of one leaf.
type LeafState struct {
	ID   string  `json:"id"`
	Flow float64 `json:"flow"`
}

// TakeSnapshot records the port and leaf state of t.
func TakeSnapshot(t *fitting.Tree) Snapshot {
	var s Snapshot
	for _, c := range t.Flatten() {
		for _, p := range fitting.BaseOf(c).Ports {
			if p.Flow == nil {
				continue
			}
			ps := PortState{Component: c.ComponentID(), Port: p.Index, Flow: p.Flow.Rate}
			if v, ok := p.StaticPressure(); ok {
				ps.Pressure = &v
			}
			s.Ports = append(s.Ports, ps)
		}
		if term, ok := c.(*fitting.Terminal); ok {
			if leaf, ok := term.Leaf(); ok {
				s.Leaves = append(s.Leaves, LeafState{ID: term.ID, Flow: leaf.Flow})
			}
		}
	}
	return s
}

// Apply writes the snapshot back onto t. Ports and leaves that t does not
// have are reported as an ErrCodeNotFound error; nothing is written then.
func (s Snapshot) Apply(t *fitting.Tree) error {
	ports := make([]*fitting.Port, len(s.Ports))
	for i, ps := range s.Ports {
		c, ok := t.Component(ps.Component)
		if !ok {
			return errors.New(errors.ErrCodeNotFound, "snapshot component %q not in tree", ps.Component)
		}
		p := fitting.BaseOf(c).Port(ps.Port)
		if p == nil {
			return errors.New(errors.ErrCodeNotFound, "snapshot port %s:%d not in tree", ps.Component, ps.Port)
		}
		ports[i] = p
	}
	leaves := make([]*fitting.Leaf, len(s.Leaves))
	for i, ls := range s.Leaves {
		c, _ := t.Component(ls.ID)
		term, ok := c.(*fitting.Terminal)
		if !ok {
			return errors.New(errors.ErrCodeNotFound, "snapshot leaf %q not in tree", ls.ID)
		}
		leaf, ok := term.Leaf()
		if !ok {
			return errors.New(errors.ErrCodeNotFound, "snapshot leaf %q not in tree", ls.ID)
		}
		leaves[i] = leaf
	}

	t.ResetFlows()
	for i, ps := range s.Ports {
		ports[i].SetFlowRate(ps.Flow)
		if ps.Pressure != nil {
			ports[i].SetStaticPressure(*ps.Pressure)
		}
	}
	for i, ls := range s.Leaves {
		leaves[i].Flow = ls.Flow
	}
	return nil
}

// summarize fills in the tree-derived statistics.
func summarize(t *fitting.Tree, trunk *fitting.Terminal, st *Stats) {
	st.Components = len(t.Flatten())
	if p := trunk.TrunkPort(); p != nil {
		st.TrunkFlow = p.FlowRate()
		if v, ok := p.StaticPressure(); ok {
			st.TrunkPressure = &v
		}
	}
	for _, term := range t.Terminals() {
		if _, ok := term.Leaf(); !ok || term == trunk {
			continue
		}
		st.Leaves++
		if v, ok := term.TrunkPort().StaticPressure(); ok && (st.MinLeafPressure == nil || v < *st.MinLeafPressure) {
			st.MinLeafPressure = &v
		}
	}
}
