// Package config loads solver settings from TOML files.
//
// A configuration has three tables:
//
//	[pressure]
//	c_factor = 120
//	trunk_static_pressure = 350000   # Pa
//	fail_fast = false
//	include_elevation = true
//	couplers = "zero"                # or "unsupported"
//
//	[flow]
//	mode = "remote"                  # or "full"
//	area = [[0, 0], [30, 0], [30, 20], [0, 20]]
//
//	[convergence]
//	tolerance = 1e-6                 # m³/s
//	initial_damping = 0.5
//	default_k_factor = 8.1e-6        # for leaves without a K-factor
//	max_iterations = 50
//
// Missing keys take the values of [Default].
package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/pipeflow/pkg/converge"
	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/hydraulics"
	"github.com/matzehuels/pipeflow/pkg/pressure"
)

// Flow modes.
const (
	FlowFull   = "full"
	FlowRemote = "remote"
)

// DefaultMaxIterations bounds the outer solve loop.
const DefaultMaxIterations = 50

// Config holds every solver setting.
type Config struct {
	Pressure    Pressure    `toml:"pressure"`
	Flow        Flow        `toml:"flow"`
	Convergence Convergence `toml:"convergence"`
}

// Pressure configures the pressure calculator.
type Pressure struct {
	CFactor             float64 `toml:"c_factor"`
	TrunkStaticPressure float64 `toml:"trunk_static_pressure"`
	FailFast            bool    `toml:"fail_fast"`
	IncludeElevation    bool    `toml:"include_elevation"`
	Couplers            string  `toml:"couplers"`
}

// Flow configures the flow calculator.
type Flow struct {
	Mode string       `toml:"mode"`
	Area [][2]float64 `toml:"area,omitempty"`
}

// Convergence configures the leaf-flow convergence strategy and the outer loop.
type Convergence struct {
	Tolerance      float64 `toml:"tolerance"`
	InitialDamping float64 `toml:"initial_damping"`
	DefaultKFactor float64 `toml:"default_k_factor"`
	MaxIterations  int     `toml:"max_iterations"`
}

// Default returns the default configuration.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the TOML file at path, fills in defaults and validates the result.
// An empty path returns [Default].
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "read config %s", path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	return Parse(data)
}

// Parse decodes TOML data, fills in defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown config key %q", undecoded[0].String())
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Save writes c to path as TOML.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Encode writes the configuration as TOML.
func (c *Config) Encode(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(c); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode config")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Pressure.CFactor == 0 {
		c.Pressure.CFactor = hydraulics.DefaultCFactor
	}
	if c.Pressure.Couplers == "" {
		c.Pressure.Couplers = pressure.CouplerZeroLoss.String()
	}
	if c.Flow.Mode == "" {
		c.Flow.Mode = FlowFull
	}
	if c.Convergence.Tolerance == 0 {
		c.Convergence.Tolerance = 1e-6
	}
	if c.Convergence.InitialDamping == 0 {
		c.Convergence.InitialDamping = converge.DefaultDamping
	}
	if c.Convergence.MaxIterations == 0 {
		c.Convergence.MaxIterations = DefaultMaxIterations
	}
}

// OverrideFlow applies a mode and remote area given outside the file.
// An area without a mode selects remote mode; mode full drops the area.
// Empty arguments leave the configuration unchanged.
func (c *Config) OverrideFlow(mode string, area [][2]float64) {
	if len(area) > 0 {
		c.Flow.Area = area
		if mode == "" {
			c.Flow.Mode = FlowRemote
		}
	}
	if mode != "" {
		c.Flow.Mode = mode
		if mode == FlowFull {
			c.Flow.Area = nil
		}
	}
}

// ParseArea parses polygon vertices written as "x,y;x,y;...".
func ParseArea(s string) ([][2]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var pts [][2]float64
	for _, vertex := range strings.Split(s, ";") {
		xy := strings.Split(strings.TrimSpace(vertex), ",")
		if len(xy) != 2 {
			return nil, errors.New(errors.ErrCodeInvalidInput, "area vertex %q must be x,y", vertex)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "area vertex %q", vertex)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "area vertex %q", vertex)
		}
		pts = append(pts, [2]float64{x, y})
	}
	return pts, nil
}

// Validate checks value ranges and cross-field rules.
// Returns an ErrCodeInvalidConfig or ErrCodeOutOfRange error.
func (c *Config) Validate() error {
	if _, err := hydraulics.MultiplierForCFactor(c.Pressure.CFactor); err != nil {
		return err
	}
	if _, err := pressure.ParseCouplerModel(c.Pressure.Couplers); err != nil {
		return err
	}
	if c.Pressure.TrunkStaticPressure < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "pressure.trunk_static_pressure must not be negative")
	}

	switch c.Flow.Mode {
	case FlowFull:
		if len(c.Flow.Area) > 0 {
			return errors.New(errors.ErrCodeInvalidConfig, "flow.area is only used with mode %q", FlowRemote)
		}
	case FlowRemote:
		if len(c.Flow.Area) < 3 {
			return errors.New(errors.ErrCodeInvalidConfig, "flow.area needs at least 3 vertices, has %d", len(c.Flow.Area))
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "flow.mode must be %q or %q, got %q", FlowFull, FlowRemote, c.Flow.Mode)
	}

	cv := c.Convergence
	if cv.Tolerance <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "convergence.tolerance must be positive")
	}
	if cv.InitialDamping <= 0 || cv.InitialDamping > 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "convergence.initial_damping must be in (0, 1], got %g", cv.InitialDamping)
	}
	if cv.DefaultKFactor < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "convergence.default_k_factor must not be negative")
	}
	if cv.MaxIterations < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "convergence.max_iterations must be at least 1")
	}
	return nil
}
