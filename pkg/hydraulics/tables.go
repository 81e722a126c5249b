package hydraulics

import (
	"math"

	"github.com/matzehuels/pipeflow/pkg/errors"
)

const (
	// DefaultEquivalentLength is used for elbows that are not right angles
	// and for reducers, in metres.
	DefaultEquivalentLength = 2.0

	// TerminalEquivalentLength is the outlet allowance of a leaf terminal, in metres.
	TerminalEquivalentLength = 0.5

	// RightAngleTolerance is how close (degrees) an elbow must be to 90° to
	// use the elbow table.
	RightAngleTolerance = 1.0

	// sizeEpsilon absorbs rounding when matching a diameter to a nominal size.
	sizeEpsilon = 1e-6
)

// sizeEntry maps a nominal diameter (m) to an equivalent length (m) at C=130.
type sizeEntry struct {
	size   float64
	length float64
}

// elbowTable holds standard 90° elbows.
var elbowTable = []sizeEntry{
	{0.025, 0.6},
	{0.032, 0.9},
	{0.040, 1.2},
	{0.050, 1.5},
	{0.065, 1.8},
	{0.080, 2.1},
	{0.090, 2.4},
	{0.100, 3.0},
	{0.125, 3.7},
	{0.150, 4.3},
	{0.200, 5.5},
	{0.250, 6.7},
	{0.300, 8.2},
}

// wyeTable holds the outlets of branching fittings (wye, tee, cross).
var wyeTable = []sizeEntry{
	{0.025, 1.5},
	{0.032, 1.8},
	{0.040, 2.4},
	{0.050, 3.0},
	{0.065, 3.7},
	{0.080, 4.6},
	{0.090, 5.2},
	{0.100, 6.1},
	{0.125, 7.6},
	{0.150, 9.1},
	{0.200, 10.7},
	{0.250, 15.2},
	{0.300, 18.3},
}

// cFactorEntry pairs a roughness coefficient with its length multiplier.
type cFactorEntry struct {
	c          float64
	multiplier float64
}

// cFactorTable follows (C/130)^1.852, rounded.
var cFactorTable = []cFactorEntry{
	{100, 0.615},
	{110, 0.734},
	{120, 0.862},
	{130, 1.0},
	{140, 1.147},
	{150, 1.303},
}

// MultiplierForCFactor returns the equivalent-length multiplier for
// roughness coefficient c, interpolating linearly between tabulated points.
// Coefficients below 100 or above 150 return an ErrCodeOutOfRange error.
func MultiplierForCFactor(c float64) (float64, error) {
	first, last := cFactorTable[0], cFactorTable[len(cFactorTable)-1]
	if err := errors.ValidateRange("C-factor", c, first.c, last.c); err != nil {
		return 0, err
	}
	for i := 1; i < len(cFactorTable); i++ {
		lo, hi := cFactorTable[i-1], cFactorTable[i]
		if c > hi.c {
			continue
		}
		if c == hi.c {
			return hi.multiplier, nil
		}
		t := (c - lo.c) / (hi.c - lo.c)
		return lo.multiplier + t*(hi.multiplier-lo.multiplier), nil
	}
	return first.multiplier, nil
}

// ElbowEquivalentLength returns the table length of a 90° elbow of diameter d
// scaled for roughness coefficient c.
func ElbowEquivalentLength(d, c float64) (float64, error) {
	return lookup(elbowTable, "elbow", d, c)
}

// WyeEquivalentLength returns the table length of an outlet of diameter d of a
// branching fitting (wye, tee, cross) scaled for roughness coefficient c.
func WyeEquivalentLength(d, c float64) (float64, error) {
	return lookup(wyeTable, "wye", d, c)
}

// IsRightAngle reports whether angle (degrees) is within RightAngleTolerance of 90°.
func IsRightAngle(angle float64) bool {
	return math.Abs(angle-90) <= RightAngleTolerance
}

func lookup(table []sizeEntry, kind string, d, c float64) (float64, error) {
	if err := errors.ValidatePositive(kind+" diameter", d); err != nil {
		return 0, err
	}
	mult, err := MultiplierForCFactor(c)
	if err != nil {
		return 0, err
	}
	for _, e := range table {
		if e.size+sizeEpsilon >= d {
			return e.length * mult, nil
		}
	}
	return 0, errors.New(errors.ErrCodeOutOfRange,
		"%s diameter %g exceeds largest tabulated size %g", kind, d, table[len(table)-1].size)
}
