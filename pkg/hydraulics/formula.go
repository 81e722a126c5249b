package hydraulics

import "math"

const (
	// WaterUnitWeight is ρg for water at 15 °C, in N/m³.
	WaterUnitWeight = 9798.0

	// DefaultCFactor is the Hazen-Williams roughness coefficient of new steel pipe.
	DefaultCFactor = 130.0

	// hazenWilliamsK is the SI constant of the Hazen-Williams head-loss equation.
	hazenWilliamsK = 10.67

	flowExponent     = 1.852
	diameterExponent = 4.87
)

// HazenWilliamsPD returns the friction pressure loss per metre of pipe for a
// flow q through diameter d with roughness coefficient c:
//
//	γ × 10.67 × |q|^1.852 / (c^1.852 × d^4.87)
//
// The result carries the sign of q so reversed flow yields a pressure gain.
// It returns 0 for zero flow and NaN when c or d is not positive.
func HazenWilliamsPD(c, q, d float64) float64 {
	if c <= 0 || d <= 0 {
		return math.NaN()
	}
	if q == 0 {
		return 0
	}
	head := hazenWilliamsK * math.Pow(math.Abs(q), flowExponent) /
		(math.Pow(c, flowExponent) * math.Pow(d, diameterExponent))
	return math.Copysign(WaterUnitWeight*head, q)
}

// StaticGain returns the hydrostatic pressure gained by dropping dz metres.
// A negative dz (a rise) returns a negative gain.
func StaticGain(dz float64) float64 {
	return WaterUnitWeight * dz
}

// ExpectedDischarge returns the flow of an orifice with discharge coefficient
// k at static pressure p, q = k√p. Non-positive pressure discharges nothing.
func ExpectedDischarge(p, k float64) float64 {
	if p <= 0 || k <= 0 {
		return 0
	}
	return k * math.Sqrt(p)
}
