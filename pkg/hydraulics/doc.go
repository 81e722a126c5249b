// Package hydraulics implements the empirical formulas used by the pressure
// model: the Hazen-Williams friction loss, hydrostatic gain from elevation,
// and equivalent-length tables for branching and 90° elbow fittings.
//
// # Units
//
// All functions use SI units: flow in m³/s, diameter and length in m,
// pressure in Pa. [HazenWilliamsPD] returns a pressure gradient (Pa per m of
// pipe), so the loss over a run is the gradient times its length, or times an
// equivalent length for a fitting.
//
// # Equivalent Lengths
//
// Fittings are converted to a length of straight pipe with the same loss.
// The tables are indexed by nominal size; a lookup uses the first tabulated
// size not smaller than the actual diameter. Table values are tabulated for a
// roughness coefficient of 130 and scaled for other coefficients by
// [MultiplierForCFactor], which interpolates linearly between the tabulated
// points and rejects coefficients outside [100, 150].
//
// Every function in this package is pure and safe for concurrent use.
package hydraulics
