// Package geom provides the small amount of vector geometry the solver needs:
// port positions, distances, and horizontal-plane polygon tests.
package geom

import "math"

// Vec3 is a point or direction in model space. Z is the vertical axis.
type Vec3 struct {
	X, Y, Z float64
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Len returns the Euclidean length of v.
func (v Vec3) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Dist returns the Euclidean distance between v and o.
func (v Vec3) Dist(o Vec3) float64 { return v.Sub(o).Len() }

// XY projects v onto the horizontal plane.
func (v Vec3) XY() Vec2 { return Vec2{v.X, v.Y} }

// Vec2 is a point on the horizontal plane.
type Vec2 struct {
	X, Y float64
}

// Polygon is a simple closed polygon on the horizontal plane. The closing
// edge from the last vertex back to the first is implicit.
type Polygon []Vec2

// Contains reports whether p lies inside the polygon using the even-odd rule.
// Points exactly on an edge may fall on either side. A polygon with fewer
// than three vertices contains nothing.
func (pg Polygon) Contains(p Vec2) bool {
	if len(pg) < 3 {
		return false
	}
	inside := false
	j := len(pg) - 1
	for i := range pg {
		a, b := pg[i], pg[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Rect builds an axis-aligned rectangle polygon from two corners.
func Rect(min, max Vec2) Polygon {
	return Polygon{
		{min.X, min.Y},
		{max.X, min.Y},
		{max.X, max.Y},
		{min.X, max.Y},
	}
}
