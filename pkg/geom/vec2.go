// Package geom holds the planar vector type used by 2D agents.
package geom

import (
	"fmt"
	"math"
	"strconv"
)

// Vec2 is a point or displacement in the plane.
type Vec2 struct {
	X float64
	Y float64
}

// V is shorthand for Vec2{x, y}.
func V(x, y float64) Vec2 { return Vec2{X: x, Y: y} }

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }

// Norm returns the Euclidean length.
func (v Vec2) Norm() float64 { return math.Hypot(v.X, v.Y) }

// ClampNorm rescales v so its length does not exceed limit.
func (v Vec2) ClampNorm(limit float64) Vec2 {
	n := v.Norm()
	if n <= limit || n == 0 {
		return v
	}
	return v.Scale(limit / n)
}

// Round rounds both components to the given number of decimals.
func (v Vec2) Round(decimals int) Vec2 {
	return Vec2{RoundTo(v.X, decimals), RoundTo(v.Y, decimals)}
}

// String renders the vector as a tuple, e.g. "(20, 35.5)".
func (v Vec2) String() string {
	return fmt.Sprintf("(%s, %s)", FormatNumber(v.X), FormatNumber(v.Y))
}

// RoundTo rounds x half away from zero to the given number of decimals.
func RoundTo(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}

// FormatNumber prints x with the shortest exact representation.
func FormatNumber(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
