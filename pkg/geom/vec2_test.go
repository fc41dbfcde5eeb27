package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArithmetic(t *testing.T) {
	a, b := V(1, 2), V(3, -4)

	assert.Equal(t, V(4, -2), a.Add(b))
	assert.Equal(t, V(-2, 6), a.Sub(b))
	assert.Equal(t, V(2, 4), a.Scale(2))
	assert.InDelta(t, 5.0, b.Norm(), 1e-12)
}

func TestClampNorm(t *testing.T) {
	v := V(30, 40) // |v| = 50
	c := v.ClampNorm(10)
	assert.InDelta(t, 10.0, c.Norm(), 1e-9)
	assert.InDelta(t, 0.6, c.X/c.Norm(), 1e-9, "direction preserved")

	assert.Equal(t, V(1, 1), V(1, 1).ClampNorm(10), "short vectors untouched")
	assert.Equal(t, V(0, 0), V(0, 0).ClampNorm(0))
}

func TestRound(t *testing.T) {
	assert.Equal(t, V(1.23, -4.57), V(1.2349, -4.5651).Round(2))
	assert.InDelta(t, 2.5, RoundTo(2.45, 1), 1e-12)
	assert.InDelta(t, -3.0, RoundTo(-2.5, 0), 1e-12, "half away from zero")
	assert.False(t, math.IsNaN(RoundTo(1e300, 2)))
}

func TestString(t *testing.T) {
	assert.Equal(t, "(20, 35.5)", V(20, 35.5).String())
	assert.Equal(t, "(-1.25, 0)", V(-1.25, 0).String())
	assert.Equal(t, "42", FormatNumber(42))
}
