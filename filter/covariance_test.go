package filter

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insgps-go/matrix"
)

func randomSPD(rng *rand.Rand, n int) matrix.Matrix {
	a := matrix.New(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}
	p := a.Mul(a.Transpose())
	for i := 0; i < n; i++ {
		p.Set(i, i, p.At(i, i)+float64(n))
		for j := i + 1; j < n; j++ {
			v := (p.At(i, j) + p.At(j, i)) / 2
			p.Set(i, j, v)
			p.Set(j, i, v)
		}
	}
	return p
}

func maxDiag(p matrix.Matrix) float64 {
	m := 0.0
	for i := 0; i < p.Rows(); i++ {
		if v := p.At(i, i); v > m {
			m = v
		}
	}
	return m
}

// Running the same update sequence through the standard and the
// UD-factorized backend must agree to tight tolerance.
func TestUDMatchesStandard(t *testing.T) {
	rng := rand.New(rand.NewSource(20))
	n, q, m := 6, 4, 3

	p0 := randomSPD(rng, n)
	std := NewStandard(n)
	require.NoError(t, std.SetP(p0))
	ud := NewUD(n)
	require.NoError(t, ud.SetP(p0))

	scale := maxDiag(p0)
	for step := 0; step < 25; step++ {
		phi := matrix.Identity(n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				phi.Set(i, j, phi.At(i, j)+0.02*rng.NormFloat64())
			}
		}
		g := matrix.New(n, q)
		for i := 0; i < n; i++ {
			for j := 0; j < q; j++ {
				g.Set(i, j, rng.NormFloat64())
			}
		}
		qDiag := make([]float64, q)
		for j := range qDiag {
			qDiag[j] = 0.01 * (1 + rng.Float64())
		}
		std.TimeUpdate(phi, g, qDiag)
		ud.TimeUpdate(phi, g, qDiag)
		assert.True(t, std.P().EqualWithin(ud.P(), 1e-7*scale), "time update step %d", step)

		h := matrix.New(m, n)
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				h.Set(i, j, rng.NormFloat64())
			}
		}
		r := matrix.New(m, m)
		for i := 0; i < m; i++ {
			r.Set(i, i, 0.5+rng.Float64())
		}
		z := matrix.New(m, 1)
		for i := 0; i < m; i++ {
			z.Set(i, 0, rng.NormFloat64())
		}

		dxStd, err := std.MeasurementUpdate(h, r, z)
		require.NoError(t, err)
		dxUD, err := ud.MeasurementUpdate(h, r, z)
		require.NoError(t, err)
		assert.True(t, dxStd.EqualWithin(dxUD, 1e-7), "gain step %d", step)
		assert.True(t, std.P().EqualWithin(ud.P(), 1e-7*scale), "measurement step %d", step)
	}
}

// A correlated measurement noise matrix must be handled by the UD backend
// through diagonalisation and agree with the standard batch update.
func TestUDCorrelatedNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	n, m := 5, 3

	p0 := randomSPD(rng, n)
	std := NewStandard(n)
	require.NoError(t, std.SetP(p0))
	ud := NewUD(n)
	require.NoError(t, ud.SetP(p0))

	h := matrix.New(m, n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			h.Set(i, j, rng.NormFloat64())
		}
	}
	r := randomSPD(rng, m)
	z := matrix.New(m, 1)
	for i := 0; i < m; i++ {
		z.Set(i, 0, rng.NormFloat64())
	}

	dxStd, err := std.MeasurementUpdate(h, r, z)
	require.NoError(t, err)
	dxUD, err := ud.MeasurementUpdate(h, r, z)
	require.NoError(t, err)
	assert.True(t, dxStd.EqualWithin(dxUD, 1e-7))
	assert.True(t, std.P().EqualWithin(ud.P(), 1e-7*maxDiag(p0)))
}

// With zero process noise, repeated measurement updates must shrink the
// covariance monotonically along the measured axes.
func TestCovarianceMonotone(t *testing.T) {
	n := 4
	std := NewStandard(n)
	p0 := matrix.New(n, n)
	for i := 0; i < n; i++ {
		p0.Set(i, i, 10)
	}
	require.NoError(t, std.SetP(p0))

	phi := matrix.Identity(n)
	g := matrix.New(n, 1)
	h := matrix.New(2, n)
	h.Set(0, 0, 1)
	h.Set(1, 1, 1)
	r := matrix.Identity(2)
	z := matrix.New(2, 1)

	prev0, prev1 := p0.At(0, 0), p0.At(1, 1)
	for step := 0; step < 20; step++ {
		std.TimeUpdate(phi, g, []float64{0})
		_, err := std.MeasurementUpdate(h, r, z)
		require.NoError(t, err)
		p := std.P()
		assert.Less(t, p.At(0, 0), prev0)
		assert.Less(t, p.At(1, 1), prev1)
		prev0, prev1 = p.At(0, 0), p.At(1, 1)
	}
}
