package matrix

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func toGonum(m Matrix) *mat.Dense {
	out := mat.NewDense(m.Rows(), m.Cols(), nil)
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			out.Set(i, j, m.At(i, j))
		}
	}
	return out
}

func TestHessenberg(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	n := 6
	a := randomMatrix(rng, n, n)

	transform := Identity(n)
	h, err := a.Hessenberg(&transform)
	require.NoError(t, err)

	for j := 0; j < n-2; j++ {
		for i := j + 2; i < n; i++ {
			assert.Equal(t, 0.0, h.At(i, j), "below first subdiagonal")
		}
	}

	// similarity: T H T^T recovers A (T is orthogonal)
	recon := transform.Mul(h).Mul(transform.Transpose())
	assert.True(t, recon.EqualWithin(a, 1e-9))
}

// eigenResidual returns ||V diag(l) V^-1 - A||_F / ||A||_F.
func eigenResidual(t *testing.T, a Matrix, eig CMatrix) float64 {
	n := a.Rows()
	v := eig.Partial(n, n, 0, 0)
	vinv, err := v.Inverse()
	require.NoError(t, err)
	vl := v.Copy()
	for j := 0; j < n; j++ {
		l := eig.At(j, n)
		for i := 0; i < n; i++ {
			vl.Set(i, j, vl.At(i, j)*l)
		}
	}
	recon := vl.Mul(vinv)

	var num, den float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			num += cAbs2(recon.At(i, j) - complex(a.At(i, j), 0))
			den += a.At(i, j) * a.At(i, j)
		}
	}
	return math.Sqrt(num / den)
}

func TestEigenRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, n := range []int{2, 3, 5, 9, 12} {
		a := randomSPD(rng, n)
		eig, err := a.Eigen(EigenAbsTol, EigenRelTol)
		require.NoError(t, err, "n=%d", n)
		assert.Less(t, eigenResidual(t, a, eig), 1e-6, "n=%d", n)
	}
}

func TestEigenAgainstGonum(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	n := 7
	a := randomSPD(rng, n)

	eig, err := a.Eigen(EigenAbsTol, EigenRelTol)
	require.NoError(t, err)
	ours := make([]float64, n)
	for i := 0; i < n; i++ {
		l := eig.At(i, n)
		assert.InDelta(t, 0.0, imag(l), 1e-9, "SPD eigenvalues are real")
		ours[i] = real(l)
	}
	sort.Float64s(ours)

	var ref mat.Eigen
	require.True(t, ref.Factorize(toGonum(a), mat.EigenNone))
	vals := ref.Values(nil)
	theirs := make([]float64, n)
	for i, v := range vals {
		theirs[i] = real(v)
	}
	sort.Float64s(theirs)

	for i := 0; i < n; i++ {
		assert.InDelta(t, theirs[i], ours[i], 1e-6*math.Max(1, math.Abs(theirs[i])))
	}
}

func TestSqrt(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	for _, n := range []int{2, 4, 6} {
		p := randomSPD(rng, n)
		root, err := p.Sqrt()
		require.NoError(t, err)
		sq := root.Mul(root).Real()
		assert.True(t, sq.EqualWithin(p, 1e-6), "n=%d", n)
	}
}

func TestEigenNonSquare(t *testing.T) {
	a := New(2, 3)
	_, err := a.Eigen(EigenAbsTol, EigenRelTol)
	assert.ErrorIs(t, err, ErrNotSquare)
}
