package matrix

import (
	"math"
	"math/cmplx"
)

// Default convergence thresholds for Eigen.
const (
	EigenAbsTol = 1e-10
	EigenRelTol = 1e-7
)

// maxQRSweeps bounds the double-shift QR iteration.
const maxQRSweeps = 600

// Hessenberg reduces the matrix to upper Hessenberg form by Householder
// reflections applied from both sides. When transform is non-nil it
// accumulates the similarity transform into it (transform <- transform * P
// per reflection).
func (m Matrix) Hessenberg(transform *Matrix) (Matrix, error) {
	if !m.IsSquare() {
		return Matrix{}, ErrNotSquare
	}
	n := m.rows
	result := m.Copy()
	for j := 0; j < n-2; j++ {
		t := 0.0
		for i := j + 1; i < n; i++ {
			t += result.At(i, j) * result.At(i, j)
		}
		s := math.Sqrt(t)
		if result.At(j+1, j) < 0 {
			s = -s
		}

		omega := New(n-(j+1), 1)
		for i := 0; i < omega.Rows(); i++ {
			omega.Set(i, 0, result.At(j+i+1, j))
		}
		omega.Set(0, 0, omega.At(0, 0)+s)

		p := Identity(n)
		denom := t + result.At(j+1, j)*s
		if denom != 0 {
			p.PivotMerge(j+1, j+1, omega.Mul(omega.Transpose()).ScaleEq(-1/denom))
		}

		result = p.Mul(result).Mul(p)
		if transform != nil {
			*transform = transform.Mul(p)
		}
	}

	// flush round-off below the first subdiagonal
	sym := m.IsSymmetric()
	for j := 0; j < n-2; j++ {
		for i := j + 2; i < n; i++ {
			result.Set(i, j, 0)
			if sym {
				result.Set(j, i, 0)
			}
		}
	}
	return result, nil
}

// eigen22 returns the eigenvalues of the 2x2 block anchored at (row, col).
func (m Matrix) eigen22(row, col int) (upper, lower complex128) {
	a := m.At(row, col)
	b := m.At(row, col+1)
	c := m.At(row+1, col)
	d := m.At(row+1, col+1)
	root2 := (a-d)*(a-d) + b*c*4
	if root2 > 0 {
		root := math.Sqrt(root2)
		return complex((a+d+root)/2, 0), complex((a+d-root)/2, 0)
	}
	root := math.Sqrt(-root2)
	return complex((a+d)/2, root/2), complex((a+d)/2, -root/2)
}

// Eigen computes eigenvalues and eigenvectors by Hessenberg reduction
// followed by the double-shift QR method, with eigenvectors recovered by
// inverse iteration. The returned complex matrix is n x (n+1): columns
// [0, n) hold the normalized eigenvectors and column n the eigenvalues.
func (m Matrix) Eigen(absTol, relTol float64) (CMatrix, error) {
	if !m.IsSquare() {
		return CMatrix{}, ErrNotSquare
	}
	n := m.rows
	result := NewC(n, n+1)
	lambda := func(i int) complex128 { return result.At(i, n) }
	setLambda := func(i int, v complex128) { result.Set(i, n, v) }

	transform := Identity(n)
	hess, err := m.Hessenberg(&transform)
	if err != nil {
		return CMatrix{}, err
	}
	a := hess.Copy()

	var muSum, muMulti float64
	var p1, p2 complex128
	first := true
	mm := n

	for sweep := 0; ; sweep++ {
		if sweep > maxQRSweeps {
			return CMatrix{}, ErrNoConvergence
		}
		if mm == 1 {
			setLambda(0, complex(a.At(0, 0), 0))
			break
		} else if mm == 2 {
			up, lo := a.eigen22(0, 0)
			setLambda(0, up)
			setLambda(1, lo)
			break
		}

		// Wilkinson shift from the trailing 2x2 block. An eigenvalue that
		// moved by more than half its magnitude since the last sweep is
		// distrusted: if both moved, the previous pair is used; if one
		// moved, the other new eigenvalue is used as a double shift.
		p1New, p2New := a.eigen22(mm-2, mm-2)
		if first {
			first = false
			muSum = real(p1New + p2New)
			muMulti = real(p1New * p2New)
		} else {
			d1 := cmplx.Abs(p1New-p1) > cmplx.Abs(p1New)/2
			d2 := cmplx.Abs(p2New-p2) > cmplx.Abs(p2New)/2
			switch {
			case d1 && d2:
				muSum = real(p1 + p2)
				muMulti = real(p1 * p2)
			case d1:
				muSum = real(p2New) * 2
				muMulti = real(p2New) * real(p2New)
			case d2:
				muSum = real(p1New) * 2
				muMulti = real(p1New) * real(p1New)
			default:
				muSum = real(p1New + p2New)
				muMulti = real(p1New * p2New)
			}
		}
		p1, p2 = p1New, p2New

		// chase the bulge with 3x1 Householder reflections
		var b1, b2, b3 float64
		for i := 0; i < mm-1; i++ {
			if i == 0 {
				b1 = a.At(0, 0)*a.At(0, 0) - muSum*a.At(0, 0) + muMulti + a.At(0, 1)*a.At(1, 0)
				b2 = a.At(1, 0) * (a.At(0, 0) + a.At(1, 1) - muSum)
				b3 = a.At(2, 1) * a.At(1, 0)
			} else {
				b1 = a.At(i, i-1)
				b2 = a.At(i+1, i-1)
				if i == mm-2 {
					b3 = 0
				} else {
					b3 = a.At(i+2, i-1)
				}
			}
			r := math.Sqrt(b1*b1 + b2*b2 + b3*b3)

			omega := New(3, 1)
			if b1 >= 0 {
				omega.Set(0, 0, b1+r)
			} else {
				omega.Set(0, 0, b1-r)
			}
			omega.Set(1, 0, b2)
			if b3 != 0 {
				omega.Set(2, 0, b3)
			}
			p := Identity(n)
			denom := omega.Transpose().Mul(omega).At(0, 0)
			if denom != 0 {
				p.PivotMerge(i, i, omega.Mul(omega.Transpose()).ScaleEq(-2/denom))
			}
			a = p.Mul(a).Mul(p)
		}

		if v := a.At(mm-1, mm-2); math.IsNaN(v) || math.IsInf(v, 0) {
			return CMatrix{}, ErrNoConvergence
		}

		am2 := math.Abs(a.At(mm-2, mm-2))
		am1 := math.Abs(a.At(mm-1, mm-1))
		epsilon := absTol + relTol*math.Min(am2, am1)

		if math.Abs(a.At(mm-1, mm-2)) < epsilon {
			mm--
			setLambda(mm, complex(a.At(mm, mm), 0))
		} else if mm > 2 && math.Abs(a.At(mm-2, mm-3)) < epsilon {
			up, lo := a.eigen22(mm-2, mm-2)
			setLambda(mm-1, up)
			setLambda(mm-2, lo)
			mm -= 2
		}
	}

	// eigenvectors by inverse iteration on the Hessenberg form
	x := IdentityC(n)
	ac := NewC(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			ac.Set(i, j, complex(hess.At(i, j), 0))
		}
	}
	for j := 0; j < n; j++ {
		shifted := ac.Copy()
		approx := lambda(j)
		// nudge the shift when it lies within 1e-3 of diagonal element j
		if cmplx.Abs(shifted.At(j, j)-approx) <= 1e-3 {
			approx += 2e-3
		}
		for i := 0; i < n; i++ {
			shifted.Set(i, i, shifted.At(i, i)-approx)
		}
		lu, err := shifted.decomposeLU()
		if err != nil {
			return CMatrix{}, err
		}

		target := NewC(n, 1)
		for i := 0; i < n; i++ {
			target.Set(i, 0, x.At(i, j))
		}
		for loop := 0; ; loop++ {
			next, err := lu.solveWithLU(target)
			if err != nil {
				return CMatrix{}, err
			}
			var dot, norm2 complex128
			for i := 0; i < n; i++ {
				dot += next.At(i, 0) * target.At(i, 0)
				norm2 += next.At(i, 0) * next.At(i, 0)
			}
			mu := cAbs2(dot)
			v2 := cAbs2(norm2)
			v2s := math.Sqrt(v2)
			for i := 0; i < n; i++ {
				target.Set(i, 0, next.At(i, 0)/complex(v2s, 0))
			}
			if 1-(mu*mu/v2) < 1.1 {
				for i := 0; i < n; i++ {
					x.Set(i, j, target.At(i, 0))
				}
				break
			}
			if loop > 100 {
				return CMatrix{}, ErrNoConvergence
			}
		}
	}

	// back-transform and normalize
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			var sum complex128
			for k := 0; k < n; k++ {
				sum += complex(transform.At(i, k), 0) * x.At(k, j)
			}
			result.Set(i, j, sum)
		}
		norm := 0.0
		for i := 0; i < n; i++ {
			norm += cAbs2(result.At(i, j))
		}
		norm = math.Sqrt(norm)
		for i := 0; i < n; i++ {
			result.Set(i, j, result.At(i, j)/complex(norm, 0))
		}
	}
	return result, nil
}

// Sqrt computes the principal matrix square root V D^1/2 V^-1 from the
// eigen decomposition.
func (m Matrix) Sqrt() (CMatrix, error) {
	eig, err := m.Eigen(EigenAbsTol, EigenRelTol)
	if err != nil {
		return CMatrix{}, err
	}
	n := eig.Rows()
	v := eig.Partial(n, n, 0, 0)
	nv, err := v.Inverse()
	if err != nil {
		return CMatrix{}, err
	}
	for j := 0; j < n; j++ {
		s := cSqrt(eig.At(j, n))
		for i := 0; i < n; i++ {
			v.Set(i, j, v.At(i, j)*s)
		}
	}
	return v.Mul(nv), nil
}
