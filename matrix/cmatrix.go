package matrix

import (
	"fmt"
	"math/cmplx"
)

// CMatrix is a dense complex128 matrix. It carries eigen-decomposition
// results, where eigenvalues and eigenvectors of a real matrix may be
// complex. It is viewless; Partial copies.
type CMatrix struct {
	data []complex128
	rows int
	cols int
}

// NewC returns a zero-initialized complex rows x cols matrix.
func NewC(rows, cols int) CMatrix {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("matrix: invalid dimensions %dx%d", rows, cols))
	}
	return CMatrix{data: make([]complex128, rows*cols), rows: rows, cols: cols}
}

// IdentityC returns the complex n x n identity.
func IdentityC(n int) CMatrix {
	m := NewC(n, n)
	for i := 0; i < n; i++ {
		m.data[i*n+i] = 1
	}
	return m
}

func (m CMatrix) Rows() int                   { return m.rows }
func (m CMatrix) Cols() int                   { return m.cols }
func (m CMatrix) At(i, j int) complex128      { return m.data[i*m.cols+j] }
func (m CMatrix) Set(i, j int, v complex128)  { m.data[i*m.cols+j] = v }

// Copy returns a deep clone.
func (m CMatrix) Copy() CMatrix {
	out := NewC(m.rows, m.cols)
	copy(out.data, m.data)
	return out
}

// Partial returns a copied sub-matrix.
func (m CMatrix) Partial(rows, cols, rowOffset, colOffset int) CMatrix {
	if rowOffset+rows > m.rows || colOffset+cols > m.cols {
		panic("matrix: partial exceeds bounds")
	}
	out := NewC(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, m.At(rowOffset+i, colOffset+j))
		}
	}
	return out
}

// Mul returns the product m * o.
func (m CMatrix) Mul(o CMatrix) CMatrix {
	if m.cols != o.rows {
		panic("matrix: complex mul size mismatch")
	}
	out := NewC(m.rows, o.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < o.cols; j++ {
			var sum complex128
			for k := 0; k < m.cols; k++ {
				sum += m.At(i, k) * o.At(k, j)
			}
			out.Set(i, j, sum)
		}
	}
	return out
}

// Real extracts the real parts.
func (m CMatrix) Real() Matrix {
	out := New(m.rows, m.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			out.Set(i, j, real(m.At(i, j)))
		}
	}
	return out
}

// decomposeLU packs L|U without pivoting; a zero pivot is an error.
func (m CMatrix) decomposeLU() (CMatrix, error) {
	if m.rows != m.cols {
		return CMatrix{}, ErrNotSquare
	}
	n := m.rows
	lu := NewC(n, n*2)
	for i := 0; i < n; i++ {
		lu.Set(i, i, 1)
		for j := 0; j < n; j++ {
			lu.Set(i, j+n, m.At(i, j))
		}
	}
	for i := 0; i < n; i++ {
		if lu.At(i, i+n) == 0 {
			return CMatrix{}, ErrSingular
		}
		for i2 := i + 1; i2 < n; i2++ {
			f := lu.At(i2, i+n) / lu.At(i, i+n)
			lu.Set(i2, i, f)
			lu.Set(i2, i+n, 0)
			for j2 := i + 1; j2 < n; j2++ {
				lu.Set(i2, j2+n, lu.At(i2, j2+n)-f*lu.At(i, j2+n))
			}
		}
	}
	return lu, nil
}

// solveWithLU resolves x of Ax = y over the packed complex L|U layout.
func (m CMatrix) solveWithLU(y CMatrix) (CMatrix, error) {
	n := m.rows
	if m.cols != n*2 {
		return CMatrix{}, ErrNotLU
	}
	if y.cols != 1 || y.rows != n {
		return CMatrix{}, ErrSizeMismatch
	}
	yc := y.Copy()
	yp := NewC(n, 1)
	for i := 0; i < n; i++ {
		yp.Set(i, 0, yc.At(i, 0)/m.At(i, i))
		for j := i + 1; j < n; j++ {
			yc.Set(j, 0, yc.At(j, 0)-m.At(j, i)*yp.At(i, 0))
		}
	}
	x := NewC(n, 1)
	for i := n - 1; i >= 0; i-- {
		x.Set(i, 0, yp.At(i, 0)/m.At(i, i+n))
		for j := i - 1; j >= 0; j-- {
			yp.Set(j, 0, yp.At(j, 0)-m.At(j, i+n)*x.At(i, 0))
		}
	}
	return x, nil
}

// Inverse computes the complex inverse by Gauss-Jordan elimination.
func (m CMatrix) Inverse() (CMatrix, error) {
	if m.rows != m.cols {
		return CMatrix{}, ErrNotSquare
	}
	n := m.rows
	left := m.Copy()
	right := IdentityC(n)
	for i := 0; i < n; i++ {
		if left.At(i, i) == 0 {
			i2 := i
			for {
				i2++
				if i2 == n {
					return CMatrix{}, ErrSingular
				}
				if left.At(i2, i) != 0 {
					break
				}
			}
			for j := 0; j < n; j++ {
				vi, v2 := left.At(i, j), left.At(i2, j)
				left.Set(i, j, v2)
				left.Set(i2, j, vi)
				ri, r2 := right.At(i, j), right.At(i2, j)
				right.Set(i, j, r2)
				right.Set(i2, j, ri)
			}
		}
		p := left.At(i, i)
		for j := 0; j < n; j++ {
			left.Set(i, j, left.At(i, j)/p)
			right.Set(i, j, right.At(i, j)/p)
		}
		for k := 0; k < n; k++ {
			if k == i {
				continue
			}
			f := left.At(k, i)
			if f == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				left.Set(k, j, left.At(k, j)-left.At(i, j)*f)
				right.Set(k, j, right.At(k, j)-right.At(i, j)*f)
			}
		}
	}
	return right, nil
}

func cAbs2(v complex128) float64 {
	return real(v)*real(v) + imag(v)*imag(v)
}

func cSqrt(v complex128) complex128 { return cmplx.Sqrt(v) }
