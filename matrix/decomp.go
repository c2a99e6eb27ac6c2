package matrix

// DecomposeLUP performs LU decomposition with partial pivoting. The result
// packs L into columns [0, n) and U into columns [n, 2n). Pivoting
// exchanges columns of U and is triggered only when a diagonal element is
// exactly zero; pivot records the resulting column order and pivots counts
// the exchanges performed.
func (m Matrix) DecomposeLUP() (lu Matrix, pivot []int, pivots int, err error) {
	if !m.IsSquare() {
		return Matrix{}, nil, 0, ErrNotSquare
	}
	n := m.rows
	lu = New(n, n*2)
	l := lu.Partial(n, n, 0, 0)
	u := lu.Partial(n, n, 0, n)
	for i := 0; i < n; i++ {
		l.Set(i, i, 1)
		for j := 0; j < n; j++ {
			u.Set(i, j, m.At(i, j))
		}
	}
	pivot = make([]int, n)
	for i := range pivot {
		pivot[i] = i
	}
	for i := 0; i < n; i++ {
		if u.At(i, i) == 0 {
			j := i
			for {
				j++
				if j == n {
					return Matrix{}, nil, 0, ErrSingular
				}
				if u.At(i, j) != 0 {
					break
				}
			}
			for i2 := 0; i2 < n; i2++ {
				tmp := u.At(i2, i)
				u.Set(i2, i, u.At(i2, j))
				u.Set(i2, j, tmp)
			}
			pivots++
			pivot[i], pivot[j] = pivot[j], pivot[i]
		}
		for i2 := i + 1; i2 < n; i2++ {
			f := u.At(i2, i) / u.At(i, i)
			l.Set(i2, i, f)
			u.Set(i2, i, 0)
			for j2 := i + 1; j2 < n; j2++ {
				u.Set(i2, j2, u.At(i2, j2)-f*u.At(i, j2))
			}
		}
	}
	return lu, pivot, pivots, nil
}

// SolveWithLU resolves x of Ax = y, where the receiver is the packed
// L|U layout produced by DecomposeLUP (without pivoting) and y is a
// column vector.
func (m Matrix) SolveWithLU(y Matrix) (Matrix, error) {
	n := m.rows
	if m.cols != n*2 {
		return Matrix{}, ErrNotLU
	}
	if y.cols != 1 || y.rows != n {
		return Matrix{}, ErrSizeMismatch
	}
	l := m.Partial(n, n, 0, 0)
	u := m.Partial(n, n, 0, n)

	// forward substitution: L y' = y
	yc := y.Copy()
	yp := New(n, 1)
	for i := 0; i < n; i++ {
		yp.Set(i, 0, yc.At(i, 0)/l.At(i, i))
		for j := i + 1; j < n; j++ {
			yc.Set(j, 0, yc.At(j, 0)-l.At(j, i)*yp.At(i, 0))
		}
	}
	// backward substitution: U x = y'
	x := New(n, 1)
	for i := n - 1; i >= 0; i-- {
		x.Set(i, 0, yp.At(i, 0)/u.At(i, i))
		for j := i - 1; j >= 0; j-- {
			yp.Set(j, 0, yp.At(j, 0)-u.At(j, i)*x.At(i, 0))
		}
	}
	return x, nil
}

// Determinant computes the determinant through the LUP decomposition.
func (m Matrix) Determinant() (float64, error) {
	lu, _, pivots, err := m.DecomposeLUP()
	if err != nil {
		return 0, err
	}
	res := 1.0
	if pivots%2 != 0 {
		res = -1.0
	}
	n := m.rows
	for i := 0; i < n; i++ {
		res *= lu.At(i, i) * lu.At(i, i+n)
	}
	return res, nil
}

// DecomposeUD factorizes a symmetric matrix as U D U^T with U
// unit-upper-triangular and D diagonal. The result packs U into columns
// [0, n) and D into columns [n, 2n).
func (m Matrix) DecomposeUD() (Matrix, error) {
	if !m.IsSymmetric() {
		return Matrix{}, ErrNotSymmetric
	}
	n := m.rows
	p := m.Copy()
	ud := New(n, n*2)
	u := ud.Partial(n, n, 0, 0)
	d := ud.Partial(n, n, 0, n)
	for i := n - 1; i >= 0; i-- {
		d.Set(i, i, p.At(i, i))
		u.Set(i, i, 1)
		for j := 0; j < i; j++ {
			u.Set(j, i, p.At(j, i)/d.At(i, i))
			for k := 0; k <= j; k++ {
				p.Set(k, j, p.At(k, j)-u.At(k, i)*d.At(i, i)*u.At(j, i))
			}
		}
	}
	return ud, nil
}

// Inverse computes the inverse by Gauss-Jordan elimination, exchanging
// rows when a pivot is zero.
func (m Matrix) Inverse() (Matrix, error) {
	if !m.IsSquare() {
		return Matrix{}, ErrNotSquare
	}
	n := m.rows
	left := m.Copy()
	right := Identity(n)
	for i := 0; i < n; i++ {
		if left.At(i, i) == 0 {
			i2 := i
			for {
				i2++
				if i2 == n {
					return Matrix{}, ErrSingular
				}
				if left.At(i2, i) != 0 {
					break
				}
			}
			left.ExchangeRows(i, i2)
			right.ExchangeRows(i, i2)
		}
		if p := left.At(i, i); p != 1 {
			for j := 0; j < n; j++ {
				right.Set(i, j, right.At(i, j)/p)
			}
			for j := i + 1; j < n; j++ {
				left.Set(i, j, left.At(i, j)/p)
			}
			left.Set(i, i, 1)
		}
		for k := 0; k < n; k++ {
			if k == i || left.At(k, i) == 0 {
				continue
			}
			f := left.At(k, i)
			for j := 0; j < n; j++ {
				right.Set(k, j, right.At(k, j)-right.At(i, j)*f)
			}
			for j := i + 1; j < n; j++ {
				left.Set(k, j, left.At(k, j)-left.At(i, j)*f)
			}
			left.Set(k, i, 0)
		}
	}
	return right, nil
}
