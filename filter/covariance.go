// Package filter implements the extended Kalman filter over the
// strap-down INS error model: a standard full-covariance backend and a
// UD-factorized backend (Thornton time update, Bierman measurement
// update), optional sensor-bias augmentation, a back-propagation
// smoother and a realtime deferred-correction wrapper.
package filter

import (
	"insgps-go/matrix"
)

// Covariance abstracts the state-error covariance representation. The
// measurement update estimates the error state from a residual vector and
// updates the covariance in one step.
type Covariance interface {
	// TimeUpdate applies P <- Phi P Phi^T + G diag(qDiag) G^T.
	TimeUpdate(phi, g matrix.Matrix, qDiag []float64)
	// MeasurementUpdate consumes observation Jacobian h (m x n), noise
	// r (m x m) and residual z (m x 1), updates the covariance and
	// returns the estimated error state (n x 1).
	MeasurementUpdate(h, r, z matrix.Matrix) (matrix.Matrix, error)
	// P reconstitutes the full covariance.
	P() matrix.Matrix
	// SetP replaces the covariance.
	SetP(p matrix.Matrix) error
	// Clone returns an independent deep copy.
	Clone() Covariance
}

// Standard keeps the covariance as a full symmetric matrix.
type Standard struct {
	p matrix.Matrix
}

// NewStandard returns a standard-form covariance of dimension n,
// initialized to zero.
func NewStandard(n int) *Standard {
	return &Standard{p: matrix.New(n, n)}
}

func (s *Standard) P() matrix.Matrix { return s.p.Copy() }

func (s *Standard) SetP(p matrix.Matrix) error {
	if p.Rows() != s.p.Rows() || p.Cols() != s.p.Cols() {
		return matrix.ErrSizeMismatch
	}
	s.p = p.Copy()
	return nil
}

func (s *Standard) Clone() Covariance {
	return &Standard{p: s.p.Copy()}
}

func (s *Standard) TimeUpdate(phi, g matrix.Matrix, qDiag []float64) {
	gq := g.Copy()
	for j := 0; j < gq.Cols(); j++ {
		for i := 0; i < gq.Rows(); i++ {
			gq.Set(i, j, gq.At(i, j)*qDiag[j])
		}
	}
	s.p = phi.Mul(s.p).Mul(phi.Transpose()).AddEq(gq.Mul(g.Transpose()))
}

func (s *Standard) MeasurementUpdate(h, r, z matrix.Matrix) (matrix.Matrix, error) {
	n := s.p.Rows()
	pht := s.p.Mul(h.Transpose())
	innov := h.Mul(pht).AddEq(r)
	inv, err := innov.Inverse()
	if err != nil {
		return matrix.Matrix{}, err
	}
	k := pht.Mul(inv)
	dx := k.Mul(z)
	s.p = matrix.Identity(n).SubEq(k.Mul(h)).Mul(s.p)
	// restore symmetry lost to round-off
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := (s.p.At(i, j) + s.p.At(j, i)) / 2
			s.p.Set(i, j, v)
			s.p.Set(j, i, v)
		}
	}
	return dx, nil
}

// UD keeps the covariance factored as U D U^T and never reconstitutes it
// during updates.
type UD struct {
	u matrix.Matrix
	d []float64
}

// NewUD returns a UD-form covariance of dimension n, initialized to zero.
func NewUD(n int) *UD {
	return &UD{u: matrix.Identity(n), d: make([]float64, n)}
}

func (f *UD) P() matrix.Matrix {
	n := f.u.Rows()
	ud := f.u.Copy()
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			ud.Set(i, j, ud.At(i, j)*f.d[j])
		}
	}
	return ud.Mul(f.u.Transpose())
}

func (f *UD) SetP(p matrix.Matrix) error {
	if p.Rows() != f.u.Rows() || !p.IsSquare() {
		return matrix.ErrSizeMismatch
	}
	ud, err := p.DecomposeUD()
	if err != nil {
		return err
	}
	n := p.Rows()
	f.u = ud.Partial(n, n, 0, 0).Copy()
	for i := 0; i < n; i++ {
		f.d[i] = ud.At(i, i+n)
	}
	return nil
}

func (f *UD) Clone() Covariance {
	d := make([]float64, len(f.d))
	copy(d, f.d)
	return &UD{u: f.u.Copy(), d: d}
}

// TimeUpdate is the Thornton modified weighted Gram-Schmidt update over
// the compound [Phi U | G] factor.
func (f *UD) TimeUpdate(phi, g matrix.Matrix, qDiag []float64) {
	n := f.u.Rows()
	q := len(qDiag)
	w := matrix.New(n, n+q)
	pu := phi.Mul(f.u)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			w.Set(i, j, pu.At(i, j))
		}
		for j := 0; j < q; j++ {
			w.Set(i, n+j, g.At(i, j))
		}
	}
	dd := make([]float64, n+q)
	copy(dd, f.d)
	copy(dd[n:], qDiag)

	u := matrix.Identity(n)
	d := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sigma := 0.0
		for k := 0; k < n+q; k++ {
			sigma += w.At(i, k) * w.At(i, k) * dd[k]
		}
		d[i] = sigma
		for j := 0; j < i; j++ {
			s := 0.0
			for k := 0; k < n+q; k++ {
				s += w.At(j, k) * dd[k] * w.At(i, k)
			}
			if sigma != 0 {
				u.Set(j, i, s/sigma)
			}
			for k := 0; k < n+q; k++ {
				w.Set(j, k, w.At(j, k)-u.At(j, i)*w.At(i, k))
			}
		}
	}
	f.u = u
	f.d = d
}

// MeasurementUpdate processes the observation one scalar at a time with
// the Bierman rank-one update. A noise matrix with off-diagonal terms is
// first diagonalised through its own UD factorization applied to h and z.
func (f *UD) MeasurementUpdate(h, r, z matrix.Matrix) (matrix.Matrix, error) {
	m := h.Rows()
	n := f.u.Rows()

	hEff := h
	zEff := z
	rDiag := make([]float64, m)
	diagonal := true
	for i := 0; i < m && diagonal; i++ {
		for j := 0; j < m; j++ {
			if i != j && r.At(i, j) != 0 {
				diagonal = false
				break
			}
		}
	}
	if diagonal {
		for i := 0; i < m; i++ {
			rDiag[i] = r.At(i, i)
		}
	} else {
		ud, err := r.DecomposeUD()
		if err != nil {
			return matrix.Matrix{}, err
		}
		ur := ud.Partial(m, m, 0, 0).Copy()
		for i := 0; i < m; i++ {
			rDiag[i] = ud.At(i, i+m)
		}
		urInv, err := ur.Inverse()
		if err != nil {
			return matrix.Matrix{}, err
		}
		hEff = urInv.Mul(h)
		zEff = urInv.Mul(z)
	}

	dx := matrix.New(n, 1)
	for row := 0; row < m; row++ {
		// residual of this scalar given corrections already applied
		zi := zEff.At(row, 0)
		for j := 0; j < n; j++ {
			zi -= hEff.At(row, j) * dx.At(j, 0)
		}
		k, alpha := f.bierman(hEff.RowVector(row), rDiag[row])
		for j := 0; j < n; j++ {
			dx.Set(j, 0, dx.At(j, 0)+k[j]/alpha*zi)
		}
	}
	return dx, nil
}

// bierman applies one scalar observation row with noise r, updating U and
// D in place and returning the unnormalized gain b and innovation
// variance alpha (K = b / alpha).
func (f *UD) bierman(h matrix.Matrix, r float64) (b []float64, alpha float64) {
	n := f.u.Rows()
	fv := make([]float64, n) // f = U^T h
	for j := 0; j < n; j++ {
		s := h.At(0, j)
		for i := 0; i < j; i++ {
			s += f.u.At(i, j) * h.At(0, i)
		}
		fv[j] = s
	}
	v := make([]float64, n)
	for j := 0; j < n; j++ {
		v[j] = f.d[j] * fv[j]
	}

	b = make([]float64, n)
	alpha = r
	for j := 0; j < n; j++ {
		prev := alpha
		alpha += fv[j] * v[j]
		f.d[j] *= prev / alpha
		p := -fv[j] / prev
		for i := 0; i < j; i++ {
			uOld := f.u.At(i, j)
			f.u.Set(i, j, uOld+b[i]*p)
			b[i] += uOld * v[j]
		}
		b[j] += v[j]
	}
	return b, alpha
}
