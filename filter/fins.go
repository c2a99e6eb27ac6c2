package filter

import (
	"math"

	"insgps-go/ins"
	"insgps-go/matrix"
)

// Error-state layout. States 3-5 and 7-9 are delta-quaternion components
// (half rotation angles) of the position and attitude quaternions.
const (
	ixVelN = iota
	ixVelE
	ixVelD
	ixPosQ0
	ixPosQ1
	ixPosQ2
	ixHeight
	ixAttQ0
	ixAttQ1
	ixAttQ2
	// bias augmentation
	ixBiasAccel = 10
	ixBiasGyro  = 13

	StateDimBase = 10
	StateDimBias = 16
)

// Default initial covariance and input noise, per the stationary
// initialization assumptions.
var (
	defaultPDiag = []float64{
		1e+1, 1e+1, 1e+1, // velocity N, E, D [m/s]^2
		1e-8, 1e-8, 1e-8, // position delta quaternion
		1e+2,             // height [m]^2
		1e-4, 1e-4, 5e-3, // attitude delta quaternion (roll/pitch, yaw)
	}
	defaultPDiagBias = []float64{1e-4, 1e-4, 1e-4, 1e-7, 1e-7, 1e-7}
	defaultQDiagBias = []float64{1e-6, 1e-6, 1e-6, 1e-8, 1e-8, 1e-8}
)

// GPSSolution is the loosely-coupled measurement input: the output of an
// external single-point GPS solver.
type GPSSolution struct {
	Lat, Lon, Height float64 // rad, rad, m
	VN, VE, VD       float64 // m/s
	Sigma2D          float64 // horizontal 2D accuracy, m
	SigmaHeight      float64 // vertical accuracy, m
	SigmaVel         float64 // speed accuracy, m/s
}

// LeverArm carries the IMU-to-antenna offset in body axes and the mean
// body rate used to remove the rotation-induced velocity.
type LeverArm struct {
	Arm       ins.Vector3
	OmegaMean ins.Vector3
}

// StdDev is the 1-sigma spread of the navigation states extracted from
// the covariance diagonal.
type StdDev struct {
	LatRad, LonRad, HeightM    float64
	VNorth, VEast, VDown       float64
	HeadingRad, PitchRad, RollRad float64
	BiasAccel, BiasGyro        ins.Vector3
}

// Engine is the filter surface the packet scheduler drives. Variant
// wrappers (smoother, realtime) compose around it.
type Engine interface {
	Update(accel, omega ins.Vector3, dt float64) error
	Correct(sol GPSSolution, lever *LeverArm) (matrix.Matrix, error)
	CorrectYaw(deltaYaw, variance float64) (matrix.Matrix, error)
	ApplyErrorState(dx matrix.Matrix)
	INS() *ins.INS
	Cov() Covariance
	LastPhi() matrix.Matrix
	StateDim() int
	Clone() Engine
	StdDev() StdDev
	Biases() (accel, gyro ins.Vector3, ok bool)
}

// FilteredINS couples the strap-down mechanization with the error-state
// EKF. Bias estimation is a tagged configuration rather than a separate
// type: when estBias is set the state grows to 16 with first-order
// Gauss-Markov accelerometer and gyro bias states.
type FilteredINS struct {
	nav *ins.INS
	cov Covariance

	estBias   bool
	biasAccel ins.Vector3
	biasGyro  ins.Vector3
	betaAccel float64
	betaGyro  float64

	sigmaAccel   ins.Vector3
	sigmaGyro    ins.Vector3
	sigmaGravity float64

	lastPhi matrix.Matrix
}

// Config selects the filter variant and noise inputs.
type Config struct {
	UseUD        bool
	EstimateBias bool
	SigmaAccel   ins.Vector3 // m/s^2 per axis
	SigmaGyro    ins.Vector3 // rad/s per axis
	SigmaGravity float64
	BetaAccel    float64 // Gauss-Markov bandwidth of the accel bias
	BetaGyro     float64
}

// DefaultConfig mirrors the logger's stock MPU calibration.
func DefaultConfig() Config {
	return Config{
		SigmaAccel:   ins.Vector3{0.05, 0.05, 0.05},
		SigmaGyro:    ins.Vector3{5e-3, 5e-3, 5e-3},
		SigmaGravity: 1e-3,
		BetaAccel:    0.1,
		BetaGyro:     0.1,
	}
}

// NewFilteredINS builds the filter with the default P and Q settings.
func NewFilteredINS(cfg Config) *FilteredINS {
	n := StateDimBase
	if cfg.EstimateBias {
		n = StateDimBias
	}
	var cov Covariance
	if cfg.UseUD {
		cov = NewUD(n)
	} else {
		cov = NewStandard(n)
	}

	p := matrix.New(n, n)
	for i, v := range defaultPDiag {
		p.Set(i, i, v)
	}
	if cfg.EstimateBias {
		for i, v := range defaultPDiagBias {
			p.Set(StateDimBase+i, StateDimBase+i, v)
		}
	}
	if err := cov.SetP(p); err != nil {
		panic(err)
	}

	f := &FilteredINS{
		nav:          ins.New(),
		cov:          cov,
		estBias:      cfg.EstimateBias,
		sigmaAccel:   cfg.SigmaAccel,
		sigmaGyro:    cfg.SigmaGyro,
		sigmaGravity: cfg.SigmaGravity,
		// bias drift is an order slower than the sensor bandwidth
		betaAccel: cfg.BetaAccel * 0.1,
		betaGyro:  cfg.BetaGyro * 0.1,
		lastPhi:   matrix.Identity(n),
	}
	return f
}

func (f *FilteredINS) INS() *ins.INS           { return f.nav }
func (f *FilteredINS) Cov() Covariance         { return f.cov }
func (f *FilteredINS) LastPhi() matrix.Matrix  { return f.lastPhi }

func (f *FilteredINS) StateDim() int {
	if f.estBias {
		return StateDimBias
	}
	return StateDimBase
}

func (f *FilteredINS) Biases() (ins.Vector3, ins.Vector3, bool) {
	return f.biasAccel, f.biasGyro, f.estBias
}

func (f *FilteredINS) Clone() Engine {
	c := *f
	c.nav = f.nav.Clone()
	c.cov = f.cov.Clone()
	c.lastPhi = f.lastPhi.Copy()
	return &c
}

// dcm returns the body-to-NED direction cosine matrix.
func dcm(q ins.Quaternion) [3][3]float64 {
	ex := q.Rotate(ins.Vector3{1, 0, 0})
	ey := q.Rotate(ins.Vector3{0, 1, 0})
	ez := q.Rotate(ins.Vector3{0, 0, 1})
	return [3][3]float64{
		{ex[0], ey[0], ez[0]},
		{ex[1], ey[1], ez[1]},
		{ex[2], ey[2], ez[2]},
	}
}

func setSkew(m matrix.Matrix, row, col int, v ins.Vector3, scale float64) {
	m.Set(row, col+1, -v[2]*scale)
	m.Set(row, col+2, v[1]*scale)
	m.Set(row+1, col, v[2]*scale)
	m.Set(row+1, col+2, -v[0]*scale)
	m.Set(row+2, col, -v[1]*scale)
	m.Set(row+2, col+1, v[0]*scale)
}

// systemJacobians linearizes the error dynamics about the current state:
// the continuous F and the noise input mapping G with its diagonal Q.
func (f *FilteredINS) systemJacobians(accel ins.Vector3) (fm, g matrix.Matrix, qDiag []float64) {
	n := f.StateDim()
	fm = matrix.New(n, n)

	s := f.nav
	lat := s.Latitude()
	h := s.Height()
	rm := ins.MeridianRadius(lat) + h
	rt := ins.TransverseRadius(lat) + h
	grav := s.GravityDown()
	c := dcm(s.Attitude())

	omegaIE := s.EarthRateN()
	omegaEN := s.TransportRateN()
	omegaIN := omegaIE.Add(omegaEN)
	fN := s.SpecificForceN(accel)

	// velocity error: Coriolis coupling, specific-force tilt coupling
	// and the unstable vertical gravity gradient
	setSkew(fm, ixVelN, ixVelN, omegaIE.Scale(2).Add(omegaEN), -1)
	setSkew(fm, ixVelN, ixAttQ0, fN, -2)
	fm.Set(ixVelD, ixHeight, -2*grav/rm)

	// position delta-quaternion error driven by the transport rate
	dOmegaDv := [3][3]float64{
		{0, 1 / rt, 0},
		{-1 / rm, 0, 0},
		{0, -math.Tan(lat) / rt, 0},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			fm.Set(ixPosQ0+i, ixVelN+j, dOmegaDv[i][j]/2)
		}
	}
	setSkew(fm, ixPosQ0, ixPosQ0, omegaIN, -1)

	// height error integrates the down velocity error
	fm.Set(ixHeight, ixVelD, -1)

	// attitude delta-quaternion error
	setSkew(fm, ixAttQ0, ixAttQ0, omegaIN, -1)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			fm.Set(ixAttQ0+i, ixVelN+j, -dOmegaDv[i][j]/2)
		}
	}

	nq := 7
	if f.estBias {
		nq = 13
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				fm.Set(ixVelN+i, ixBiasAccel+j, -c[i][j])
				fm.Set(ixAttQ0+i, ixBiasGyro+j, -c[i][j]/2)
			}
			fm.Set(ixBiasAccel+i, ixBiasAccel+i, -f.betaAccel)
			fm.Set(ixBiasGyro+i, ixBiasGyro+i, -f.betaGyro)
		}
	}

	g = matrix.New(n, nq)
	qDiag = make([]float64, nq)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			g.Set(ixVelN+i, j, c[i][j])
			g.Set(ixAttQ0+i, 3+j, -c[i][j]/2)
		}
		qDiag[i] = f.sigmaAccel[i] * f.sigmaAccel[i]
		qDiag[3+i] = f.sigmaGyro[i] * f.sigmaGyro[i]
	}
	g.Set(ixVelD, 6, 1)
	qDiag[6] = f.sigmaGravity * f.sigmaGravity
	if f.estBias {
		for i := 0; i < 3; i++ {
			g.Set(ixBiasAccel+i, 7+i, 1)
			g.Set(ixBiasGyro+i, 10+i, 1)
			qDiag[7+i] = defaultQDiagBias[i]
			qDiag[10+i] = defaultQDiagBias[3+i]
		}
	}
	return fm, g, qDiag
}

// Update performs the EKF time update over dt: mechanization plus the
// covariance propagation P <- Phi P Phi^T + G Q G^T.
func (f *FilteredINS) Update(accel, omega ins.Vector3, dt float64) error {
	if f.estBias {
		accel = accel.Sub(f.biasAccel)
		omega = omega.Sub(f.biasGyro)
	}

	fm, g, qDiag := f.systemJacobians(accel)
	n := f.StateDim()
	phi := matrix.Identity(n).AddEq(fm.ScaleEq(dt))
	for i := range qDiag {
		qDiag[i] *= dt
	}
	f.cov.TimeUpdate(phi, g, qDiag)
	f.lastPhi = phi

	f.nav.Update(accel, omega, dt)
	if !f.cov.P().AllFinite() {
		return ErrDiverged
	}
	return nil
}

// observation builds the measurement Jacobian, noise and residual for a
// GPS position/velocity fix, applying the lever-arm correction when
// provided.
func (f *FilteredINS) observation(sol GPSSolution, lever *LeverArm) (h, r, z matrix.Matrix) {
	n := f.StateDim()
	s := f.nav
	lat := s.Latitude()
	rm := ins.MeridianRadius(lat) + s.Height()
	rt := ins.TransverseRadius(lat) + s.Height()

	gLat, gLon, gH := sol.Lat, sol.Lon, sol.Height
	gV := ins.Vector3{sol.VN, sol.VE, sol.VD}
	if lever != nil {
		disp := s.Attitude().Rotate(lever.Arm)
		gLat -= disp[0] / rm
		gLon -= disp[1] / (rt * math.Cos(lat))
		gH += disp[2]
		gV = gV.Sub(s.Attitude().Rotate(lever.OmegaMean.Cross(lever.Arm)))
	}

	h = matrix.New(7, n)
	z = matrix.New(7, 1)
	r = matrix.New(7, 7)

	// velocity rows observe the velocity errors directly
	for i := 0; i < 3; i++ {
		h.Set(i, ixVelN+i, 1)
	}
	z.Set(0, 0, s.VNorth()-gV[0])
	z.Set(1, 0, s.VEast()-gV[1])
	z.Set(2, 0, s.VDown()-gV[2])

	// horizontal position expressed as a navigation-frame rotation of
	// the position quaternion (full angle; the states hold half angles)
	dLat := lat - gLat
	dLon := s.Longitude() - gLon
	z.Set(3, 0, dLon*math.Cos(lat))
	z.Set(4, 0, -dLat)
	z.Set(5, 0, -dLon*math.Sin(lat))
	for i := 0; i < 3; i++ {
		h.Set(3+i, ixPosQ0+i, 2)
	}

	z.Set(6, 0, s.Height()-gH)
	h.Set(6, ixHeight, 1)

	sigmaV := sol.SigmaVel * sol.SigmaVel
	sigmaAng := sol.Sigma2D / math.Sqrt2 / rm
	for i := 0; i < 3; i++ {
		r.Set(i, i, sigmaV)
		r.Set(3+i, 3+i, sigmaAng*sigmaAng)
	}
	r.Set(6, 6, sol.SigmaHeight*sol.SigmaHeight)
	return h, r, z
}

// Correct performs the EKF measurement update from a GPS fix, applies
// the estimated error to the navigation state, and returns it.
func (f *FilteredINS) Correct(sol GPSSolution, lever *LeverArm) (matrix.Matrix, error) {
	h, r, z := f.observation(sol, lever)
	dx, err := f.cov.MeasurementUpdate(h, r, z)
	if err != nil {
		return matrix.Matrix{}, err
	}
	f.ApplyErrorState(dx)
	return dx, nil
}

// CorrectYaw feeds a scalar heading error (the angle to add to the
// current yaw) into the filter with the given measurement variance.
func (f *FilteredINS) CorrectYaw(deltaYaw, variance float64) (matrix.Matrix, error) {
	n := f.StateDim()
	h := matrix.New(1, n)
	h.Set(0, ixAttQ2, 2)
	r := matrix.New(1, 1)
	r.Set(0, 0, variance)
	z := matrix.New(1, 1)
	z.Set(0, 0, -deltaYaw)
	dx, err := f.cov.MeasurementUpdate(h, r, z)
	if err != nil {
		return matrix.Matrix{}, err
	}
	f.ApplyErrorState(dx)
	return dx, nil
}

// ApplyErrorState subtracts an estimated error from the navigation state
// (and bias estimates when augmented).
func (f *FilteredINS) ApplyErrorState(dx matrix.Matrix) {
	dv := ins.Vector3{dx.At(ixVelN, 0), dx.At(ixVelE, 0), dx.At(ixVelD, 0)}
	eps := ins.Vector3{dx.At(ixPosQ0, 0), dx.At(ixPosQ1, 0), dx.At(ixPosQ2, 0)}.Scale(2)
	psi := ins.Vector3{dx.At(ixAttQ0, 0), dx.At(ixAttQ1, 0), dx.At(ixAttQ2, 0)}.Scale(2)
	f.nav.ApplyCorrection(dv, eps, dx.At(ixHeight, 0), psi)
	if f.estBias {
		for i := 0; i < 3; i++ {
			f.biasAccel[i] -= dx.At(ixBiasAccel+i, 0)
			f.biasGyro[i] -= dx.At(ixBiasGyro+i, 0)
		}
	}
}

// StdDev extracts per-state standard deviations from the covariance.
func (f *FilteredINS) StdDev() StdDev {
	p := f.cov.P()
	sq := func(i int) float64 { return math.Sqrt(math.Abs(p.At(i, i))) }
	lat := f.nav.Latitude()
	sd := StdDev{
		VNorth: sq(ixVelN), VEast: sq(ixVelE), VDown: sq(ixVelD),
		LatRad:  2 * sq(ixPosQ1),
		LonRad:  2 * sq(ixPosQ0) / math.Cos(lat),
		HeightM: sq(ixHeight),
		RollRad: 2 * sq(ixAttQ0), PitchRad: 2 * sq(ixAttQ1), HeadingRad: 2 * sq(ixAttQ2),
	}
	if f.estBias {
		for i := 0; i < 3; i++ {
			sd.BiasAccel[i] = sq(ixBiasAccel + i)
			sd.BiasGyro[i] = sq(ixBiasGyro + i)
		}
	}
	return sd
}
