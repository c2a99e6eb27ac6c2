package ins

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const deg = math.Pi / 180

func TestQuaternionEulerRoundTrip(t *testing.T) {
	cases := [][3]float64{
		{0, 0, 0},
		{45 * deg, 10 * deg, -20 * deg},
		{-170 * deg, -60 * deg, 90 * deg},
		{90 * deg, 0, 0},
	}
	for _, c := range cases {
		q := FromEuler(c[0], c[1], c[2])
		yaw, pitch, roll := q.Euler()
		assert.InDelta(t, c[0], yaw, 1e-12)
		assert.InDelta(t, c[1], pitch, 1e-12)
		assert.InDelta(t, c[2], roll, 1e-12)
	}
}

func TestQuaternionRotate(t *testing.T) {
	// yaw 90 deg maps body x to east
	q := FromEuler(90*deg, 0, 0)
	v := q.Rotate(Vector3{1, 0, 0})
	assert.InDelta(t, 0, v[0], 1e-12)
	assert.InDelta(t, 1, v[1], 1e-12)
	assert.InDelta(t, 0, v[2], 1e-12)

	// conjugate inverts
	back := q.Conj().Rotate(v)
	assert.InDelta(t, 1, back[0], 1e-12)
}

func TestFromRotationVector(t *testing.T) {
	u := Vector3{0, 0, math.Pi / 2}
	q := FromRotationVector(u)
	v := q.Rotate(Vector3{1, 0, 0})
	assert.InDelta(t, 0, v[0], 1e-12)
	assert.InDelta(t, 1, v[1], 1e-12)

	// small-angle path
	tiny := FromRotationVector(Vector3{1e-14, 0, 0})
	assert.InDelta(t, 1, tiny[0], 1e-12)
}

func TestEarthRadii(t *testing.T) {
	// equator
	assert.InDelta(t, 6335439, MeridianRadius(0), 1)
	assert.InDelta(t, SemiMajor, TransverseRadius(0), 1e-6)
	// pole: both approach a/sqrt(1-e2)
	polar := SemiMajor / math.Sqrt(1-Eccentricity2)
	assert.InDelta(t, polar, TransverseRadius(math.Pi/2), 1)
}

func TestGravity(t *testing.T) {
	g0 := GravityNormal.Gravity(0, 0)
	assert.InDelta(t, 9.78033, g0, 1e-4)
	gPole := GravityNormal.Gravity(math.Pi/2, 0)
	assert.InDelta(t, 9.83218, gPole, 1e-4)
	// gravity decreases with height
	assert.Less(t, GravityNormal.Gravity(0, 1000), g0)
	// the EGM expansion stays close to the normal model near the ellipsoid
	assert.InDelta(t, g0, GravityEGM.Gravity(0, 0), 1e-3)
}

func TestStationaryMechanization(t *testing.T) {
	s := New()
	s.InitPosition(35*deg, 139*deg, 50)
	s.InitVelocity(0, 0, 0)
	s.InitAttitude(0, 0, 0)

	g := s.GravityDown()
	accel := Vector3{0, 0, -g}
	omega := s.Attitude().Conj().Rotate(s.EarthRateN())

	for i := 0; i < 50*10; i++ {
		// re-derive the ideal sensor outputs as the state evolves
		g = s.GravityDown()
		accel = s.Attitude().Conj().Rotate(Vector3{0, 0, -g})
		omega = s.Attitude().Conj().Rotate(s.EarthRateN().Add(s.TransportRateN()))
		s.Update(accel, omega, 0.02)
	}

	assert.InDelta(t, 35*deg, s.Latitude(), 1e-6)
	assert.InDelta(t, 139*deg, s.Longitude(), 1e-6)
	assert.InDelta(t, 50, s.Height(), 1)
	assert.InDelta(t, 0, s.Velocity().Norm(), 0.1)
	_, pitch, roll := s.Euler()
	assert.InDelta(t, 0, pitch, 1e-3)
	assert.InDelta(t, 0, roll, 1e-3)
}

func TestNorthwardMotionAdvancesLatitude(t *testing.T) {
	s := New()
	s.InitPosition(0, 0, 0)
	s.InitVelocity(10, 0, 0)
	s.InitAttitude(0, 0, 0)

	for i := 0; i < 100; i++ {
		omegaIE := s.EarthRateN()
		omegaEN := s.TransportRateN()
		cor := omegaIE.Scale(2).Add(omegaEN).Cross(s.Velocity())
		fN := cor.Sub(Vector3{0, 0, s.GravityDown()})
		conj := s.Attitude().Conj()
		s.Update(conj.Rotate(fN), conj.Rotate(omegaIE.Add(omegaEN)), 0.1)
	}
	// 10 s at 10 m/s: 100 m north
	assert.InDelta(t, 100, s.Latitude()*(MeridianRadius(0)), 1.0)
	assert.InDelta(t, 10, s.VNorth(), 0.05)
}

func TestApplyCorrection(t *testing.T) {
	s := New()
	s.InitPosition(0, 0, 100)
	s.InitVelocity(1, 2, 3)
	s.InitAttitude(0, 0, 0)

	// pretend the filter estimated the INS 1 m/s fast north and 10 m high
	s.ApplyCorrection(Vector3{1, 0, 0}, Vector3{}, 10, Vector3{})
	assert.InDelta(t, 0, s.VNorth(), 1e-12)
	assert.InDelta(t, 90, s.Height(), 1e-12)

	// a positive longitude rotation error pulls longitude back
	eps := Vector3{1e-5, 0, 0} // eps_x = dLon * cos(lat)
	s.ApplyCorrection(Vector3{}, eps, 0, Vector3{})
	assert.InDelta(t, -1e-5, s.Longitude(), 1e-9)

	// heading error: psi_z positive means computed heading too large
	s.ApplyCorrection(Vector3{}, Vector3{}, 0, Vector3{0, 0, 0.1})
	yaw, _, _ := s.Euler()
	assert.InDelta(t, -0.1, yaw, 1e-6)
}

func TestPositionQuaternionConsistent(t *testing.T) {
	s := New()
	s.InitPosition(30*deg, 60*deg, 0)
	q := s.PositionQuaternion()
	// rotating the ECEF z axis into the navigation frame must give the
	// down component -sin(lat)
	down := q.Conj().Rotate(Vector3{0, 0, 1})
	assert.InDelta(t, math.Cos(30*deg), down[0], 1e-9)
	assert.InDelta(t, -math.Sin(30*deg), down[2], 1e-9)
}
