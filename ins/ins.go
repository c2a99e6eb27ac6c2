package ins

import "math"

// INS holds the strap-down navigation state: geodetic position, NED
// velocity and the body-to-NED attitude quaternion. Position is also
// exposed as an earth-to-navigation quaternion with a wander-azimuth
// angle so the error filter can treat it as a delta rotation without a
// polar singularity.
type INS struct {
	lat, lon, h   float64
	vN, vE, vD    float64
	att           Quaternion
	wander        float64
	gravity       GravityModel
}

// New returns an INS at the origin with identity attitude.
func New() *INS {
	return &INS{att: QuaternionIdentity()}
}

func (s *INS) SetGravityModel(g GravityModel) { s.gravity = g }

func (s *INS) InitPosition(lat, lon, h float64) {
	s.lat, s.lon, s.h = lat, lon, h
}

func (s *INS) InitVelocity(vN, vE, vD float64) {
	s.vN, s.vE, s.vD = vN, vE, vD
}

func (s *INS) InitAttitude(yaw, pitch, roll float64) {
	s.att = FromEuler(yaw, pitch, roll)
	s.wander = 0
}

func (s *INS) Latitude() float64  { return s.lat }
func (s *INS) Longitude() float64 { return s.lon }
func (s *INS) Height() float64    { return s.h }
func (s *INS) VNorth() float64    { return s.vN }
func (s *INS) VEast() float64     { return s.vE }
func (s *INS) VDown() float64     { return s.vD }

// Velocity returns the NED velocity vector.
func (s *INS) Velocity() Vector3 { return Vector3{s.vN, s.vE, s.vD} }

// Attitude returns the body-to-NED quaternion.
func (s *INS) Attitude() Quaternion { return s.att }

// Euler returns true heading, pitch and roll in radians.
func (s *INS) Euler() (yaw, pitch, roll float64) { return s.att.Euler() }

// Heading returns the true heading in radians.
func (s *INS) Heading() float64 {
	yaw, _, _ := s.att.Euler()
	return yaw
}

// Azimuth returns the wander-azimuth angle of the navigation frame.
func (s *INS) Azimuth() float64 { return s.wander }

// PositionQuaternion returns the earth-to-navigation rotation composed of
// longitude, latitude and the wander-azimuth angle.
func (s *INS) PositionQuaternion() Quaternion {
	qLon := Quaternion{math.Cos(s.lon / 2), 0, 0, math.Sin(s.lon / 2)}
	half := -(math.Pi/2 + s.lat) / 2
	qLat := Quaternion{math.Cos(half), 0, math.Sin(half), 0}
	qWander := Quaternion{math.Cos(s.wander / 2), 0, 0, math.Sin(s.wander / 2)}
	return qLon.Mul(qLat).Mul(qWander).Normalize()
}

// EarthRateN returns the Earth rotation rate resolved in the NED frame.
func (s *INS) EarthRateN() Vector3 {
	return Vector3{EarthRate * math.Cos(s.lat), 0, -EarthRate * math.Sin(s.lat)}
}

// TransportRateN returns the navigation-frame transport rate at the
// current position and velocity.
func (s *INS) TransportRateN() Vector3 {
	rm := MeridianRadius(s.lat) + s.h
	rt := TransverseRadius(s.lat) + s.h
	return Vector3{
		s.vE / rt,
		-s.vN / rm,
		-s.vE * math.Tan(s.lat) / rt,
	}
}

// GravityDown returns gravity magnitude at the current position.
func (s *INS) GravityDown() float64 {
	return s.gravity.Gravity(s.lat, s.h)
}

// SpecificForceN rotates a body-frame specific force into NED.
func (s *INS) SpecificForceN(accel Vector3) Vector3 {
	return s.att.Rotate(accel)
}

// Update integrates one strap-down step of duration dt from body-frame
// specific force accel [m/s^2] and angular rate omega [rad/s].
func (s *INS) Update(accel, omega Vector3, dt float64) {
	omegaIE := s.EarthRateN()
	omegaEN := s.TransportRateN()
	omegaIN := omegaIE.Add(omegaEN)

	// attitude: integrate the body rate relative to the navigation frame
	omegaNB := omega.Sub(s.att.Conj().Rotate(omegaIN))
	s.att = s.att.Mul(FromRotationVector(omegaNB.Scale(dt))).Normalize()

	// velocity: specific force in NED minus Coriolis plus gravity
	fN := s.att.Rotate(accel)
	coriolis := omegaIE.Scale(2).Add(omegaEN).Cross(s.Velocity())
	g := s.GravityDown()
	vDot := fN.Sub(coriolis).Add(Vector3{0, 0, g})
	s.vN += vDot[0] * dt
	s.vE += vDot[1] * dt
	s.vD += vDot[2] * dt

	// position: latitude/longitude through the radii of curvature
	rm := MeridianRadius(s.lat) + s.h
	rt := TransverseRadius(s.lat) + s.h
	s.lat += s.vN / rm * dt
	s.lon += s.vE / (rt * math.Cos(s.lat)) * dt
	s.h -= s.vD * dt
}

// ApplyCorrection subtracts an estimated error state from the navigation
// solution: dv is the NED velocity error, eps the position error as a
// navigation-frame rotation vector, dh the height error and psi the
// attitude error as a navigation-frame rotation vector (all INS minus
// truth).
func (s *INS) ApplyCorrection(dv, eps Vector3, dh float64, psi Vector3) {
	s.vN -= dv[0]
	s.vE -= dv[1]
	s.vD -= dv[2]

	dLat := -eps[1]
	dLon := eps[0] / math.Cos(s.lat)
	s.lat -= dLat
	s.lon -= dLon
	s.h -= dh

	s.att = FromRotationVector(psi.Neg()).Mul(s.att).Normalize()
}

// Clone returns an independent deep copy of the state.
func (s *INS) Clone() *INS {
	c := *s
	return &c
}
