package ins

import "math"

// Quaternion is a unit quaternion (w, x, y, z) representing a rotation.
type Quaternion [4]float64

// QuaternionIdentity is the no-rotation quaternion.
func QuaternionIdentity() Quaternion { return Quaternion{1, 0, 0, 0} }

// Mul returns the Hamilton product q * o.
func (q Quaternion) Mul(o Quaternion) Quaternion {
	return Quaternion{
		q[0]*o[0] - q[1]*o[1] - q[2]*o[2] - q[3]*o[3],
		q[0]*o[1] + q[1]*o[0] + q[2]*o[3] - q[3]*o[2],
		q[0]*o[2] - q[1]*o[3] + q[2]*o[0] + q[3]*o[1],
		q[0]*o[3] + q[1]*o[2] - q[2]*o[1] + q[3]*o[0],
	}
}

// Conj returns the conjugate (inverse for unit quaternions).
func (q Quaternion) Conj() Quaternion {
	return Quaternion{q[0], -q[1], -q[2], -q[3]}
}

// Normalize rescales to unit norm.
func (q Quaternion) Normalize() Quaternion {
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if n == 0 {
		return QuaternionIdentity()
	}
	return Quaternion{q[0] / n, q[1] / n, q[2] / n, q[3] / n}
}

// Rotate applies the rotation to v: q (0,v) q*.
func (q Quaternion) Rotate(v Vector3) Vector3 {
	p := Quaternion{0, v[0], v[1], v[2]}
	r := q.Mul(p).Mul(q.Conj())
	return Vector3{r[1], r[2], r[3]}
}

// FromRotationVector builds the quaternion for a rotation by |u| radians
// about u.
func FromRotationVector(u Vector3) Quaternion {
	angle := u.Norm()
	if angle < 1e-12 {
		return Quaternion{1, u[0] / 2, u[1] / 2, u[2] / 2}.Normalize()
	}
	s := math.Sin(angle/2) / angle
	return Quaternion{math.Cos(angle / 2), u[0] * s, u[1] * s, u[2] * s}
}

// FromEuler builds the body-to-NED attitude quaternion from aerospace
// yaw (psi), pitch (theta), roll (phi) in radians (Z-Y-X order).
func FromEuler(yaw, pitch, roll float64) Quaternion {
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	return Quaternion{
		cy*cp*cr + sy*sp*sr,
		cy*cp*sr - sy*sp*cr,
		cy*sp*cr + sy*cp*sr,
		sy*cp*cr - cy*sp*sr,
	}
}

// Euler extracts yaw, pitch, roll in radians from a body-to-NED attitude.
func (q Quaternion) Euler() (yaw, pitch, roll float64) {
	w, x, y, z := q[0], q[1], q[2], q[3]
	sinPitch := -2 * (x*z - w*y)
	if sinPitch > 1 {
		sinPitch = 1
	} else if sinPitch < -1 {
		sinPitch = -1
	}
	pitch = math.Asin(sinPitch)
	yaw = math.Atan2(2*(x*y+w*z), w*w+x*x-y*y-z*z)
	roll = math.Atan2(2*(y*z+w*x), w*w-x*x-y*y+z*z)
	return
}
