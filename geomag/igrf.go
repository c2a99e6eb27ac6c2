// Package geomag evaluates a low-degree IGRF-13 geomagnetic field model
// as a pure function of position and time. The truncation (degree 2) is
// sufficient for heading-aiding: declination error stays well under the
// magnetic heading measurement noise.
package geomag

import "math"

// Schmidt semi-normalized IGRF-13 coefficients, epoch 2020.0, with linear
// secular variation per year. Units nT.
var igrf13 = []struct {
	n, m   int
	g, h   float64
	gv, hv float64
}{
	{1, 0, -29404.8, 0, 5.7, 0},
	{1, 1, -1450.9, 4652.5, 7.4, -25.9},
	{2, 0, -2499.6, 0, -11.0, 0},
	{2, 1, 2982.0, -2991.6, -7.0, -30.2},
	{2, 2, 1677.0, -734.6, -2.1, -22.4},
}

const epoch = 2020.0

// referenceRadius is the magnetic reference sphere radius in km.
const referenceRadius = 6371.2

// Field holds the geomagnetic field components in the local NED frame,
// in nanotesla.
type Field struct {
	North, East, Down float64
}

// Declination returns the angle from true north to magnetic north, in
// radians, positive east.
func (f Field) Declination() float64 {
	return math.Atan2(f.East, f.North)
}

// At evaluates the field at geodetic latitude and longitude (radians),
// ellipsoidal height (m) and decimal year. The geodetic latitude is used
// directly as the geocentric one; no geodetic-to-geocentric correction is
// applied.
func At(lat, lon, h, year float64) Field {
	// geocentric approximation of the position
	r := referenceRadius + h/1000
	theta := math.Pi/2 - lat // geocentric colatitude
	ct, st := math.Cos(theta), math.Sin(theta)

	dt := year - epoch
	ar := referenceRadius / r

	var br, bt, bp float64
	for _, c := range igrf13 {
		g := c.g + c.gv*dt
		hh := c.h + c.hv*dt
		cm := math.Cos(float64(c.m) * lon)
		sm := math.Sin(float64(c.m) * lon)
		p, dp := schmidt(c.n, c.m, ct, st)
		f := math.Pow(ar, float64(c.n)+2)
		br += f * float64(c.n+1) * (g*cm + hh*sm) * p
		bt -= f * (g*cm + hh*sm) * dp
		if st > 1e-9 {
			bp -= f * float64(c.m) * (-g*sm + hh*cm) * p / st
		}
	}
	// spherical (r, theta, phi) to NED
	return Field{North: -bt, East: bp, Down: -br}
}

// schmidt returns the Schmidt semi-normalized associated Legendre
// function P(n,m) and its derivative with respect to theta, for the low
// degrees the model carries.
func schmidt(n, m int, ct, st float64) (p, dp float64) {
	switch {
	case n == 1 && m == 0:
		return ct, -st
	case n == 1 && m == 1:
		return st, ct
	case n == 2 && m == 0:
		return 1.5*ct*ct - 0.5, -3 * ct * st
	case n == 2 && m == 1:
		k := math.Sqrt(3)
		return k * ct * st, k * (ct*ct - st*st)
	case n == 2 && m == 2:
		k := math.Sqrt(3) / 2
		return k * st * st, 2 * k * st * ct
	}
	return 0, 0
}
