// Package pages reads and writes the logger's 32-byte page stream. Pages
// tagged 'A', 'G', 'M' and 'T' decode into the packet structures the
// fusion pipeline consumes; the writer emits framed N0 navigation
// records in the companion output format.
package pages

import (
	"math"

	"insgps-go/ins"
)

// WeekSeconds is one GPS week.
const WeekSeconds = 7 * 24 * 60 * 60

// Packet is one decoded log record with a GPS time-of-week stamp.
type Packet interface {
	Itow() float64
}

// Interval returns to - from without rollover handling.
func Interval(from, to float64) float64 { return to - from }

// IntervalRollover returns the interval between two time-of-week stamps
// reduced modulo one week into [-week/2, +week/2).
func IntervalRollover(from, to float64) float64 {
	delta := to - from
	return delta - math.Floor(delta/WeekSeconds+0.5)*WeekSeconds
}

// APacket carries calibrated inertial data.
type APacket struct {
	T     float64
	Accel ins.Vector3 // m/s^2, body frame
	Omega ins.Vector3 // rad/s, body frame
}

func (p APacket) Itow() float64 { return p.T }

// GPacket carries the external GPS solver output.
type GPacket struct {
	T           float64
	Lat, Lon    float64 // rad
	Height      float64 // m
	VN, VE, VD  float64 // m/s
	Sigma2D     float64 // m
	SigmaHeight float64 // m
	SigmaVel    float64 // m/s
	LeverArm    *ins.Vector3
}

func (p GPacket) Itow() float64 { return p.T }

// MPacket carries one magnetic page: four raw samples per axis. The
// fourth sample of each axis is the packet value; the scheduler uses the
// earlier ones for outlier rejection.
type MPacket struct {
	T   float64
	Raw [3][4]int
}

func (p MPacket) Itow() float64 { return p.T }

// Mag returns the packet field vector in raw counts.
func (p MPacket) Mag() ins.Vector3 {
	return ins.Vector3{float64(p.Raw[0][3]), float64(p.Raw[1][3]), float64(p.Raw[2][3])}
}

// TimePacket carries GPS week and leap-second context for calendar
// output.
type TimePacket struct {
	T            float64
	WeekNum      int
	LeapSec      int
	ValidWeekNum bool
	ValidLeapSec bool
}

func (p TimePacket) Itow() float64 { return p.T }
