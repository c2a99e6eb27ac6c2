// Package nav drives the INS/GPS fusion: it orders the asynchronous
// sensor packet streams, initializes the filter from stationary
// assumptions, gates GPS measurement updates by quality thresholds and
// emits the navigation solutions.
package nav

import (
	"errors"
	"fmt"
	"math"
)

// SyncStrategy selects how GPS delay is compensated.
type SyncStrategy int

const (
	// SyncOffline sorts packets by time before application.
	SyncOffline SyncStrategy = iota
	// SyncBackPropagation sorts and additionally smooths recent states
	// backwards on each correction.
	SyncBackPropagation
	// SyncRealTime never sorts; late fixes are deferred into the next
	// sufficient time update.
	SyncRealTime
)

// AttitudeMode records how many initial attitude angles were given.
type AttitudeMode int

const (
	AttitudeNotGiven AttitudeMode = iota
	AttitudeYawOnly
	AttitudeYawPitch
	AttitudeFullGiven
)

// InitialAttitude is the manual attitude override, degrees.
type InitialAttitude struct {
	YawDeg, PitchDeg, RollDeg float64
	Mode                      AttitudeMode
}

// Parse consumes a "yaw[,pitch[,roll]]" spec.
func (a *InitialAttitude) Parse(spec string) error {
	n, err := fmt.Sscanf(spec, "%f,%f,%f", &a.YawDeg, &a.PitchDeg, &a.RollDeg)
	if n == 0 {
		if err != nil {
			return fmt.Errorf("invalid attitude spec %q", spec)
		}
		return fmt.Errorf("empty attitude spec")
	}
	a.Mode = AttitudeMode(n)
	return nil
}

// GPSThreshold carries the measurement gating levels in meters.
type GPSThreshold struct {
	InitAcc2D float64 // initial 2D accuracy gate
	InitAccV  float64 // initial vertical accuracy gate
	ContAcc2D float64 // continual 2D accuracy gate
}

// GPSTime is a week-qualified time of week; a negative week means
// unqualified.
type GPSTime struct {
	Week float64
	Sec  float64
}

// Options is the full configuration surface of a run.
type Options struct {
	// output selection
	DumpUpdate   bool
	DumpCorrect  bool
	DumpStdDev   bool
	OutIsNPacket bool

	// time stamping
	CalendarTime         bool
	CalendarCorrectionHr int

	// processing window; NaN seconds disable a bound
	StartGPST GPSTime
	EndGPST   GPSTime

	// navigation strategy
	Sync            SyncStrategy
	EstBias         bool
	UseUDKF         bool
	UseEGM          bool
	BPDepth         float64 // smoother depth, s
	RealTimeHorizon float64 // deferred fix drop horizon, s

	// GPS
	GPSFakeLock bool
	Threshold   GPSThreshold

	// magnetic sensor
	UseMagnet             bool
	MagHeadingAccuracyDeg float64
	YawCorrectSpeedMS     float64

	InitAttitude InitialAttitude
	Reduce1PPS   bool

	// sort buffer depth; half of it is drained per sort
	SortDepth int

	Verbose bool
}

// DefaultOptions mirrors the post-processor defaults.
func DefaultOptions() *Options {
	return &Options{
		DumpUpdate:            true,
		DumpCorrect:           false,
		StartGPST:             GPSTime{Week: -1, Sec: math.NaN()},
		EndGPST:               GPSTime{Week: -1, Sec: math.NaN()},
		EstBias:               true,
		BPDepth:               0.3,
		RealTimeHorizon:       1.0,
		Threshold:             GPSThreshold{InitAcc2D: 20, InitAccV: 10, ContAcc2D: 100},
		MagHeadingAccuracyDeg: 3,
		YawCorrectSpeedMS:     5,
		SortDepth:             512,
	}
}

// ErrConflictingModes flags mutually exclusive strategies.
var ErrConflictingModes = errors.New("nav: realtime and back_propagate are exclusive")

// Validate rejects unusable configurations.
func (o *Options) Validate() error {
	if o.SortDepth < 2 {
		return fmt.Errorf("nav: sort depth %d too small", o.SortDepth)
	}
	if o.BPDepth < 0 {
		return fmt.Errorf("nav: negative smoother depth %g", o.BPDepth)
	}
	if o.Sync == SyncBackPropagation && o.BPDepth == 0 {
		return fmt.Errorf("nav: back propagation requires a positive depth")
	}
	return nil
}

// AfterStart reports whether itow (with optional known week) has reached
// the start of the window.
func (o *Options) AfterStart(itow float64, week int) bool {
	if math.IsNaN(o.StartGPST.Sec) {
		return true
	}
	if o.StartGPST.Week >= 0 && week >= 0 {
		return float64(week)*WeekSeconds+itow >= o.StartGPST.Week*WeekSeconds+o.StartGPST.Sec
	}
	return itow >= o.StartGPST.Sec
}

// BeforeEnd reports whether itow is still inside the window.
func (o *Options) BeforeEnd(itow float64, week int) bool {
	if math.IsNaN(o.EndGPST.Sec) {
		return true
	}
	if o.EndGPST.Week >= 0 && week >= 0 {
		return float64(week)*WeekSeconds+itow <= o.EndGPST.Week*WeekSeconds+o.EndGPST.Sec
	}
	return itow <= o.EndGPST.Sec
}

// WeekSeconds is one GPS week in seconds.
const WeekSeconds = 7 * 24 * 60 * 60
