package filter

import (
	"log"

	"insgps-go/ins"
)

// RealTime defers measurement updates that arrive with a time stamp
// behind the latest time update: the pending fix is absorbed by the next
// time update large enough to straddle it, split into an advance of
// delta-lag, the correction, and a re-advance of lag. The scheduler never
// sorts in this mode.
type RealTime struct {
	Engine
	// Horizon bounds the residual delay (fix lag minus the next step)
	// beyond which a pending measurement is dropped.
	Horizon float64

	pending *pendingCorrect
}

type pendingCorrect struct {
	sol   GPSSolution
	lever *LeverArm
	lag   float64
}

// NewRealTime wraps eng with the deferred-correction strategy.
func NewRealTime(eng Engine, horizon float64) *RealTime {
	if horizon <= 0 {
		horizon = 1.0
	}
	return &RealTime{Engine: eng, Horizon: horizon}
}

func (r *RealTime) Update(accel, omega ins.Vector3, dt float64) error {
	if p := r.pending; p != nil {
		r.pending = nil
		switch {
		case dt >= p.lag:
			// split the step at the fix time
			if head := dt - p.lag; head > 0 {
				if err := r.Engine.Update(accel, omega, head); err != nil {
					return err
				}
			}
			if _, err := r.Engine.Correct(p.sol, p.lever); err != nil {
				return err
			}
			return r.Engine.Update(accel, omega, p.lag)
		case p.lag-dt <= r.Horizon:
			// the step cannot reach back to the fix time; absorb the
			// residual delay at the start of the step
			if _, err := r.Engine.Correct(p.sol, p.lever); err != nil {
				return err
			}
		default:
			log.Printf("realtime: dropping deferred fix, delay %g s beyond horizon", p.lag)
		}
	}
	return r.Engine.Update(accel, omega, dt)
}

// SetupCorrect registers the timing of an incoming fix: advance is the
// fix time minus the latest accelerometer time. A non-negative advance
// corrects immediately (the caller proceeds); a negative advance defers
// the fix and reports false.
func (r *RealTime) SetupCorrect(advance float64, sol GPSSolution, lever *LeverArm) bool {
	if advance >= 0 {
		return true
	}
	r.pending = &pendingCorrect{sol: sol, lever: lever, lag: -advance}
	return false
}

func (r *RealTime) Clone() Engine {
	c := *r
	c.Engine = r.Engine.Clone()
	if r.pending != nil {
		p := *r.pending
		c.pending = &p
	}
	return &c
}
