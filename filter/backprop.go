package filter

import (
	"insgps-go/ins"
	"insgps-go/matrix"
)

// Snapshot is one post-time-update filter state retained by the smoother.
// Offset is the state time relative to the most recent correction (zero
// or negative).
type Snapshot struct {
	Eng       Engine
	Offset    float64
	Corrected bool

	phi matrix.Matrix // transition from the previous snapshot to this one
	cum float64
}

// BackPropagate wraps an engine with a fixed-depth ring of snapshots and
// replays each correction backwards through the stored transition chain,
// yielding fixed-interval-smoother estimates for the recent window.
type BackPropagate struct {
	Engine
	Depth float64

	snaps []*Snapshot // newest first
	cum   float64
}

// NewBackPropagate wraps eng with a smoother of the given depth in
// seconds.
func NewBackPropagate(eng Engine, depth float64) *BackPropagate {
	return &BackPropagate{Engine: eng, Depth: depth}
}

func (b *BackPropagate) Update(accel, omega ins.Vector3, dt float64) error {
	if err := b.Engine.Update(accel, omega, dt); err != nil {
		return err
	}
	b.cum += dt
	b.snaps = append([]*Snapshot{{
		Eng: b.Engine.Clone(),
		phi: b.Engine.LastPhi().Copy(),
		cum: b.cum,
	}}, b.snaps...)
	b.prune()
	return nil
}

func (b *BackPropagate) prune() {
	for len(b.snaps) > 0 {
		last := b.snaps[len(b.snaps)-1]
		if b.cum-last.cum < b.Depth {
			break
		}
		b.snaps = b.snaps[:len(b.snaps)-1]
	}
}

// propagateBack replays the error estimate dx backwards through the
// snapshot chain. The estimate at an earlier snapshot is recovered by
// inverting each stored transition.
func (b *BackPropagate) propagateBack(dx matrix.Matrix) error {
	cur := dx
	for i, snap := range b.snaps {
		if i == 0 {
			// head: replace with the corrected present state
			snap.Eng = b.Engine.Clone()
			snap.Corrected = true
			continue
		}
		phi := b.snaps[i-1].phi
		inv, err := phi.Inverse()
		if err != nil {
			return err
		}
		cur = inv.Mul(cur)
		snap.Eng.ApplyErrorState(cur)
		snap.Corrected = false
	}
	for _, snap := range b.snaps {
		snap.Offset = snap.cum - b.cum
	}
	return nil
}

func (b *BackPropagate) Correct(sol GPSSolution, lever *LeverArm) (matrix.Matrix, error) {
	dx, err := b.Engine.Correct(sol, lever)
	if err != nil {
		return matrix.Matrix{}, err
	}
	if len(b.snaps) > 0 {
		if err := b.propagateBack(dx); err != nil {
			return matrix.Matrix{}, err
		}
	}
	return dx, nil
}

func (b *BackPropagate) CorrectYaw(deltaYaw, variance float64) (matrix.Matrix, error) {
	dx, err := b.Engine.CorrectYaw(deltaYaw, variance)
	if err != nil {
		return matrix.Matrix{}, err
	}
	if len(b.snaps) > 0 {
		if err := b.propagateBack(dx); err != nil {
			return matrix.Matrix{}, err
		}
	}
	return dx, nil
}

// Snapshots returns the retained window, newest first. The head is the
// measurement-updated state after a correction.
func (b *BackPropagate) Snapshots() []*Snapshot { return b.snaps }

func (b *BackPropagate) Clone() Engine {
	c := &BackPropagate{Engine: b.Engine.Clone(), Depth: b.Depth, cum: b.cum}
	for _, s := range b.snaps {
		c.snaps = append(c.snaps, &Snapshot{
			Eng: s.Eng.Clone(), Offset: s.Offset, Corrected: s.Corrected,
			phi: s.phi.Copy(), cum: s.cum,
		})
	}
	return c
}
