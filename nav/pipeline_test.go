package nav

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insgps-go/calib"
	"insgps-go/geomag"
	"insgps-go/ins"
	"insgps-go/pages"
)

const deg = math.Pi / 180

func stationaryA(t float64) pages.APacket {
	g := ins.GravityNormal.Gravity(0, 0)
	return pages.APacket{
		T:     t,
		Accel: ins.Vector3{0, 0, -g},
		Omega: ins.Vector3{ins.EarthRate, 0, 0}, // what a perfect gyro senses
	}
}

func originG(t float64) pages.GPacket {
	return pages.GPacket{T: t, Sigma2D: 5, SigmaHeight: 5, SigmaVel: 5}
}

func newTestPipeline(opts *Options) *Pipeline {
	return NewPipeline(opts, calib.Default(), nil)
}

// Scenario: stationary logger, attitude from gravity. Roll and pitch must
// settle within half a degree; position must hold.
func TestScenarioStationary(t *testing.T) {
	opts := DefaultOptions()
	opts.EstBias = false
	pipe := newTestPipeline(opts)

	dt := 0.02
	tick := 0.0
	for step := 0; step < 50*60; step++ {
		tick += dt
		require.NoError(t, pipe.OnA(stationaryA(tick)))
		if step > 0 && step%50 == 0 {
			require.NoError(t, pipe.OnG(originG(tick)))
		}
	}
	require.True(t, pipe.Initialized())

	s := pipe.Engine().INS()
	_, pitch, roll := s.Euler()
	assert.InDelta(t, 0.0, pitch/deg, 0.5)
	assert.InDelta(t, 0.0, roll/deg, 0.5)
	assert.InDelta(t, 0.0, s.Latitude()*ins.SemiMajor, 10)
	assert.InDelta(t, 0.0, s.VNorth(), 0.5)
	assert.InDelta(t, 0.0, s.VEast(), 0.5)
}

// truthStep returns the body-frame inputs that hold the given truth state
// on its current velocity with level attitude.
func truthStep(truth *ins.INS) (accel, omega ins.Vector3) {
	omegaIE := truth.EarthRateN()
	omegaEN := truth.TransportRateN()
	cor := omegaIE.Scale(2).Add(omegaEN).Cross(truth.Velocity())
	fN := cor.Sub(ins.Vector3{0, 0, truth.GravityDown()})
	conj := truth.Attitude().Conj()
	return conj.Rotate(fN), conj.Rotate(omegaIE.Add(omegaEN))
}

// Scenario: constant 10 m/s northward motion with 1 Hz fixes. Position,
// velocity and heading must track.
func TestScenarioStraightLineNorth(t *testing.T) {
	opts := DefaultOptions()
	opts.EstBias = false
	pipe := newTestPipeline(opts)

	truth := ins.New()
	truth.InitPosition(0, 0, 0)
	truth.InitVelocity(10, 0, 0)
	truth.InitAttitude(0, 0, 0)

	dt := 0.02
	tick := 0.0
	for step := 0; step < 50*10; step++ {
		tick += dt
		accel, omega := truthStep(truth)
		truth.Update(accel, omega, dt)
		require.NoError(t, pipe.OnA(pages.APacket{T: tick, Accel: accel, Omega: omega}))
		if step%50 == 0 {
			require.NoError(t, pipe.OnG(pages.GPacket{
				T:   tick,
				Lat: truth.Latitude(), Lon: truth.Longitude(), Height: truth.Height(),
				VN: truth.VNorth(), VE: truth.VEast(), VD: truth.VDown(),
				Sigma2D: 5, SigmaHeight: 5, SigmaVel: 5,
			}))
		}
	}
	require.True(t, pipe.Initialized())

	s := pipe.Engine().INS()
	northErr := (s.Latitude() - truth.Latitude()) * (ins.MeridianRadius(0) + 0)
	assert.InDelta(t, 0.0, northErr, 2.0, "north position error m")
	assert.InDelta(t, 10.0, s.VNorth(), 0.5)
	assert.InDelta(t, 0.0, s.VEast(), 0.5)
	yaw, _, _ := s.Euler()
	assert.InDelta(t, 0.0, yaw/deg, 3.0)
}

// Scenario: magnetic heading aiding pulls a wrong initial yaw onto the
// true one while the vehicle is slow.
func TestScenarioMagneticYaw(t *testing.T) {
	opts := DefaultOptions()
	opts.EstBias = false
	opts.UseMagnet = true
	opts.YawCorrectSpeedMS = 0.1
	opts.InitAttitude = InitialAttitude{YawDeg: 0, Mode: AttitudeYawOnly}
	pipe := newTestPipeline(opts)

	trueYaw := 90 * deg
	trueAtt := ins.FromEuler(trueYaw, 0, 0)
	field := geomag.At(0, 0, 0, 2020)
	magN := ins.Vector3{field.North, field.East, field.Down}
	magB := trueAtt.Conj().Rotate(magN)
	mp := func(tm float64) pages.MPacket {
		var m pages.MPacket
		m.T = tm
		for axis := 0; axis < 3; axis++ {
			for s := 0; s < 4; s++ {
				m.Raw[axis][s] = int(magB[axis])
			}
		}
		return m
	}

	g := ins.GravityNormal.Gravity(0, 0)
	accelB := trueAtt.Conj().Rotate(ins.Vector3{0, 0, -g})
	omegaB := trueAtt.Conj().Rotate(ins.Vector3{ins.EarthRate, 0, 0})

	dt := 0.02
	tick := 0.0
	for step := 0; step < 50*10; step++ {
		tick += dt
		require.NoError(t, pipe.OnA(pages.APacket{T: tick, Accel: accelB, Omega: omegaB}))
		if step%10 == 0 {
			pipe.OnM(mp(tick))
		}
		if step > 0 && step%50 == 0 {
			require.NoError(t, pipe.OnG(originG(tick)))
		}
	}
	require.True(t, pipe.Initialized())

	yaw, _, _ := pipe.Engine().INS().Euler()
	assert.InDelta(t, 90.0, yaw/deg, 3.0)
}

// Scenario: one outlier sample kills the whole M packet.
func TestOutlierMPacketDropped(t *testing.T) {
	opts := DefaultOptions()
	opts.UseMagnet = true
	pipe := newTestPipeline(opts)

	var m pages.MPacket
	m.T = 1
	for axis := 0; axis < 3; axis++ {
		for s := 0; s < 4; s++ {
			m.Raw[axis][s] = 100
		}
	}
	m.Raw[0][0] = 5000
	pipe.OnM(m)
	assert.Equal(t, 1, pipe.DroppedM)
	assert.Empty(t, pipe.recentM)

	// a wrap-around difference is not an outlier
	var w pages.MPacket
	w.T = 2
	for axis := 0; axis < 3; axis++ {
		for s := 0; s < 4; s++ {
			w.Raw[axis][s] = 8100
		}
	}
	w.Raw[0][0] = 8100 - magWrap + 50
	pipe.OnM(w)
	assert.Len(t, pipe.recentM, 1)
}

// Discontinuity guard: steps outside (0, 10) s skip the update.
func TestTimeUpdateGuards(t *testing.T) {
	opts := DefaultOptions()
	opts.EstBias = false
	pipe := newTestPipeline(opts)

	tick := 0.0
	for i := 0; i < 20; i++ {
		tick += 0.02
		require.NoError(t, pipe.OnA(stationaryA(tick)))
	}
	require.NoError(t, pipe.OnG(originG(tick)))
	require.True(t, pipe.Initialized())

	h0 := pipe.Engine().INS().Height()
	// 30 s gap: skipped
	require.NoError(t, pipe.OnA(stationaryA(tick+30)))
	assert.Equal(t, h0, pipe.Engine().INS().Height())
	// zero or negative step: skipped
	require.NoError(t, pipe.OnA(stationaryA(tick + 30)))
	assert.Equal(t, h0, pipe.Engine().INS().Height())
}

// GPS fixes above the continual gate are dropped silently.
func TestGPSAccuracyGate(t *testing.T) {
	opts := DefaultOptions()
	opts.EstBias = false
	pipe := newTestPipeline(opts)

	tick := 0.0
	for i := 0; i < 20; i++ {
		tick += 0.02
		require.NoError(t, pipe.OnA(stationaryA(tick)))
	}

	bad := originG(tick)
	bad.Sigma2D = 150
	require.NoError(t, pipe.OnG(bad))
	assert.False(t, pipe.Initialized())
	assert.Equal(t, 1, pipe.DroppedG)

	// a fix above the init gate but below the continual gate does not
	// initialize either
	marginal := originG(tick)
	marginal.Sigma2D = 50
	require.NoError(t, pipe.OnG(marginal))
	assert.False(t, pipe.Initialized())

	require.NoError(t, pipe.OnG(originG(tick)))
	assert.True(t, pipe.Initialized())
}

// Scenario: realtime mode absorbs a late fix inside the next time update.
func TestScenarioRealTimeDeferred(t *testing.T) {
	opts := DefaultOptions()
	opts.EstBias = false
	opts.Sync = SyncRealTime
	pipe := newTestPipeline(opts)

	tick := 0.0
	for i := 0; i < 50; i++ {
		tick += 0.02
		require.NoError(t, pipe.OnA(stationaryA(tick)))
	}
	require.NoError(t, pipe.OnG(originG(tick)))
	require.True(t, pipe.Initialized())

	require.NoError(t, pipe.OnA(stationaryA(1.000)))
	// fix behind the latest A packet: deferred, no error
	require.NoError(t, pipe.OnG(originG(0.950)))
	// the next A packet is too short to reach back to the fix time and
	// absorbs it at the start of its step
	require.NoError(t, pipe.OnA(stationaryA(1.020)))

	s := pipe.Engine().INS()
	assert.True(t, math.Abs(s.Latitude()) < 1e-3)
}

// Scenario: smoother emission covers [t_mu - depth, t_mu].
func TestScenarioBackPropagateEmission(t *testing.T) {
	opts := DefaultOptions()
	opts.EstBias = false
	opts.Sync = SyncBackPropagation
	opts.BPDepth = 2.0
	opts.DumpUpdate = true
	opts.DumpCorrect = true

	var sink countingSink
	emitter := NewEmitter(opts, &sink)
	pipe := NewPipeline(opts, calib.Default(), emitter)

	dt := 0.02
	tick := 0.0
	for i := 0; i < 50; i++ {
		tick += dt
		require.NoError(t, pipe.OnA(stationaryA(tick)))
	}
	require.NoError(t, pipe.OnG(originG(tick)))
	require.True(t, pipe.Initialized())
	sink.reset()
	emitter.Rows = 0

	for i := 0; i < 50*4; i++ {
		tick += dt
		require.NoError(t, pipe.OnA(stationaryA(tick)))
	}
	require.NoError(t, pipe.OnG(originG(tick)))

	// 2 s of 50 Hz snapshots: one BP_MU head plus the BP_TU tail
	assert.InDelta(t, 100, emitter.Rows, 2)
	assert.Equal(t, 1, sink.count("BP_MU"))
	assert.InDelta(t, 99, sink.count("BP_TU"), 2)
}
