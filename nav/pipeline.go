package nav

import (
	"log"
	"math"

	"insgps-go/calib"
	"insgps-go/filter"
	"insgps-go/geomag"
	"insgps-go/ins"
	"insgps-go/pages"
)

// pipeline status. Once initialized the state never goes back.
const (
	statusUninitialized = iota
	statusJustInitialized
	statusTimeUpdated
	statusMeasurementUpdated
)

// Interval guard: a time-update step outside (0, 10) s is treated as a
// discontinuity and skipped.
const intervalThreshold = 10.0

// magOutlierThreshold rejects M packets whose early samples differ from
// the packet value by more than this many counts (modulo the 13-bit
// sensor wrap).
const (
	magOutlierThreshold = 200
	magWrap             = 4096 * 2
)

// Pipeline applies time-ordered packets to the filter engine: time
// updates from A packets, gated measurement updates from G packets,
// magnetic heading aiding from M packets.
type Pipeline struct {
	Opts *Options

	eng filter.Engine
	bp  *filter.BackPropagate
	rt  *filter.RealTime

	status      int
	minAForInit int
	recentA     []pages.APacket // newest last, bounded
	recentACap  int
	recentM     []pages.MPacket // newest last, bounded to 16

	conv    CalendarConverter
	emitter *Emitter
	week    int

	// done is set once the processing window is exhausted.
	done bool

	// gating counters, reported in verbose mode
	DroppedG, DroppedM int
}

// NewPipeline assembles the filter variant selected by the options and
// the calibration's noise figures.
func NewPipeline(opts *Options, cal calib.Standard, emitter *Emitter) *Pipeline {
	cfg := filter.DefaultConfig()
	cfg.UseUD = opts.UseUDKF
	cfg.EstimateBias = opts.EstBias
	cfg.SigmaAccel = cal.SigmaAccel()
	cfg.SigmaGyro = cal.SigmaGyro()
	base := filter.NewFilteredINS(cfg)
	if opts.UseEGM {
		base.INS().SetGravityModel(ins.GravityEGM)
	}

	p := &Pipeline{
		Opts:    opts,
		eng:     base,
		emitter: emitter,
		week:    -1,
	}
	switch opts.Sync {
	case SyncBackPropagation:
		p.bp = filter.NewBackPropagate(base, opts.BPDepth)
		p.eng = p.bp
	case SyncRealTime:
		p.rt = filter.NewRealTime(base, opts.RealTimeHorizon)
		p.eng = p.rt
	}

	p.minAForInit = 0x10
	if opts.InitAttitude.Mode == AttitudeFullGiven {
		p.minAForInit = 1
	}
	p.recentACap = p.minAForInit
	if p.recentACap < 0x100 {
		p.recentACap = 0x100
	}
	if emitter != nil {
		emitter.conv = &p.conv
	}
	return p
}

// Engine exposes the assembled filter.
func (p *Pipeline) Engine() filter.Engine { return p.eng }

// Initialized reports whether the filter has been activated.
func (p *Pipeline) Initialized() bool { return p.status >= statusJustInitialized }

// Done reports that the processing window has closed.
func (p *Pipeline) Done() bool { return p.done }

func (p *Pipeline) pushA(a pages.APacket) {
	if len(p.recentA) >= p.recentACap {
		copy(p.recentA, p.recentA[1:])
		p.recentA = p.recentA[:len(p.recentA)-1]
	}
	p.recentA = append(p.recentA, a)
}

func (p *Pipeline) pushM(m pages.MPacket) {
	if len(p.recentM) >= 0x10 {
		copy(p.recentM, p.recentM[1:])
		p.recentM = p.recentM[:len(p.recentM)-1]
	}
	p.recentM = append(p.recentM, m)
}

// timeUpdate advances the filter by dt from packet a, guarding against
// week rollover and discontinuities. It reports whether an update ran.
func (p *Pipeline) timeUpdate(a pages.APacket, dt float64) (bool, error) {
	if dt <= -(WeekSeconds / 2) {
		dt += WeekSeconds
	}
	if dt <= 0 || dt >= intervalThreshold {
		return false, nil
	}
	if err := p.eng.Update(a.Accel, a.Omega, dt); err != nil {
		return false, err
	}
	p.status = statusTimeUpdated
	return true, nil
}

// OnA performs a time update against the previous accelerometer packet.
func (p *Pipeline) OnA(a pages.APacket) error {
	if p.status >= statusJustInitialized && len(p.recentA) > 0 {
		prev := p.recentA[len(p.recentA)-1]
		updated, err := p.timeUpdate(a, pages.Interval(prev.T, a.T))
		if err != nil {
			return err
		}
		if updated {
			p.emit("TU", a.T)
		}
	}
	p.pushA(a)
	return nil
}

// OnM buffers a magnetic packet after outlier rejection.
func (p *Pipeline) OnM(m pages.MPacket) {
	for axis := 0; axis < 3; axis++ {
		for s := 0; s < 3; s++ {
			diff := m.Raw[axis][s] - m.Raw[axis][3]
			if diff < 0 {
				diff = -diff
			}
			if diff > magOutlierThreshold && diff < magWrap-magOutlierThreshold {
				p.DroppedM++
				return
			}
		}
	}
	p.pushM(m)
}

// OnTime absorbs week-number context.
func (p *Pipeline) OnTime(t pages.TimePacket) {
	p.conv.Update(t)
	if t.ValidWeekNum {
		p.week = t.WeekNum
	}
}

// magAt interpolates the buffered magnetic samples to itow. Extrapolation
// weight beyond 3 clamps to the nearest sample.
func (p *Pipeline) magAt(itow float64) ins.Vector3 {
	if len(p.recentM) < 2 {
		return ins.Vector3{1, 0, 0} // heading is north
	}
	i := 0
	for ; i < len(p.recentM)-2; i++ {
		if p.recentM[i+1].T >= itow {
			break
		}
	}
	a, b := p.recentM[i], p.recentM[i+1]
	wa := (b.T - itow) / (b.T - a.T)
	wb := 1 - wa
	if wa > 3 {
		wa, wb = 1, 0
	} else if wb > 3 {
		wa, wb = 0, 1
	}
	return a.Mag().Scale(wa).Add(b.Mag().Scale(wb))
}

// magDeltaYaw compares the de-rotated measured field with the model field
// at the current position and returns the yaw correction angle.
func (p *Pipeline) magDeltaYaw(mag ins.Vector3, att ins.Quaternion, itow float64) float64 {
	s := p.eng.INS()
	horizontal := att.Rotate(mag)
	model := geomag.At(s.Latitude(), s.Longitude(), s.Height(), p.conv.DecimalYear(itow))
	delta := math.Atan2(model.East, model.North) -
		math.Atan2(horizontal[1], horizontal[0])
	return math.Atan2(math.Sin(delta), math.Cos(delta))
}

// initialize activates the filter from the first accepted fix plus the
// static attitude estimate.
func (p *Pipeline) initialize(g pages.GPacket) {
	yaw := p.Opts.InitAttitude.YawDeg * math.Pi / 180
	pitch := p.Opts.InitAttitude.PitchDeg * math.Pi / 180
	roll := p.Opts.InitAttitude.RollDeg * math.Pi / 180

	if p.Opts.InitAttitude.Mode < AttitudeFullGiven {
		// static assumption: level attitude from the mean specific force
		var acc ins.Vector3
		for _, a := range p.recentA {
			acc = acc.Add(a.Accel)
		}
		acc = acc.Scale(1 / float64(len(p.recentA)))
		reg := acc.Neg().Scale(1 / acc.Norm())

		roll = math.Atan2(reg[1], reg[2])
		if p.Opts.InitAttitude.Mode < AttitudeYawPitch {
			pitch = -math.Asin(reg[0])
			if p.Opts.InitAttitude.Mode < AttitudeYawOnly {
				yaw = 0
				if len(p.recentM) > 0 {
					yaw = p.magDeltaYaw(p.magAt(g.T), ins.FromEuler(0, pitch, roll), g.T)
				}
			}
		}
	}

	log.Printf("init: %.10g", g.T)
	log.Printf("initial attitude (yaw, pitch, roll) [deg]: %g, %g, %g",
		yaw*180/math.Pi, pitch*180/math.Pi, roll*180/math.Pi)

	s := p.eng.INS()
	s.InitPosition(g.Lat, g.Lon, g.Height)
	s.InitVelocity(g.VN, g.VE, g.VD)
	s.InitAttitude(yaw, pitch, roll)
	p.status = statusJustInitialized
}

// replayAfterInit time-updates from the initializing fix through the
// buffered A packets newer than it, so the filter catches up to the newest
// accelerometer time.
func (p *Pipeline) replayAfterInit(g pages.GPacket) error {
	idx := len(p.recentA)
	for i := len(p.recentA) - 1; i >= 0; i-- {
		if pages.IntervalRollover(g.T, p.recentA[i].T) <= 0 {
			break
		}
		idx = i
	}
	prev := g.T
	for ; idx < len(p.recentA); idx++ {
		a := p.recentA[idx]
		if _, err := p.timeUpdate(a, pages.Interval(prev, a.T)); err != nil {
			return err
		}
		prev = a.T
	}
	return nil
}

func toSolution(g pages.GPacket) filter.GPSSolution {
	return filter.GPSSolution{
		Lat: g.Lat, Lon: g.Lon, Height: g.Height,
		VN: g.VN, VE: g.VE, VD: g.VD,
		Sigma2D: g.Sigma2D, SigmaHeight: g.SigmaHeight, SigmaVel: g.SigmaVel,
	}
}

// leverFor builds the lever-arm correction using the mean body rate over
// the 16 accelerometer packets nearest the fix time.
func (p *Pipeline) leverFor(g pages.GPacket) *filter.LeverArm {
	if g.LeverArm == nil {
		return nil
	}
	const group = 0x10
	i := 0
	for ; i < len(p.recentA)-group; i++ {
		if p.recentA[i+group/2].T >= g.T {
			break
		}
	}
	var mean ins.Vector3
	n := 0
	for ; n < group && i+n < len(p.recentA); n++ {
		mean = mean.Add(p.recentA[i+n].Omega)
	}
	if n > 0 {
		mean = mean.Scale(1 / float64(n))
	}
	return &filter.LeverArm{Arm: *g.LeverArm, OmegaMean: mean}
}

// OnG gates and applies a GPS measurement update, or initializes the
// filter when the gates for activation pass.
func (p *Pipeline) OnG(g pages.GPacket) error {
	if p.Opts.GPSFakeLock {
		g.Lat, g.Lon, g.Height = 0, 0, 0
		g.VN, g.VE, g.VD = 0, 0, 0
		g.Sigma2D, g.SigmaHeight = 10, 10
		g.SigmaVel = 1
	}
	if !p.Opts.AfterStart(g.T, p.week) {
		return nil
	}
	if !p.Opts.BeforeEnd(g.T, p.week) {
		p.done = true
		return nil
	}

	if g.Sigma2D >= p.Opts.Threshold.ContAcc2D {
		p.DroppedG++
		return nil
	}

	if p.status >= statusJustInitialized {
		log.Printf("MU: %.10g", g.T)
		advance := 0.0
		if len(p.recentA) > 0 {
			advance = pages.Interval(p.recentA[len(p.recentA)-1].T, g.T)
		}
		sol := toSolution(g)
		lever := p.leverFor(g)

		if p.rt != nil {
			if !p.rt.SetupCorrect(advance, sol, lever) {
				// deferred into the next sufficient time update
				return nil
			}
		} else if advance > 0 && len(p.recentA) > 0 {
			if _, err := p.timeUpdate(p.recentA[len(p.recentA)-1], advance); err != nil {
				return err
			}
		}

		if _, err := p.eng.Correct(sol, lever); err != nil {
			return err
		}
		if len(p.recentM) > 0 && p.Opts.YawCorrectSpeedMS > 0 &&
			g.VN*g.VN+g.VE*g.VE < p.Opts.YawCorrectSpeedMS*p.Opts.YawCorrectSpeedMS {
			delta := p.magDeltaYaw(p.magAt(g.T), p.eng.INS().Attitude(), g.T)
			sigma := p.Opts.MagHeadingAccuracyDeg * math.Pi / 180
			if _, err := p.eng.CorrectYaw(delta, sigma*sigma); err != nil {
				return err
			}
		}
		p.status = statusMeasurementUpdated
		p.emit("MU", g.T)
		return nil
	}

	// activation gates: enough inertial history, synchronized clocks and
	// a sufficiently accurate fix
	if len(p.recentA) >= p.minAForInit &&
		math.Abs(p.recentA[0].T-g.T) < 0.1*float64(len(p.recentA)) &&
		g.Sigma2D <= p.Opts.Threshold.InitAcc2D &&
		g.SigmaHeight <= p.Opts.Threshold.InitAccV {
		p.initialize(g)
		if err := p.replayAfterInit(g); err != nil {
			return err
		}
		p.emit("MU", g.T)
	}
	return nil
}

// emit forwards the current solution (or the smoother window) to the
// emitter.
func (p *Pipeline) emit(mode string, itow float64) {
	if p.emitter == nil {
		return
	}
	if p.bp != nil && mode == "MU" && p.status == statusMeasurementUpdated {
		base := itow
		if len(p.recentA) > 0 {
			base = p.recentA[len(p.recentA)-1].T
		}
		for _, snap := range p.bp.Snapshots() {
			if -snap.Offset >= p.Opts.BPDepth {
				break
			}
			if snap.Corrected {
				if p.Opts.DumpCorrect {
					p.emitter.Emit("BP_MU", base+snap.Offset, snap.Eng)
				}
			} else if p.Opts.DumpUpdate {
				p.emitter.Emit("BP_TU", base+snap.Offset, snap.Eng)
			}
		}
		return
	}
	if p.bp != nil && mode == "TU" {
		// smoothing defers emission to the next correction
		return
	}
	switch mode {
	case "TU":
		if p.Opts.DumpUpdate {
			p.emitter.Emit("TU", itow, p.eng)
		}
	case "MU":
		if p.Opts.DumpCorrect {
			p.emitter.Emit("MU", itow, p.eng)
		}
	}
}

// Apply dispatches one packet.
func (p *Pipeline) Apply(pkt pages.Packet) error {
	switch v := pkt.(type) {
	case pages.APacket:
		return p.OnA(v)
	case pages.GPacket:
		return p.OnG(v)
	case pages.MPacket:
		if p.Opts.UseMagnet {
			p.OnM(v)
		}
	case pages.TimePacket:
		p.OnTime(v)
	}
	return nil
}
