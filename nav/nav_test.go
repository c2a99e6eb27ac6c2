package nav

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insgps-go/calib"
	"insgps-go/ins"
	"insgps-go/pages"
)

// countingSink collects emitted rows for inspection.
type countingSink struct {
	buf bytes.Buffer
}

func (c *countingSink) Write(p []byte) (int, error) { return c.buf.Write(p) }

func (c *countingSink) reset() { c.buf.Reset() }

func (c *countingSink) count(mode string) int {
	n := 0
	for _, line := range strings.Split(c.buf.String(), "\n") {
		if strings.HasPrefix(line, mode+",") {
			n++
		}
	}
	return n
}

func TestWeekRollover(t *testing.T) {
	// interval across the week boundary is +1 s, not -604799 s
	assert.InDelta(t, 1.0, pages.IntervalRollover(604799.5, 0.5), 1e-9)
	assert.InDelta(t, -1.0, pages.IntervalRollover(0.5, 604799.5), 1e-9)
	assert.InDelta(t, 5.0, pages.IntervalRollover(10, 15), 1e-9)
}

func TestSortBufferOrdersByRolloverTime(t *testing.T) {
	var applied []float64
	b := NewSortBuffer(8, func(p pages.Packet) error {
		applied = append(applied, p.Itow())
		return nil
	})

	times := []float64{3, 1, 4, 2, 6, 5, 8, 7}
	for _, tm := range times {
		require.NoError(t, b.Push(pages.APacket{T: tm}))
	}
	// watermark hit: oldest half applied in order
	assert.Equal(t, []float64{1, 2, 3, 4}, applied)
	require.NoError(t, b.Flush())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, applied)
}

func TestSortBufferWeekBoundary(t *testing.T) {
	var applied []float64
	b := NewSortBuffer(512, func(p pages.Packet) error {
		applied = append(applied, p.Itow())
		return nil
	})
	require.NoError(t, b.Push(pages.APacket{T: 0.5}))
	require.NoError(t, b.Push(pages.APacket{T: 604799.5}))
	require.NoError(t, b.Flush())
	// the pre-rollover packet is older despite the larger time of week
	assert.Equal(t, []float64{604799.5, 0.5}, applied)
}

func TestPPSFixer(t *testing.T) {
	var f PPSFixer
	a1 := f.Fix(pages.APacket{T: 10.00}).(pages.APacket)
	assert.Equal(t, 10.00, a1.T)
	// exactly one second ahead: pulled back
	a2 := f.Fix(pages.APacket{T: 11.02}).(pages.APacket)
	assert.InDelta(t, 10.02, a2.T, 1e-9)
	// normal cadence after the fix
	a3 := f.Fix(pages.APacket{T: 10.04}).(pages.APacket)
	assert.InDelta(t, 10.04, a3.T, 1e-9)

	// M packets are corrected independently
	var m pages.MPacket
	m.T = 20.0
	f.Fix(m)
	m.T = 21.5
	fixed := f.Fix(m).(pages.MPacket)
	assert.InDelta(t, 20.5, fixed.T, 1e-9)
}

func TestCalendarConverter(t *testing.T) {
	var c CalendarConverter
	assert.False(t, c.Valid())
	c.Update(pages.TimePacket{T: 0, WeekNum: 2086, LeapSec: 18, ValidWeekNum: true, ValidLeapSec: true})
	require.True(t, c.Valid())

	// week 2086 starts 2019-12-29 00:00:00 GPS; minus 18 leap seconds
	ct := c.Convert(0)
	assert.Equal(t, 2019, ct.Year)
	assert.Equal(t, 12, ct.Month)
	assert.Equal(t, 28, ct.Day)
	assert.Equal(t, 23, ct.Hour)
	assert.Equal(t, 59, ct.Min)
	assert.InDelta(t, 42, ct.Sec, 1e-9)

	y := c.DecimalYear(0)
	assert.InDelta(t, 2019.99, y, 0.02)
}

func TestOptionsValidate(t *testing.T) {
	opts := DefaultOptions()
	require.NoError(t, opts.Validate())

	opts.SortDepth = 1
	assert.Error(t, opts.Validate())

	opts = DefaultOptions()
	opts.Sync = SyncBackPropagation
	opts.BPDepth = 0
	assert.Error(t, opts.Validate())
}

func TestOptionsWindow(t *testing.T) {
	opts := DefaultOptions()
	assert.True(t, opts.AfterStart(0, -1))
	assert.True(t, opts.BeforeEnd(1e9, -1))

	opts.StartGPST = GPSTime{Week: -1, Sec: 100}
	opts.EndGPST = GPSTime{Week: -1, Sec: 200}
	assert.False(t, opts.AfterStart(99, -1))
	assert.True(t, opts.AfterStart(100, -1))
	assert.True(t, opts.BeforeEnd(200, -1))
	assert.False(t, opts.BeforeEnd(201, -1))

	opts.StartGPST = GPSTime{Week: 2086, Sec: 100}
	assert.False(t, opts.AfterStart(604000, 2085))
	assert.True(t, opts.AfterStart(100, 2086))
}

func TestEmitterHeaderAndRow(t *testing.T) {
	opts := DefaultOptions()
	opts.DumpStdDev = true
	var sink countingSink
	e := NewEmitter(opts, &sink)
	e.Label(true)

	header := strings.TrimSpace(sink.buf.String())
	assert.True(t, strings.HasPrefix(header,
		"mode,itow,lat_deg,lon_deg,h_m,v_n_ms,v_e_ms,v_d_ms,heading_deg,pitch_deg,roll_deg,bias_ax"))
	assert.Contains(t, header, "s1_heading_deg")
	assert.Contains(t, header, "s1_bias_gz")

	opts2 := DefaultOptions()
	opts2.CalendarTime = true
	var sink2 countingSink
	e2 := NewEmitter(opts2, &sink2)
	e2.Label(false)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(sink2.buf.String()),
		"mode,year,month,day,hour,min,sec,lat_deg"))
}

// End to end: an encoded page stream through Run produces solution rows.
func TestRunFromPages(t *testing.T) {
	cal := calib.Default()
	gravity := ins.GravityNormal.Gravity(0, 0)

	// raw counts that calibrate to a stationary body: accel z = -g
	var raw [6]uint16
	raw[0] = 32768
	raw[1] = 32768
	raw[2] = uint16(32768 + int(math.Round(-gravity*cal.Accel.SF[2])))
	raw[3] = 32768
	raw[4] = 32768
	raw[5] = 32768

	var stream bytes.Buffer
	tick := 0.0
	for step := 0; step < 50*5; step++ {
		tick += 0.02
		page := pages.EncodeAPage(tick, raw, 32768)
		stream.Write(page[:])
		if step > 0 && step%50 == 0 {
			gp := pages.EncodeGPage(pages.GPacket{
				T: tick, Sigma2D: 5, SigmaHeight: 5, SigmaVel: 5,
			})
			stream.Write(gp[:])
		}
	}

	opts := DefaultOptions()
	opts.EstBias = false
	opts.DumpCorrect = true
	var out countingSink
	require.NoError(t, Run(RunConfig{Opts: opts, Calib: cal, In: &stream, Out: &out}))

	assert.Greater(t, out.count("TU"), 100)
	assert.GreaterOrEqual(t, out.count("MU"), 3)
	assert.True(t, strings.HasPrefix(out.buf.String(), "mode,itow"))
}

// Packet-mode output frames one N0 record per update.
func TestRunNPacketMode(t *testing.T) {
	cal := calib.Default()
	var raw [6]uint16
	for i := range raw {
		raw[i] = 32768
	}
	gravity := ins.GravityNormal.Gravity(0, 0)
	raw[2] = uint16(32768 + int(math.Round(-gravity*cal.Accel.SF[2])))

	var stream bytes.Buffer
	tick := 0.0
	for step := 0; step < 100; step++ {
		tick += 0.02
		page := pages.EncodeAPage(tick, raw, 32768)
		stream.Write(page[:])
		if step == 60 {
			gp := pages.EncodeGPage(pages.GPacket{T: tick, Sigma2D: 5, SigmaHeight: 5, SigmaVel: 5})
			stream.Write(gp[:])
		}
	}

	opts := DefaultOptions()
	opts.EstBias = false
	opts.OutIsNPacket = true
	var out bytes.Buffer
	require.NoError(t, Run(RunConfig{Opts: opts, Calib: cal, In: &stream, Out: &out}))

	require.Greater(t, out.Len(), 0)
	assert.Zero(t, out.Len()%pages.PageSize, "N0 output must be page aligned")
	assert.Equal(t, byte(pages.TagN), out.Bytes()[0])
}
