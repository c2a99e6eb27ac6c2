package nav

import (
	"fmt"
	"io"
	"math"
	"strings"

	"insgps-go/filter"
	"insgps-go/pages"
)

// Emitter renders navigation solutions either as comma-separated rows or
// as framed N0 packets, per the configured output mode.
type Emitter struct {
	opts *Options
	w    io.Writer
	n0   *pages.N0Writer
	conv *CalendarConverter

	// Rows counts emitted solution rows, header excluded.
	Rows int
}

// NewEmitter writes to w in the mode the options select.
func NewEmitter(opts *Options, w io.Writer) *Emitter {
	e := &Emitter{opts: opts, w: w}
	if opts.OutIsNPacket {
		e.n0 = pages.NewN0Writer(w)
	}
	return e
}

// Label writes the header row for the tabular mode.
func (e *Emitter) Label(biases bool) {
	if e.opts.OutIsNPacket {
		return
	}
	cols := []string{"mode"}
	if e.opts.CalendarTime {
		cols = append(cols, "year", "month", "day", "hour", "min", "sec")
	} else {
		cols = append(cols, "itow")
	}
	cols = append(cols,
		"lat_deg", "lon_deg", "h_m",
		"v_n_ms", "v_e_ms", "v_d_ms",
		"heading_deg", "pitch_deg", "roll_deg")
	if biases {
		cols = append(cols,
			"bias_ax", "bias_ay", "bias_az",
			"bias_gx", "bias_gy", "bias_gz")
	}
	if e.opts.DumpStdDev {
		cols = append(cols,
			"s1_lat_deg", "s1_lon_deg", "s1_h_m",
			"s1_v_n_ms", "s1_v_e_ms", "s1_v_d_ms",
			"s1_heading_deg", "s1_pitch_deg", "s1_roll_deg")
		if biases {
			cols = append(cols,
				"s1_bias_ax", "s1_bias_ay", "s1_bias_az",
				"s1_bias_gx", "s1_bias_gy", "s1_bias_gz")
		}
	}
	fmt.Fprintln(e.w, strings.Join(cols, ","))
}

const outRad2Deg = 180 / math.Pi

// Emit writes one solution row (or N0 record) for the engine state at
// itow.
func (e *Emitter) Emit(mode string, itow float64, eng filter.Engine) {
	s := eng.INS()
	yaw, pitch, roll := s.Euler()

	if e.n0 != nil {
		_ = e.n0.Write(pages.N0Record{
			Itow: itow,
			Lat:  s.Latitude(), Lon: s.Longitude(), Height: s.Height(),
			VN: s.VNorth(), VE: s.VEast(), VD: s.VDown(),
			Heading: yaw, Pitch: pitch, Roll: roll,
		})
		e.Rows++
		return
	}

	var sb strings.Builder
	sb.WriteString(mode)
	sb.WriteByte(',')
	if e.opts.CalendarTime && e.conv != nil {
		c := e.conv.Convert(itow)
		fmt.Fprintf(&sb, "%d,%d,%d,%d,%d,%.10g",
			c.Year, c.Month, c.Day, c.Hour, c.Min, c.Sec)
	} else {
		fmt.Fprintf(&sb, "%.10g", itow)
	}
	fmt.Fprintf(&sb, ",%.10g,%.10g,%.10g,%.10g,%.10g,%.10g,%.10g,%.10g,%.10g",
		s.Latitude()*outRad2Deg, s.Longitude()*outRad2Deg, s.Height(),
		s.VNorth(), s.VEast(), s.VDown(),
		yaw*outRad2Deg, pitch*outRad2Deg, roll*outRad2Deg)

	ba, bg, hasBias := eng.Biases()
	if hasBias {
		fmt.Fprintf(&sb, ",%.10g,%.10g,%.10g,%.10g,%.10g,%.10g",
			ba[0], ba[1], ba[2], bg[0], bg[1], bg[2])
	}
	if e.opts.DumpStdDev {
		sd := eng.StdDev()
		fmt.Fprintf(&sb, ",%.10g,%.10g,%.10g,%.10g,%.10g,%.10g,%.10g,%.10g,%.10g",
			sd.LatRad*outRad2Deg, sd.LonRad*outRad2Deg, sd.HeightM,
			sd.VNorth, sd.VEast, sd.VDown,
			sd.HeadingRad*outRad2Deg, sd.PitchRad*outRad2Deg, sd.RollRad*outRad2Deg)
		if hasBias {
			fmt.Fprintf(&sb, ",%.10g,%.10g,%.10g,%.10g,%.10g,%.10g",
				sd.BiasAccel[0], sd.BiasAccel[1], sd.BiasAccel[2],
				sd.BiasGyro[0], sd.BiasGyro[1], sd.BiasGyro[2])
		}
	}
	fmt.Fprintln(e.w, sb.String())
	e.Rows++
}
