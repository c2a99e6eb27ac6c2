// Package calib converts raw integer sensor samples to physical units via
// bias, temperature coefficient, scale factor and misalignment, and
// carries the per-axis noise used to populate the filter's input
// covariance. Parameters load from key/value lines in the logger's
// calibration file format.
package calib

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"insgps-go/ins"
)

// Triad is the calibration of one three-axis sensor.
type Triad struct {
	BiasTC    ins.Vector3    // bias temperature coefficient, counts per count
	BiasBase  ins.Vector3    // bias at the reference temperature, counts
	SF        ins.Vector3    // scale factor, counts per physical unit
	Alignment [3][3]float64  // misalignment compensation
	Sigma     ins.Vector3    // output noise, physical units
}

// Calibrate applies A * diag(1/s) * (raw - (b0 + btc*T)).
func (t *Triad) Calibrate(raw [3]float64, temp float64) ins.Vector3 {
	var tmp ins.Vector3
	for i := 0; i < 3; i++ {
		bias := t.BiasBase[i] + t.BiasTC[i]*temp
		tmp[i] = (raw[i] - bias) / t.SF[i]
	}
	var res ins.Vector3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			res[i] += t.Alignment[i][j] * tmp[j]
		}
	}
	return res
}

// Standard is the full IMU calibration: accelerometer and gyro triads
// plus the channel indices locating them in a raw sample vector.
type Standard struct {
	IndexBase   int
	IndexTempCh int
	Accel       Triad
	Gyro        Triad
}

// Default returns the stock MPU-6000/9250 calibration the logger ships
// with: 8 G accelerometer and 2000 dps gyro full scale, no temperature or
// misalignment compensation.
func Default() Standard {
	ident := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	return Standard{
		IndexBase:   0,
		IndexTempCh: 8,
		Accel: Triad{
			BiasBase:  ins.Vector3{32768, 32768, 32768},
			SF:        ins.Vector3{4.1767576e+2, 4.1767576e+2, 4.1767576e+2},
			Alignment: ident,
			Sigma:     ins.Vector3{0.05, 0.05, 0.05},
		},
		Gyro: Triad{
			BiasBase:  ins.Vector3{32768, 32768, 32768},
			SF:        ins.Vector3{9.3873405e+2, 9.3873405e+2, 9.3873405e+2},
			Alignment: ident,
			Sigma:     ins.Vector3{5e-3, 5e-3, 5e-3},
		},
	}
}

// RawToAccel converts one raw channel vector to acceleration in m/s^2.
func (c *Standard) RawToAccel(raw []int) ins.Vector3 {
	var v [3]float64
	for i := 0; i < 3; i++ {
		v[i] = float64(raw[c.IndexBase+i])
	}
	return c.Accel.Calibrate(v, float64(raw[c.IndexTempCh]))
}

// RawToOmega converts one raw channel vector to angular rate in rad/s.
func (c *Standard) RawToOmega(raw []int) ins.Vector3 {
	var v [3]float64
	for i := 0; i < 3; i++ {
		v[i] = float64(raw[c.IndexBase+3+i])
	}
	return c.Gyro.Calibrate(v, float64(raw[c.IndexTempCh]))
}

func (c *Standard) SigmaAccel() ins.Vector3 { return c.Accel.Sigma }
func (c *Standard) SigmaGyro() ins.Vector3  { return c.Gyro.Sigma }

// CheckSpec consumes one calibration line of the form "key v1 v2 ...".
// Unknown keys return false.
func (c *Standard) CheckSpec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	key, vals := fields[0], fields[1:]

	parseVec := func(dst *ins.Vector3) bool {
		if len(vals) < 3 {
			return false
		}
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(vals[i], 64)
			if err != nil {
				return false
			}
			dst[i] = v
		}
		return true
	}
	parseMat := func(dst *[3][3]float64) bool {
		if len(vals) < 9 {
			return false
		}
		for i := 0; i < 9; i++ {
			v, err := strconv.ParseFloat(vals[i], 64)
			if err != nil {
				return false
			}
			dst[i/3][i%3] = v
		}
		return true
	}

	switch key {
	case "index_base":
		if len(vals) < 1 {
			return false
		}
		v, err := strconv.Atoi(vals[0])
		if err != nil {
			return false
		}
		c.IndexBase = v
	case "index_temp_ch":
		if len(vals) < 1 {
			return false
		}
		v, err := strconv.Atoi(vals[0])
		if err != nil {
			return false
		}
		c.IndexTempCh = v
	case "acc_bias_tc":
		return parseVec(&c.Accel.BiasTC)
	case "acc_bias":
		return parseVec(&c.Accel.BiasBase)
	case "acc_sf":
		return parseVec(&c.Accel.SF)
	case "acc_mis":
		return parseMat(&c.Accel.Alignment)
	case "gyro_bias_tc":
		return parseVec(&c.Gyro.BiasTC)
	case "gyro_bias":
		return parseVec(&c.Gyro.BiasBase)
	case "gyro_sf":
		return parseVec(&c.Gyro.SF)
	case "gyro_mis":
		return parseMat(&c.Gyro.Alignment)
	case "sigma_accel":
		return parseVec(&c.Accel.Sigma)
	case "sigma_gyro":
		return parseVec(&c.Gyro.Sigma)
	default:
		return false
	}
	return true
}

// Load reads a calibration file, one key/value spec per line.
func (c *Standard) Load(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !c.CheckSpec(line) {
			return fmt.Errorf("calib: unknown parameter %q", line)
		}
	}
	return sc.Err()
}
