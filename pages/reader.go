package pages

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"insgps-go/calib"
	"insgps-go/ins"
)

// PageSize is the fixed frame length of the log stream.
const PageSize = 32

// Page tags.
const (
	TagA = 'A'
	TagG = 'G'
	TagM = 'M'
	TagT = 'T'
	TagN = 'N'
)

// Reader decodes the page stream into packets. Raw inertial counts pass
// through the configured calibration; pages with unknown tags are
// skipped.
type Reader struct {
	r     io.Reader
	Calib calib.Standard
	// LeverArm, when set, is attached to every decoded G packet.
	LeverArm *ins.Vector3
	buf      [PageSize]byte
	pages    int
}

// NewReader wraps r with the default calibration.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, Calib: calib.Default()}
}

// Pages returns the number of pages consumed so far.
func (rd *Reader) Pages() int { return rd.pages }

// Next returns the next decoded packet. io.EOF terminates the stream; a
// short final page is a stream error.
func (rd *Reader) Next() (Packet, error) {
	for {
		if _, err := io.ReadFull(rd.r, rd.buf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("pages: truncated page after %d pages: %w", rd.pages, err)
			}
			return nil, fmt.Errorf("pages: read: %w", err)
		}
		rd.pages++

		pkt, err := rd.decode(rd.buf[:])
		if err != nil {
			return nil, err
		}
		if pkt != nil {
			return pkt, nil
		}
	}
}

func itowFromMs(b []byte) float64 {
	return float64(binary.LittleEndian.Uint32(b)) * 1e-3
}

func (rd *Reader) decode(b []byte) (Packet, error) {
	switch b[0] {
	case TagA:
		return rd.decodeA(b), nil
	case TagG:
		g := decodeG(b)
		g.LeverArm = rd.LeverArm
		return g, nil
	case TagM:
		return decodeM(b), nil
	case TagT:
		return decodeT(b), nil
	default:
		return nil, nil
	}
}

// A page: tag(1) seq(1) itow_ms(4) ch0..ch5 uint16 (accel xyz, gyro xyz)
// temp uint16.
func (rd *Reader) decodeA(b []byte) APacket {
	raw := make([]int, 9)
	for i := 0; i < 6; i++ {
		raw[i] = int(binary.LittleEndian.Uint16(b[6+2*i:]))
	}
	raw[8] = int(binary.LittleEndian.Uint16(b[18:]))
	return APacket{
		T:     itowFromMs(b[2:]),
		Accel: rd.Calib.RawToAccel(raw),
		Omega: rd.Calib.RawToOmega(raw),
	}
}

// G page: tag(1) seq(1) itow_ms(4) lat(1e-7 deg, i32) lon(i32) h(mm, i32)
// vn ve vd (cm/s, i16) sigma2d(cm, u16) sigmah(cm, u16) sigmav(cm/s, u16).
func decodeG(b []byte) GPacket {
	const deg2rad = 3.14159265358979323846 / 180
	lat := float64(int32(binary.LittleEndian.Uint32(b[6:]))) * 1e-7 * deg2rad
	lon := float64(int32(binary.LittleEndian.Uint32(b[10:]))) * 1e-7 * deg2rad
	h := float64(int32(binary.LittleEndian.Uint32(b[14:]))) * 1e-3
	return GPacket{
		T:           itowFromMs(b[2:]),
		Lat:         lat,
		Lon:         lon,
		Height:      h,
		VN:          float64(int16(binary.LittleEndian.Uint16(b[18:]))) * 1e-2,
		VE:          float64(int16(binary.LittleEndian.Uint16(b[20:]))) * 1e-2,
		VD:          float64(int16(binary.LittleEndian.Uint16(b[22:]))) * 1e-2,
		Sigma2D:     float64(binary.LittleEndian.Uint16(b[24:])) * 1e-2,
		SigmaHeight: float64(binary.LittleEndian.Uint16(b[26:])) * 1e-2,
		SigmaVel:    float64(binary.LittleEndian.Uint16(b[28:])) * 1e-2,
	}
}

// M page: tag(1) seq(1) itow_ms(4) then 4 samples x 3 axes of int16.
func decodeM(b []byte) MPacket {
	p := MPacket{T: itowFromMs(b[2:])}
	off := 6
	for s := 0; s < 4; s++ {
		for axis := 0; axis < 3; axis++ {
			p.Raw[axis][s] = int(int16(binary.LittleEndian.Uint16(b[off:])))
			off += 2
		}
	}
	return p
}

// T page: tag(1) seq(1) itow_ms(4) week(u16) leap(i8) flags(1).
func decodeT(b []byte) TimePacket {
	flags := b[9]
	return TimePacket{
		T:            itowFromMs(b[2:]),
		WeekNum:      int(binary.LittleEndian.Uint16(b[6:])),
		LeapSec:      int(int8(b[8])),
		ValidWeekNum: flags&0x01 != 0,
		ValidLeapSec: flags&0x02 != 0,
	}
}
