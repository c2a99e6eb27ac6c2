package pages

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
)

// N0Record is one navigation solution in the logger's companion output
// format.
type N0Record struct {
	Itow          float64
	Lat, Lon      float64 // rad
	Height        float64 // m
	VN, VE, VD    float64 // m/s
	Heading       float64 // rad
	Pitch, Roll   float64 // rad
}

// N0Writer emits 32-byte framed N0 records. It serializes writers
// sharing one underlying stream.
type N0Writer struct {
	mu  sync.Mutex
	w   io.Writer
	buf [PageSize]byte
}

func NewN0Writer(w io.Writer) *N0Writer {
	return &N0Writer{w: w}
}

const rad2deg = 180 / math.Pi

// Write frames one record. Byte order is little endian throughout,
// matching the input pages.
func (nw *N0Writer) Write(rec N0Record) error {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	b := nw.buf[:]
	for i := range b {
		b[i] = 0
	}
	b[0] = TagN
	b[1] = 0 // N page subtype: navigation solution
	binary.LittleEndian.PutUint32(b[2:], uint32(math.Round(rec.Itow*1e3)))
	binary.LittleEndian.PutUint32(b[6:], uint32(int32(math.Round(rec.Lat*rad2deg*1e7))))
	binary.LittleEndian.PutUint32(b[10:], uint32(int32(math.Round(rec.Lon*rad2deg*1e7))))
	binary.LittleEndian.PutUint32(b[14:], uint32(int32(math.Round(rec.Height*1e3))))
	binary.LittleEndian.PutUint16(b[18:], uint16(int16(math.Round(rec.VN*1e2))))
	binary.LittleEndian.PutUint16(b[20:], uint16(int16(math.Round(rec.VE*1e2))))
	binary.LittleEndian.PutUint16(b[22:], uint16(int16(math.Round(rec.VD*1e2))))
	binary.LittleEndian.PutUint16(b[24:], uint16(int16(math.Round(rec.Heading*rad2deg*1e2))))
	binary.LittleEndian.PutUint16(b[26:], uint16(int16(math.Round(rec.Pitch*rad2deg*1e2))))
	binary.LittleEndian.PutUint16(b[28:], uint16(int16(math.Round(rec.Roll*rad2deg*1e2))))

	_, err := nw.w.Write(b)
	return err
}

// Page encoders for the input tags. They write the layouts the reader's
// decoders parse (A pages carry raw counts, which the decoder calibrates)
// and are used by the tests.

// EncodeAPage frames raw inertial counts.
func EncodeAPage(itow float64, raw [6]uint16, temp uint16) [PageSize]byte {
	var b [PageSize]byte
	b[0] = TagA
	binary.LittleEndian.PutUint32(b[2:], uint32(math.Round(itow*1e3)))
	for i, v := range raw {
		binary.LittleEndian.PutUint16(b[6+2*i:], v)
	}
	binary.LittleEndian.PutUint16(b[18:], temp)
	return b
}

// EncodeGPage frames a GPS solution.
func EncodeGPage(p GPacket) [PageSize]byte {
	var b [PageSize]byte
	b[0] = TagG
	binary.LittleEndian.PutUint32(b[2:], uint32(math.Round(p.T*1e3)))
	binary.LittleEndian.PutUint32(b[6:], uint32(int32(math.Round(p.Lat*rad2deg*1e7))))
	binary.LittleEndian.PutUint32(b[10:], uint32(int32(math.Round(p.Lon*rad2deg*1e7))))
	binary.LittleEndian.PutUint32(b[14:], uint32(int32(math.Round(p.Height*1e3))))
	binary.LittleEndian.PutUint16(b[18:], uint16(int16(math.Round(p.VN*1e2))))
	binary.LittleEndian.PutUint16(b[20:], uint16(int16(math.Round(p.VE*1e2))))
	binary.LittleEndian.PutUint16(b[22:], uint16(int16(math.Round(p.VD*1e2))))
	binary.LittleEndian.PutUint16(b[24:], uint16(math.Round(p.Sigma2D*1e2)))
	binary.LittleEndian.PutUint16(b[26:], uint16(math.Round(p.SigmaHeight*1e2)))
	binary.LittleEndian.PutUint16(b[28:], uint16(math.Round(p.SigmaVel*1e2)))
	return b
}

// EncodeMPage frames four magnetic samples per axis.
func EncodeMPage(p MPacket) [PageSize]byte {
	var b [PageSize]byte
	b[0] = TagM
	binary.LittleEndian.PutUint32(b[2:], uint32(math.Round(p.T*1e3)))
	off := 6
	for s := 0; s < 4; s++ {
		for axis := 0; axis < 3; axis++ {
			binary.LittleEndian.PutUint16(b[off:], uint16(int16(p.Raw[axis][s])))
			off += 2
		}
	}
	return b
}

// EncodeTPage frames week-number and leap-second context.
func EncodeTPage(p TimePacket) [PageSize]byte {
	var b [PageSize]byte
	b[0] = TagT
	binary.LittleEndian.PutUint32(b[2:], uint32(math.Round(p.T*1e3)))
	binary.LittleEndian.PutUint16(b[6:], uint16(p.WeekNum))
	b[8] = byte(int8(p.LeapSec))
	var flags byte
	if p.ValidWeekNum {
		flags |= 0x01
	}
	if p.ValidLeapSec {
		flags |= 0x02
	}
	b[9] = flags
	return b
}
