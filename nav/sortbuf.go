package nav

import (
	"sort"

	"insgps-go/pages"
)

// SortBuffer collects packets unsorted and drains them in week-aware time
// order. When the buffer holds depth packets, a stable sort runs and the
// oldest half is applied; the remainder stays to absorb later stragglers.
// The depth must exceed the worst out-of-order window across the sensor
// streams.
type SortBuffer struct {
	depth int
	pool  []pages.Packet
	apply func(pages.Packet) error
}

// NewSortBuffer drains into apply. depth of 512 accommodates GPS delays
// of several seconds at typical inertial rates.
func NewSortBuffer(depth int, apply func(pages.Packet) error) *SortBuffer {
	return &SortBuffer{depth: depth, apply: apply}
}

func (b *SortBuffer) sortPool() {
	sort.SliceStable(b.pool, func(i, j int) bool {
		return pages.IntervalRollover(b.pool[i].Itow(), b.pool[j].Itow()) > 0
	})
}

func (b *SortBuffer) drain(n int) error {
	b.sortPool()
	for i := 0; i < n; i++ {
		if err := b.apply(b.pool[i]); err != nil {
			return err
		}
	}
	b.pool = append(b.pool[:0], b.pool[n:]...)
	return nil
}

// Push buffers one packet, draining when the watermark is reached.
func (b *SortBuffer) Push(p pages.Packet) error {
	b.pool = append(b.pool, p)
	if len(b.pool) < b.depth {
		return nil
	}
	return b.drain(b.depth / 2)
}

// Flush sorts and applies everything left; call on stream close.
func (b *SortBuffer) Flush() error {
	return b.drain(len(b.pool))
}

// Len returns the number of buffered packets.
func (b *SortBuffer) Len() int { return len(b.pool) }

// PPSFixer removes the occasional one-second time-stamp jump caused by
// the logger latching a sample across a 1 PPS boundary: a packet exactly
// [1, 2) s ahead of the previous packet of the same type is pulled back
// by one second.
type PPSFixer struct {
	lastA float64
	lastM float64
	seenA bool
	seenM bool
}

// Fix returns the packet with the corrected time stamp.
func (f *PPSFixer) Fix(p pages.Packet) pages.Packet {
	switch v := p.(type) {
	case pages.APacket:
		if f.seenA {
			if d := v.T - f.lastA; d >= 1 && d < 2 {
				v.T -= 1
			}
		}
		f.lastA, f.seenA = v.T, true
		return v
	case pages.MPacket:
		if f.seenM {
			if d := v.T - f.lastM; d >= 1 && d < 2 {
				v.T -= 1
			}
		}
		f.lastM, f.seenM = v.T, true
		return v
	}
	return p
}
