package nav

import (
	"time"

	"insgps-go/pages"
)

// gpsEpochUnix is 1980-01-06T00:00:00Z, the GPS time origin.
const gpsEpochUnix = 315964800

// CalendarConverter maps GPS time of week to calendar fields once a
// TimePacket has established the week number and, optionally, the leap
// seconds.
type CalendarConverter struct {
	week         int
	leapSec      int
	validWeek    bool
	CorrectionHr int
}

// Update absorbs week-number and leap-second context.
func (c *CalendarConverter) Update(t pages.TimePacket) {
	if t.ValidWeekNum {
		c.week = t.WeekNum
		c.validWeek = true
		if t.ValidLeapSec {
			c.leapSec = t.LeapSec
		}
	}
}

// Valid reports whether a week number has been established.
func (c *CalendarConverter) Valid() bool { return c.validWeek }

// Week returns the established week number, or -1.
func (c *CalendarConverter) Week() int {
	if !c.validWeek {
		return -1
	}
	return c.week
}

// CalendarTime is the six-field time stamp of calendar output mode.
type CalendarTime struct {
	Year, Month, Day int
	Hour, Min        int
	Sec              float64
}

// Convert maps a time of week to UTC calendar fields with the configured
// hour offset applied.
func (c *CalendarConverter) Convert(itow float64) CalendarTime {
	total := float64(gpsEpochUnix) +
		float64(c.week)*WeekSeconds + itow -
		float64(c.leapSec) +
		float64(c.CorrectionHr)*3600
	sec := int64(total)
	frac := total - float64(sec)
	t := time.Unix(sec, 0).UTC()
	return CalendarTime{
		Year:  t.Year(),
		Month: int(t.Month()),
		Day:   t.Day(),
		Hour:  t.Hour(),
		Min:   t.Minute(),
		Sec:   float64(t.Second()) + frac,
	}
}

// DecimalYear approximates the current decimal year for the field model;
// before a week is known it falls back to the model epoch.
func (c *CalendarConverter) DecimalYear(itow float64) float64 {
	if !c.validWeek {
		return 2020.0
	}
	total := float64(gpsEpochUnix) + float64(c.week)*WeekSeconds + itow
	t := time.Unix(int64(total), 0).UTC()
	yearStart := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := time.Date(t.Year()+1, 1, 1, 0, 0, 0, 0, time.UTC)
	return float64(t.Year()) +
		t.Sub(yearStart).Seconds()/yearEnd.Sub(yearStart).Seconds()
}
