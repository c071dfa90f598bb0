package tle

import (
	"math"
	"time"
)

// centuryPivot splits two-digit epoch years: below it is 20xx, otherwise 19xx.
const centuryPivot = 57

// ElementSet is one decoded two-line element record.
type ElementSet struct {
	CatalogNumber           int
	Classification          byte
	Name                    string
	InternationalDesignator string
	Epoch                   time.Time

	Inclination       float64 // degrees
	RAAN              float64 // right ascension of the ascending node, degrees
	Eccentricity      float64
	ArgumentOfPerigee float64 // degrees
	MeanAnomaly       float64 // degrees
	MeanMotion        float64 // revolutions per day
	RevolutionNumber  int
	BStar             float64 // drag term, 1/earth radii
	MeanMotionDot     float64

	// Line1 and Line2 are the verbatim data lines.
	Line1 string
	Line2 string
}

// EpochYear expands a two-digit epoch year using the 1957 pivot.
func EpochYear(twoDigit int) int {
	if twoDigit < centuryPivot {
		return 2000 + twoDigit
	}

	return 1900 + twoDigit
}

// EpochTime converts a two-digit year and fractional day-of-year (1.0 is
// January 1st 00:00) into a UTC timestamp rounded to the microsecond.
func EpochTime(twoDigitYear int, dayOfYear float64) time.Time {
	start := time.Date(EpochYear(twoDigitYear), time.January, 1, 0, 0, 0, 0, time.UTC)
	micros := math.RoundToEven((dayOfYear - 1) * 86400e6)

	return start.Add(time.Duration(micros) * time.Microsecond)
}
