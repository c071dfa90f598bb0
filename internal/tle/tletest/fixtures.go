// Package tletest provides element-set fixtures for tests in other packages.
package tletest

import (
	"fmt"
	"time"

	"github.com/astrolabe-io/astrolabe/internal/tle"
)

// ISS (ZARYA) at 2008-09-20 12:25:40.104192 UTC.
const (
	ISSName  = "ISS (ZARYA)"
	ISSLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	ISSLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
)

// ISSEpoch is the epoch encoded in ISSLine1.
var ISSEpoch = time.Date(2008, time.September, 20, 12, 25, 40, 104192000, time.UTC)

// Lines returns the ISS fixture as a three-line slice.
func Lines() []string {
	return []string{ISSName, ISSLine1, ISSLine2}
}

// Record builds a valid triple for catalog with the given name and epoch.
// Orbital fields are copied from the ISS fixture.
func Record(catalog int, name string, year int, dayOfYear float64) []string {
	line1 := fmt.Sprintf("1 %05dU 98067A   %02d%012.8f%s", catalog, year%100, dayOfYear, ISSLine1[32:68])
	line2 := fmt.Sprintf("2 %05d%s", catalog, ISSLine2[7:68])

	return []string{name, tle.AppendChecksum(line1), tle.AppendChecksum(line2)}
}

// Corrupt returns line with its checksum digit replaced by a wrong one.
func Corrupt(line string) string {
	last := line[len(line)-1]
	wrong := byte('0' + (int(last-'0')+1)%10)

	return line[:len(line)-1] + string(wrong)
}

// Join concatenates record triples into one input slice.
func Join(records ...[]string) []string {
	var out []string
	for _, r := range records {
		out = append(out, r...)
	}

	return out
}
