package tle

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ISS(t *testing.T) {
	es, err := Decode("  "+issName+"  \r", issLine1, issLine2)
	require.NoError(t, err)

	assert.Equal(t, 25544, es.CatalogNumber)
	assert.Equal(t, byte('U'), es.Classification)
	assert.Equal(t, issName, es.Name)
	assert.Equal(t, "98067A", es.InternationalDesignator)
	assert.Equal(t, time.Date(2008, time.September, 20, 12, 25, 40, 104192000, time.UTC), es.Epoch)
	assert.InDelta(t, -0.00002182, es.MeanMotionDot, 1e-15)
	assert.Equal(t, -0.11606e-4, es.BStar) //nolint:testifylint // exact decimal parse
	assert.InDelta(t, 51.6416, es.Inclination, 1e-12)
	assert.InDelta(t, 247.4627, es.RAAN, 1e-12)
	assert.InDelta(t, 0.0006703, es.Eccentricity, 1e-15)
	assert.InDelta(t, 130.5360, es.ArgumentOfPerigee, 1e-12)
	assert.InDelta(t, 325.0288, es.MeanAnomaly, 1e-12)
	assert.InDelta(t, 15.72125391, es.MeanMotion, 1e-12)
	assert.Equal(t, 56353, es.RevolutionNumber)
	assert.Equal(t, issLine1, es.Line1)
	assert.Equal(t, issLine2, es.Line2)
}

func TestDecode_PositiveDragTerm(t *testing.T) {
	es, err := Decode(hstName, hstLine1, hstLine2)
	require.NoError(t, err)

	assert.Equal(t, 0.12345e-3, es.BStar) //nolint:testifylint // exact decimal parse
	assert.Equal(t, time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC), es.Epoch)
	assert.Equal(t, "90037B", es.InternationalDesignator)
}

// Re-encoding the decoded values at the format's precision reproduces the column text.
func TestDecode_ReencodesToSourceColumns(t *testing.T) {
	for _, rec := range [][2]string{{issLine1, issLine2}, {hstLine1, hstLine2}, {vanguardLine1, vanguardLine2}} {
		es, err := Decode("X", rec[0], rec[1])
		require.NoError(t, err)

		l2 := rec[1]
		assert.Equal(t, fmt.Sprintf("%05d", es.CatalogNumber), colCatalogNumber.text(rec[0]))
		assert.Equal(t, fmt.Sprintf("%8.4f", es.Inclination), colInclination.text(l2))
		assert.Equal(t, fmt.Sprintf("%8.4f", es.RAAN), colRAAN.text(l2))
		assert.Equal(t, fmt.Sprintf("%07.0f", es.Eccentricity*1e7), colEccentricity.text(l2))
		assert.Equal(t, fmt.Sprintf("%8.4f", es.ArgumentOfPerigee), colArgPerigee.text(l2))
		assert.Equal(t, fmt.Sprintf("%8.4f", es.MeanAnomaly), colMeanAnomaly.text(l2))
		assert.Equal(t, fmt.Sprintf("%11.8f", es.MeanMotion), colMeanMotion.text(l2))
		assert.Equal(t, fmt.Sprintf("%5d", es.RevolutionNumber), colRevolution.text(l2))
	}
}

func TestDecode_CenturyPivot(t *testing.T) {
	old, err := Decode("VANGUARD", vanguardLine1, vanguardLine2)
	require.NoError(t, err)
	assert.Equal(t, 1957, old.Epoch.Year())
	assert.Equal(t, time.Date(1957, time.October, 2, 0, 0, 0, 0, time.UTC), old.Epoch)

	future, err := Decode("FUTURE", futureLine1, futureLine2)
	require.NoError(t, err)
	assert.Equal(t, 2056, future.Epoch.Year())
	assert.Equal(t, time.Date(2056, time.December, 31, 0, 0, 0, 0, time.UTC), future.Epoch)

	assert.Equal(t, 2056, EpochYear(56))
	assert.Equal(t, 1957, EpochYear(57))
	assert.Equal(t, 2000, EpochYear(0))
	assert.Equal(t, 1999, EpochYear(99))
}

func TestDecode_ChecksumInvalid(t *testing.T) {
	tests := []struct {
		name         string
		line1, line2 string
		field        string
	}{
		{name: "line 1 corrupted", line1: issLine1[:68] + "0", line2: issLine2, field: "line1"},
		{name: "line 2 corrupted", line1: issLine1, line2: issLine2[:68] + "0", field: "line2"},
		{name: "line 1 truncated", line1: issLine1[:40], line2: issLine2, field: "line1"},
		{name: "lines swapped with name", line1: issName, line2: issLine1, field: "line1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			es, err := Decode(issName, tt.line1, tt.line2)
			require.Error(t, err)
			assert.Nil(t, es)
			assert.ErrorIs(t, err, ErrChecksumInvalid)
			assert.NotErrorIs(t, err, ErrFieldParse)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.field, de.Field)
			assert.Equal(t, issName, de.Name)
		})
	}
}

func TestDecode_FieldParseError(t *testing.T) {
	es, err := Decode(hstName, hstLine1, badInclinationLine2)
	require.Error(t, err)
	assert.Nil(t, es)
	assert.ErrorIs(t, err, ErrFieldParse)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "inclination", de.Field)
	assert.Equal(t, 20580, de.CatalogNumber)
	assert.Contains(t, err.Error(), "catalog_number=20580")
}

func TestDecode_MalformedCatalogNumber(t *testing.T) {
	line1 := AppendChecksum("1 2554AU" + issLine1[8:68])

	_, err := Decode(issName, line1, issLine2)
	require.ErrorIs(t, err, ErrFieldParse)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "catalog_number", de.Field)
	assert.Zero(t, de.CatalogNumber)
}

func TestDecode_EpochDayOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		day  string
	}{
		{name: "not a number", day: "         NaN"},
		{name: "positive infinity", day: "        +Inf"},
		{name: "negative infinity", day: "        -Inf"},
		{name: "overflowing exponent", day: "1e300       "},
		{name: "past the last day", day: "367.50000000"},
		{name: "negative", day: "-1.500000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Len(t, tt.day, 12)

			line1 := AppendChecksum(issLine1[:20] + tt.day + issLine1[32:68])

			es, err := Decode(issName, line1, issLine2)
			require.ErrorIs(t, err, ErrFieldParse)
			assert.Nil(t, es)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, "epoch_day", de.Field)
			assert.Equal(t, 25544, de.CatalogNumber)
		})
	}
}

func TestDecode_LastDayOfLeapYear(t *testing.T) {
	line1 := AppendChecksum(issLine1[:18] + "24366.50000000" + issLine1[32:68])

	es, err := Decode(issName, line1, issLine2)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.December, 31, 12, 0, 0, 0, time.UTC), es.Epoch)
}

func TestDecode_NonFiniteAnglePassesThrough(t *testing.T) {
	line2 := AppendChecksum(issLine2[:8] + "     NaN" + issLine2[16:68])

	es, err := Decode(issName, issLine1, line2)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(es.Inclination))
	assert.InDelta(t, 247.4627, es.RAAN, 1e-12)
}

func TestDecode_MalformedEccentricity(t *testing.T) {
	line2 := AppendChecksum(issLine2[:26] + "00 6703" + issLine2[33:68])

	_, err := Decode(issName, issLine1, line2)
	require.ErrorIs(t, err, ErrFieldParse)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "eccentricity", de.Field)
}

// A malformed drag term decodes as zero instead of rejecting the record.
func TestDecode_LenientDragTerm(t *testing.T) {
	line1 := AppendChecksum(issLine1[:53] + "0000000 " + issLine1[61:68])

	es, err := Decode(issName, line1, issLine2)
	require.NoError(t, err)
	assert.Zero(t, es.BStar)
}

func TestDecode_ThreeLineNamePrefix(t *testing.T) {
	es, err := Decode("0 ISS (ZARYA)", issLine1, issLine2)
	require.NoError(t, err)
	assert.Equal(t, issName, es.Name)
}

func TestDecodeError_Message(t *testing.T) {
	err := &DecodeError{Kind: ErrFieldParse, Name: "SAT", CatalogNumber: 7, Field: "raan", Cause: errors.New("bad")}
	assert.Equal(t, `field parse error in raan (name="SAT", catalog_number=7): bad`, err.Error())

	err = &DecodeError{Kind: ErrChecksumInvalid, Name: "SAT", Field: "line2"}
	assert.Equal(t, `checksum invalid in line2 (name="SAT")`, err.Error())
	assert.True(t, strings.HasPrefix(err.Error(), "checksum invalid"))
}

func TestEpochTime_RoundsToMicrosecond(t *testing.T) {
	got := EpochTime(8, 264.51782528)
	assert.Equal(t, 104192000, got.Nanosecond())
	assert.Equal(t, time.UTC, got.Location())
}
