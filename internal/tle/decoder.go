package tle

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Decode failure classes. A *DecodeError matches exactly one of them with errors.Is.
var (
	ErrChecksumInvalid = errors.New("checksum invalid")
	ErrFieldParse      = errors.New("field parse error")
)

// DecodeError describes why a record was rejected.
type DecodeError struct {
	Kind          error // ErrChecksumInvalid or ErrFieldParse
	Name          string
	CatalogNumber int // 0 when the catalog number itself could not be read
	Field         string
	Cause         error
}

func (e *DecodeError) Error() string {
	var b strings.Builder

	b.WriteString(e.Kind.Error())

	if e.Field != "" {
		b.WriteString(" in ")
		b.WriteString(e.Field)
	}

	fmt.Fprintf(&b, " (name=%q", e.Name)

	if e.CatalogNumber != 0 {
		fmt.Fprintf(&b, ", catalog_number=%d", e.CatalogNumber)
	}

	b.WriteString(")")

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *DecodeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Cause}
}

// column is a half-open byte range of a data line.
type column struct {
	name       string
	start, end int
}

var (
	colCatalogNumber  = column{"catalog_number", 2, 7}
	colDesignator     = column{"international_designator", 9, 17}
	colEpochYear      = column{"epoch_year", 18, 20}
	colEpochDay       = column{"epoch_day", 20, 32}
	colMeanMotionDot  = column{"mean_motion_dot", 33, 43}
	colBStar          = column{"bstar", 53, 61}
	colInclination    = column{"inclination", 8, 16}
	colRAAN           = column{"raan", 17, 25}
	colEccentricity   = column{"eccentricity", 26, 33}
	colArgPerigee     = column{"argument_of_perigee", 34, 42}
	colMeanAnomaly    = column{"mean_anomaly", 43, 51}
	colMeanMotion     = column{"mean_motion", 52, 63}
	colRevolution     = column{"revolution_number", 63, 68}
	classificationCol = 7
)

func (c column) text(line string) string {
	return line[c.start:c.end]
}

// fieldReader reads columns and keeps the first parse failure.
type fieldReader struct {
	err   error
	field string
}

func (r *fieldReader) float(line string, c column) float64 {
	if r.err != nil {
		return 0
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(c.text(line)), 64)
	if err != nil {
		r.err, r.field = err, c.name
	}

	return v
}

func (r *fieldReader) integer(line string, c column) int {
	if r.err != nil {
		return 0
	}

	v, err := strconv.Atoi(strings.TrimSpace(c.text(line)))
	if err != nil {
		r.err, r.field = err, c.name
	}

	return v
}

// maxEpochDay bounds the fractional day-of-year column; a leap year's last
// day ends at 367.0.
const maxEpochDay = 367

// epochDay reads the fractional day-of-year and rejects values that cannot
// name an instant within the epoch year.
func (r *fieldReader) epochDay(line string) float64 {
	day := r.float(line, colEpochDay)
	if r.err != nil {
		return 0
	}

	if math.IsNaN(day) || math.IsInf(day, 0) || day < 0 || day > maxEpochDay {
		r.err, r.field = fmt.Errorf("epoch day %v out of range [0, %d]", day, maxEpochDay), colEpochDay.name

		return 0
	}

	return day
}

// eccentricity has an implied leading "0." and no explicit decimal point.
func (r *fieldReader) eccentricity(line string) float64 {
	if r.err != nil {
		return 0
	}

	text := colEccentricity.text(line)
	if !isDigits(text) {
		r.err, r.field = fmt.Errorf("eccentricity %q is not a digit string", text), colEccentricity.name

		return 0
	}

	v, err := strconv.ParseFloat("0."+text, 64)
	if err != nil {
		r.err, r.field = err, colEccentricity.name
	}

	return v
}

// CleanName trims a record name line and drops the "0 " prefix used by 3LE feeds.
func CleanName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "0 ") {
		name = strings.TrimSpace(name[2:])
	}

	return name
}

// Decode validates and decodes a three-line record.
//
// Both data lines must pass ValidChecksum, otherwise the error matches
// ErrChecksumInvalid. A malformed numeric field yields ErrFieldParse, as does
// an epoch day that is not finite or lies outside [0, 367]. A malformed drag
// term is not an error and decodes as 0. Non-finite values such as "NaN" in
// the angle and mean motion fields are passed through unchanged.
func Decode(name, line1, line2 string) (*ElementSet, error) {
	name = CleanName(name)

	for i, line := range []string{line1, line2} {
		if !ValidChecksum(line) {
			return nil, &DecodeError{
				Kind:  ErrChecksumInvalid,
				Name:  name,
				Field: fmt.Sprintf("line%d", i+1),
			}
		}
	}

	var r fieldReader

	catalog := r.integer(line1, colCatalogNumber)
	if r.err != nil {
		return nil, &DecodeError{Kind: ErrFieldParse, Name: name, Field: r.field, Cause: r.err}
	}

	year := r.integer(line1, colEpochYear)
	day := r.epochDay(line1)

	es := &ElementSet{
		CatalogNumber:           catalog,
		Classification:          line1[classificationCol],
		Name:                    name,
		InternationalDesignator: strings.TrimSpace(colDesignator.text(line1)),
		MeanMotionDot:           r.float(line1, colMeanMotionDot),
		BStar:                   ParseImpliedDecimal(colBStar.text(line1)),
		Inclination:             r.float(line2, colInclination),
		RAAN:                    r.float(line2, colRAAN),
		Eccentricity:            r.eccentricity(line2),
		ArgumentOfPerigee:       r.float(line2, colArgPerigee),
		MeanAnomaly:             r.float(line2, colMeanAnomaly),
		MeanMotion:              r.float(line2, colMeanMotion),
		RevolutionNumber:        r.integer(line2, colRevolution),
		Line1:                   line1,
		Line2:                   line2,
	}

	if r.err != nil {
		return nil, &DecodeError{
			Kind:          ErrFieldParse,
			Name:          name,
			CatalogNumber: catalog,
			Field:         r.field,
			Cause:         r.err,
		}
	}

	es.Epoch = EpochTime(year, day)

	return es, nil
}
