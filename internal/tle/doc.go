// Package tle decodes two-line orbital element sets.
//
// A record is three text lines: a free-form name followed by two fixed-column
// data lines of at least 69 characters. Each data line ends with a modulo-10
// checksum digit. Decode validates both checksums, then reads every field from
// its column range and returns an immutable ElementSet.
//
// The drag term uses an implied-decimal encoding with a trailing power-of-ten
// exponent ("-11606-4" is -0.11606e-4). ParseImpliedDecimal is lenient: a
// malformed drag term yields 0 rather than an error. Every other numeric field
// is strict and fails the record with ErrFieldParse.
package tle
