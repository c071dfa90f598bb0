package tle

import (
	"strconv"
	"strings"
)

// ParseImpliedDecimal decodes an implied-decimal field with a signed exponent.
//
//	"-11606-4" => -0.11606e-4
//	" 12345-3" =>  0.12345e-3
//	" 00000+0" =>  0
//
// Malformed input returns 0: no exponent sign, a sign in the first or last
// position, a non-digit mantissa, or an exponent that is not an integer.
func ParseImpliedDecimal(field string) float64 {
	s := strings.ReplaceAll(field, " ", "")

	k := strings.LastIndexAny(s, "+-")
	if k <= 0 || k == len(s)-1 {
		return 0
	}

	mantissa, exponent := s[:k], s[k:]

	sign := ""

	switch mantissa[0] {
	case '-':
		sign = "-"
		mantissa = mantissa[1:]
	case '+':
		mantissa = mantissa[1:]
	}

	if mantissa == "" || !isDigits(mantissa) {
		return 0
	}

	exp, err := strconv.Atoi(exponent)
	if err != nil {
		return 0
	}

	// Parsing the decimal text directly keeps the result identical to the literal
	// -0.11606e-4 instead of accumulating a multiplication error.
	v, err := strconv.ParseFloat(sign+"0."+mantissa+"e"+strconv.Itoa(exp), 64)
	if err != nil {
		return 0
	}

	return v
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
