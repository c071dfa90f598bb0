package tle

// LineLength is the minimum length of a data line, checksum digit included.
const LineLength = 69

// Checksum returns the modulo-10 checksum of a data line, excluding its final character.
// Digits count their value, '-' counts 1, everything else counts 0.
func Checksum(line string) int {
	if line == "" {
		return 0
	}

	return checksumOf(line[:len(line)-1])
}

// ValidChecksum reports whether the final character of line equals its checksum.
// Lines shorter than LineLength or ending in a non-digit are invalid.
func ValidChecksum(line string) bool {
	if len(line) < LineLength {
		return false
	}

	last := line[len(line)-1]
	if last < '0' || last > '9' {
		return false
	}

	return Checksum(line) == int(last-'0')
}

// AppendChecksum returns body with its checksum digit appended.
func AppendChecksum(body string) string {
	return body + string(rune('0'+checksumOf(body)))
}

func checksumOf(s string) int {
	sum := 0

	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}

	return sum % 10
}
