// internal/nmea/checksum.go
package nmea

import (
	"fmt"
	"strings"
)

// Checksum computes the XOR of all bytes between the start sentinel and
// the checksum delimiter (or the end of the string).
func Checksum(sentence string) byte {
	if len(sentence) > 0 && (sentence[0] == '$' || sentence[0] == '!') {
		sentence = sentence[1:]
	}
	if i := strings.IndexByte(sentence, '*'); i >= 0 {
		sentence = sentence[:i]
	}

	var sum byte
	for i := 0; i < len(sentence); i++ {
		sum ^= sentence[i]
	}
	return sum
}

// HasChecksum reports whether the line carries a checksum delimiter
func HasChecksum(line string) bool {
	return strings.IndexByte(line, '*') >= 0
}

// VerifyChecksum reports whether the two hex digits after '*' match the
// XOR of the payload.
func VerifyChecksum(line string) bool {
	i := strings.LastIndexByte(line, '*')
	if i < 0 || len(line) < i+3 {
		return false
	}

	hi, ok1 := hexValue(line[i+1])
	lo, ok2 := hexValue(line[i+2])
	if !ok1 || !ok2 {
		return false
	}

	return Checksum(line[:i]) == hi<<4|lo
}

// Format builds a complete sentence "$<body>*CS\r\n" from its body
func Format(body string) string {
	body = strings.TrimPrefix(body, "$")
	return fmt.Sprintf("$%s*%02X\r\n", body, Checksum(body))
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// CheckLine reports whether a received line may be parsed. Lines without
// a checksum delimiter are accepted; the check can be disabled per session.
func CheckLine(line string, ignoreChecksum bool) bool {
	if ignoreChecksum || !HasChecksum(line) {
		return true
	}
	return VerifyChecksum(line)
}
