// internal/nmea/input_line.go
package nmea

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// InputLine reads the comma separated fields of one sentence. Every read
// consumes one field; Read* methods report false for missing or
// malformed fields and leave their destination untouched.
type InputLine struct {
	rest   string
	isDone bool
}

// NewInputLine creates a reader for line, ignoring the checksum suffix
func NewInputLine(line string) *InputLine {
	if i := strings.IndexByte(line, '*'); i >= 0 {
		line = line[:i]
	}
	return &InputLine{rest: line}
}

// Rest returns the unread part of the line
func (l *InputLine) Rest() string {
	return l.rest
}

// Read returns the next raw field
func (l *InputLine) Read() string {
	if l.isDone {
		return ""
	}

	i := strings.IndexByte(l.rest, ',')
	if i < 0 {
		field := l.rest
		l.rest = ""
		l.isDone = true
		return field
	}

	field := l.rest[:i]
	l.rest = l.rest[i+1:]
	return field
}

// Skip drops n fields (one when n is omitted)
func (l *InputLine) Skip(n ...int) {
	count := 1
	if len(n) > 0 {
		count = n[0]
	}
	for i := 0; i < count; i++ {
		l.Read()
	}
}

// ReadChar returns the first byte of the next field, or 0 if empty
func (l *InputLine) ReadChar() byte {
	field := l.Read()
	if len(field) == 0 {
		return 0
	}
	return field[0]
}

// ReadCompare consumes the next field and reports whether it equals expected
func (l *InputLine) ReadCompare(expected string) bool {
	return l.Read() == expected
}

// ReadDecimal parses the next field as a fixed point number
func (l *InputLine) ReadDecimal() (decimal.Decimal, bool) {
	field := strings.TrimSpace(l.Read())
	if field == "" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(field)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// ReadFloat parses the next field as a number
func (l *InputLine) ReadFloat() (float64, bool) {
	value, ok := l.ReadDecimal()
	if !ok {
		return 0, false
	}
	return value.InexactFloat64(), true
}

// ReadChecked stores the next numeric field into dst if it is valid
func (l *InputLine) ReadChecked(dst *float64) bool {
	value, ok := l.ReadFloat()
	if ok {
		*dst = value
	}
	return ok
}

// ReadInt parses the next field as a signed integer
func (l *InputLine) ReadInt() (int, bool) {
	field := strings.TrimSpace(l.Read())
	if field == "" {
		return 0, false
	}
	value, err := strconv.Atoi(field)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ReadUint parses the next field as an unsigned integer
func (l *InputLine) ReadUint() (uint, bool) {
	field := strings.TrimSpace(l.Read())
	if field == "" {
		return 0, false
	}
	value, err := strconv.ParseUint(field, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(value), true
}

// ReadHex parses the next field as a hexadecimal integer
func (l *InputLine) ReadHex() (uint, bool) {
	field := strings.TrimSpace(l.Read())
	if field == "" {
		return 0, false
	}
	value, err := strconv.ParseUint(field, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint(value), true
}
