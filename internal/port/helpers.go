// internal/port/helpers.go
package port

import (
	"errors"
	"fmt"
	"time"

	"glider-device-service/internal/nmea"
	"glider-device-service/internal/operation"
)

// waitSlice bounds how long a cancellable wait goes without checking
// for cancellation
const waitSlice = 500 * time.Millisecond

// DefaultExpectTimeout is used by callers that have no protocol timeout
const DefaultExpectTimeout = 2 * time.Second

// WriteString writes s in a single attempt
func WriteString(p Port, s string) error {
	n, err := p.Write([]byte(s))
	if err != nil {
		return err
	}
	if n < len(s) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(s))
	}
	return nil
}

// WriteByte writes one byte
func WriteByte(p Port, b byte) error {
	n, err := p.Write([]byte{b})
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("short write: byte 0x%02x not sent", b)
	}
	return nil
}

// WriteNMEA frames body as a checksummed sentence and writes it
func WriteNMEA(p Port, body string) error {
	return WriteString(p, nmea.Format(body))
}

// FullWrite keeps writing until all of data is sent or timeout expires
func FullWrite(p Port, data []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for len(data) > 0 {
		n, err := p.Write(data)
		if err != nil {
			return err
		}
		if n <= 0 {
			return ErrFailed
		}
		data = data[n:]

		if len(data) > 0 && time.Now().After(deadline) {
			return ErrTimeout
		}
	}
	return nil
}

// GetChar reads a single byte
func GetChar(p Port) (byte, error) {
	var buf [1]byte
	n, err := p.Read(buf[:])
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, ErrTimeout
	}
	return buf[0], nil
}

// WaitReadEnv waits for inbound data, checking env for cancellation at
// least every waitSlice.
func WaitReadEnv(p Port, env operation.Env, timeout time.Duration) WaitResult {
	remaining := timeout
	for {
		slice := remaining
		if slice > waitSlice {
			slice = waitSlice
		}

		result := p.WaitRead(slice)
		if result != WaitTimeout {
			return result
		}
		if env.IsCancelled() {
			return WaitCancelled
		}

		remaining -= slice
		if remaining <= 0 {
			return WaitTimeout
		}
	}
}

// WaitResultError converts a non-ready wait result to an error
func WaitResultError(r WaitResult) error {
	switch r {
	case WaitReady:
		return nil
	case WaitTimeout:
		return ErrTimeout
	case WaitCancelled:
		return operation.ErrCancelled
	default:
		return ErrFailed
	}
}

// FullRead fills buf completely or fails after timeout
func FullRead(p Port, env operation.Env, buf []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for len(buf) > 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		if err := WaitResultError(WaitReadEnv(p, env, remaining)); err != nil {
			return err
		}

		n, err := p.Read(buf)
		if err != nil && !errors.Is(err, ErrTimeout) {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// FullFlush discards inbound data until the line stays quiet for
// perRead, giving up after total. It fails only on transport failure or
// cancellation.
func FullFlush(p Port, env operation.Env, perRead, total time.Duration) bool {
	p.Flush()

	deadline := time.Now().Add(total)
	var scratch [256]byte
	for {
		switch WaitReadEnv(p, env, perRead) {
		case WaitReady:
			if _, err := p.Read(scratch[:]); err != nil && !errors.Is(err, ErrTimeout) {
				return false
			}
		case WaitTimeout:
			return true
		default:
			return false
		}

		if time.Now().After(deadline) {
			return true
		}
	}
}

// ExpectString consumes inbound data until token was seen. It reads no
// more than the rest of the token at a time, so bytes after the token
// stay buffered.
func ExpectString(p Port, token string, env operation.Env, timeout time.Duration) bool {
	if token == "" {
		return true
	}

	fallback := prefixTable(token)
	deadline := time.Now().Add(timeout)
	matched := 0
	buf := make([]byte, len(token))
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if WaitReadEnv(p, env, remaining) != WaitReady {
			return false
		}

		n, err := p.Read(buf[:len(token)-matched])
		if (err != nil && !errors.Is(err, ErrTimeout)) || env.IsCancelled() {
			return false
		}

		for _, c := range buf[:n] {
			for matched > 0 && c != token[matched] {
				matched = fallback[matched-1]
			}
			if c == token[matched] {
				matched++
				if matched == len(token) {
					return true
				}
			}
		}
	}
}

// prefixTable returns, for every prefix of token, the length of its
// longest proper prefix that is also a suffix
func prefixTable(token string) []int {
	table := make([]int, len(token))
	k := 0
	for i := 1; i < len(token); i++ {
		for k > 0 && token[i] != token[k] {
			k = table[k-1]
		}
		if token[i] == token[k] {
			k++
		}
		table[i] = k
	}
	return table
}

// WaitForChar discards inbound bytes until token arrives
func WaitForChar(p Port, token byte, env operation.Env, timeout time.Duration) WaitResult {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return WaitTimeout
		}

		result := WaitReadEnv(p, env, remaining)
		if result != WaitReady {
			return result
		}

		c, err := GetChar(p)
		if err != nil && !errors.Is(err, ErrTimeout) {
			return WaitFailed
		}
		if err == nil && c == token {
			return WaitReady
		}
	}
}
