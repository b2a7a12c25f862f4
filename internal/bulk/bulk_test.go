package bulk

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

func TestCalculateCRC(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"empty", nil, 0x0000},
		{"check string", []byte("123456789"), 0x31C3},
		{"single zero", []byte{0x00}, 0x0000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateCRC(tt.data); got != tt.want {
				t.Errorf("CalculateCRC() = 0x%04X, want 0x%04X", got, tt.want)
			}
		})
	}
}

func TestCRCResidualIsZero(t *testing.T) {
	data := []byte("volkslogger directory")
	crc := CalculateCRC(data)
	withCRC := append(append([]byte{}, data...), byte(crc>>8), byte(crc))

	if residual := CalculateCRC(withCRC); residual != 0 {
		t.Errorf("residual = 0x%04X, want 0", residual)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"no control bytes", []byte("ABCDEFG")},
		{"one DLE", []byte{0x41, DLE, 0x42}},
		{"DLE STX inside payload", []byte{DLE, STX, 0x00, DLE, ETX}},
		{"only control bytes", []byte{DLE, DLE, STX, ETX, ACK, CAN, ENQ, DLE}},
		{"single byte", []byte{0x7f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Encode(tt.payload))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("Decode() = % X, want % X", got, tt.payload)
			}
		})
	}
}

func TestDecodeIgnoresLeadingNoise(t *testing.T) {
	frame := append([]byte{0x55, 0xAA, ETX}, Encode([]byte("hi"))...)
	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != "hi" {
		t.Errorf("Decode() = %q", got)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	frame := Encode([]byte("flight 1"))
	frame[4] ^= 0x01

	if _, err := Decode(frame); !errors.Is(err, ErrCRC) {
		t.Errorf("Decode() error = %v, want ErrCRC", err)
	}
}

func TestDecodeStrayDLEStaysPending(t *testing.T) {
	// CRC of "ab" is 0x74FF; the DLE in front of 'b' is not doubled
	frame := []byte{DLE, STX, 'a', DLE, 'b', 0x74, 0xFF, ETX}

	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != "ab" {
		t.Errorf("Decode() = % X, want \"ab\"", got)
	}
}

func TestDecodeShortFrameIsEmpty(t *testing.T) {
	got, err := Decode([]byte{DLE, STX, 0x00, DLE, ETX})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Decode() = % X, want empty", got)
	}
}

func TestDecoderOverflow(t *testing.T) {
	d := NewDecoder(4)
	var err error
	for _, b := range Encode([]byte("too long for the buffer")) {
		if _, err = d.Feed(b); err != nil {
			break
		}
	}
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("Feed() error = %v, want ErrOverflow", err)
	}
}

func fuzzRounds() int {
	if env := os.Getenv("FUZZ_ROUNDS"); env != "" {
		if rounds, err := strconv.Atoi(env); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if env := os.Getenv("FUZZ_SEED"); env != "" {
		if s, err := strconv.ParseInt(env, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func TestFuzzRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	controls := []byte{DLE, STX, ETX, ACK, CAN, ENQ}

	for round := 0; round < fuzzRounds(); round++ {
		payload := make([]byte, rng.Intn(64))
		for i := range payload {
			if rng.Intn(4) == 0 {
				payload[i] = controls[rng.Intn(len(controls))]
			} else {
				payload[i] = byte(rng.Intn(256))
			}
		}

		got, err := Decode(Encode(payload))
		if err != nil {
			t.Fatalf("round %d: Decode() error = %v for % X", round, err, payload)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round %d: Decode() = % X, want % X", round, got, payload)
		}
	}
}
