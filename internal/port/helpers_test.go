package port_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"glider-device-service/internal/operation"
	"glider-device-service/internal/port"
	"glider-device-service/internal/port/porttest"
)

func TestExpectString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		token string
		want  bool
		rest  string
	}{
		{"exact", "PFLAC,A,PILOT,Max", "PFLAC,A,PILOT,Max", true, ""},
		{"noise before", "$GPGGA,1\r\nPFLAC,A,X", "PFLAC,A,X", true, ""},
		{"trailing data stays", "OKabc", "OK", true, "abc"},
		{"partial restart", "OOK", "OK", true, ""},
		{"repeated prefix", "LLLX", "LLX", true, ""},
		{"overlapping candidate", "ABABABC!", "ABABC", true, "!"},
		{"missing", "nothing here", "PFLAC", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := porttest.New(4800, nil)
			p.FeedString(tt.input)

			got := port.ExpectString(p, tt.token, operation.NewNullEnv(), 50*time.Millisecond)
			if got != tt.want {
				t.Fatalf("ExpectString() = %v, want %v", got, tt.want)
			}
			if !tt.want {
				return
			}

			buf := make([]byte, 64)
			n, _ := p.Read(buf)
			if string(buf[:n]) != tt.rest {
				t.Errorf("remaining data = %q, want %q", buf[:n], tt.rest)
			}
		})
	}
}

func TestExpectStringSplitDelivery(t *testing.T) {
	p := porttest.New(4800, nil)
	go func() {
		for _, chunk := range []string{"PF", "LAC,", "A,TASK"} {
			time.Sleep(5 * time.Millisecond)
			p.FeedString(chunk)
		}
	}()

	if !port.ExpectString(p, "PFLAC,A,TASK", operation.NewNullEnv(), time.Second) {
		t.Error("ExpectString() = false for a token split across deliveries")
	}
}

func TestWaitForChar(t *testing.T) {
	p := porttest.New(9600, nil)
	p.FeedString("xxL")

	if got := port.WaitForChar(p, 'L', operation.NewNullEnv(), 50*time.Millisecond); got != port.WaitReady {
		t.Errorf("WaitForChar() = %v, want ready", got)
	}
	if got := port.WaitForChar(p, 'L', operation.NewNullEnv(), 20*time.Millisecond); got != port.WaitTimeout {
		t.Errorf("WaitForChar() on empty port = %v, want timeout", got)
	}
}

func TestWaitReadEnvCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	env := operation.NewContextEnv(ctx, nil, nil)
	p := porttest.New(9600, nil)

	cancel()
	start := time.Now()
	if got := port.WaitReadEnv(p, env, 5*time.Second); got != port.WaitCancelled {
		t.Errorf("WaitReadEnv() = %v, want cancelled", got)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("WaitReadEnv() ignored cancellation")
	}
}

func TestWaitReadFailed(t *testing.T) {
	p := porttest.New(9600, nil)
	p.Fail()

	if got := p.WaitRead(time.Second); got != port.WaitFailed {
		t.Errorf("WaitRead() = %v, want failed", got)
	}
	if p.State() != port.StateFailed {
		t.Errorf("State() = %v, want failed", p.State())
	}
}

func TestFullRead(t *testing.T) {
	p := porttest.New(9600, nil)
	go func() {
		p.FeedString("abc")
		time.Sleep(5 * time.Millisecond)
		p.FeedString("def")
	}()

	buf := make([]byte, 6)
	if err := port.FullRead(p, operation.NewNullEnv(), buf, time.Second); err != nil {
		t.Fatalf("FullRead() error = %v", err)
	}
	if string(buf) != "abcdef" {
		t.Errorf("FullRead() = %q", buf)
	}

	if err := port.FullRead(p, operation.NewNullEnv(), buf, 20*time.Millisecond); err != port.ErrTimeout {
		t.Errorf("FullRead() on empty port error = %v, want ErrTimeout", err)
	}
}

func TestFullFlush(t *testing.T) {
	p := porttest.New(9600, nil)
	p.FeedString("stale bytes")

	if !port.FullFlush(p, operation.NewNullEnv(), 10*time.Millisecond, 100*time.Millisecond) {
		t.Fatal("FullFlush() = false")
	}
	if got := p.WaitRead(0); got != port.WaitTimeout {
		t.Errorf("data left after FullFlush, WaitRead() = %v", got)
	}
}

func TestWriteNMEA(t *testing.T) {
	p := porttest.New(4800, nil)
	if err := port.WriteNMEA(p, "PFLAC,S,PILOT,Max"); err != nil {
		t.Fatal(err)
	}
	if got := p.WrittenString(); got != "$PFLAC,S,PILOT,Max*3D\r\n" {
		t.Errorf("written = %q", got)
	}
}

func TestWriteFailure(t *testing.T) {
	p := porttest.New(4800, nil)
	p.FailWrites(true)

	if err := port.WriteByte(p, 0x06); err == nil {
		t.Error("WriteByte() succeeded on failing port")
	}
	if err := port.FullWrite(p, []byte("abc"), time.Second); err == nil {
		t.Error("FullWrite() succeeded on failing port")
	}
}

func TestRxThreadRouting(t *testing.T) {
	var received bytes.Buffer
	p := porttest.New(4800, port.HandlerFunc(func(data []byte) {
		received.Write(data)
	}))

	p.FeedString("buffered")
	if err := p.StartRxThread(); err != nil {
		t.Fatal(err)
	}
	if got := p.WaitRead(0); got != port.WaitTimeout {
		t.Error("StartRxThread() kept stale buffered data")
	}

	p.FeedString("$GPGGA")
	if received.String() != "$GPGGA" {
		t.Errorf("handler received %q", received.String())
	}

	p.StopRxThread()
	p.FeedString("reply")
	if received.String() != "$GPGGA" {
		t.Error("handler called after StopRxThread")
	}

	buf := make([]byte, 16)
	n, err := p.Read(buf)
	if err != nil || string(buf[:n]) != "reply" {
		t.Errorf("Read() = %q, %v", buf[:n], err)
	}
}

func TestStats(t *testing.T) {
	p := porttest.New(4800, nil)
	p.FeedString("abcd")
	port.WriteString(p, "xy")

	stats := p.Stats()
	if stats.BytesRead != 4 || stats.BytesWritten != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.State != "ready" {
		t.Errorf("Stats().State = %q", stats.State)
	}
	if stats.LastActivity.IsZero() {
		t.Error("LastActivity not recorded")
	}
}
