package volkslogger

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"glider-device-service/internal/bulk"
	"glider-device-service/internal/model"
	"glider-device-service/internal/operation"
	"glider-device-service/internal/port/porttest"
)

// simulator answers like a Volkslogger on the other end of a porttest.Port
type simulator struct {
	mu       sync.Mutex
	replies  map[Command][]byte
	packet   []byte
	inCmd    bool
	frame    []byte
	commands []Command
	params   [][2]byte
	acks     int
	onAck    func(n int)

	// stops answering ACKs once this many were served; zero never stops
	silentAfter int
}

func newSimulator(replies map[Command][]byte) *simulator {
	return &simulator{replies: replies}
}

func (s *simulator) onWrite(p *porttest.Port, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range data {
		switch {
		case s.inCmd:
			s.packet = append(s.packet, b)
			if len(s.packet) < 10 {
				continue
			}
			s.inCmd = false
			if bulk.CalculateCRC(s.packet) != 0 {
				p.Feed([]byte{0xff})
				continue
			}
			cmd := Command(s.packet[0])
			s.commands = append(s.commands, cmd)
			s.params = append(s.params, [2]byte{s.packet[1], s.packet[2]})
			p.Feed([]byte{0})
			if reply, ok := s.replies[cmd]; ok {
				s.frame = bulk.Encode(reply)
			}

		case b == bulk.ACK && len(s.frame) > 0:
			s.acks++
			if s.silentAfter == 0 || s.acks <= s.silentAfter {
				p.Feed(s.frame[:1])
				s.frame = s.frame[1:]
			}
			if s.onAck != nil {
				s.onAck(s.acks)
			}

		case b == 'R':
			p.FeedString("LLLL")

		case b == bulk.ENQ:
			s.inCmd = true
			s.packet = s.packet[:0]
		}
	}
}

func directoryEntry(year, month, day, sh, sm, ss, eh, em, es byte) []byte {
	entry := make([]byte, dirEntrySize)
	copy(entry, []byte{'F', year, month, day, sh, sm, ss, eh, em, es})
	return entry
}

func TestParseDirectory(t *testing.T) {
	var data []byte
	data = append(data, directoryEntry(12, 7, 14, 10, 30, 0, 15, 45, 10)...)
	data = append(data, make([]byte, dirEntrySize)...)
	data[dirEntrySize] = 'X'
	data = append(data, directoryEntry(12, 7, 15, 9, 5, 0, 11, 0, 0)...)
	data = append(data, 0xff)
	data = append(data, make([]byte, dirEntrySize-1)...)
	data = append(data, directoryEntry(1, 1, 1, 0, 0, 0, 0, 0, 0)...)

	flights := ParseDirectory(data)
	if len(flights) != 2 {
		t.Fatalf("ParseDirectory() returned %d flights, want 2", len(flights))
	}
	if got := flights[0].String(); got != "2012/07/14 10:30-15:45" {
		t.Errorf("flight 0 = %s", got)
	}
	if flights[1].Index != 2 {
		t.Errorf("flight 1 index = %d, want 2", flights[1].Index)
	}
}

func TestReadFlightList(t *testing.T) {
	directory := append(directoryEntry(12, 7, 14, 10, 30, 0, 15, 45, 10),
		// DLE and ETX inside the payload must survive stuffing
		directoryEntry(12, 0x10, 0x03, 0x10, 0x10, 0x02, 0x03, 0, 0)...)
	sim := newSimulator(map[Command][]byte{CmdDirectory: directory})

	p := porttest.New(9600, nil)
	p.OnWrite = sim.onWrite
	d := New(p, model.DeviceConfig{}, zap.NewNop())

	flights, err := d.ReadFlightList(operation.NewNullEnv())
	if err != nil {
		t.Fatalf("ReadFlightList() error = %v", err)
	}
	if len(flights) != 2 {
		t.Fatalf("got %d flights", len(flights))
	}
	if flights[0].String() != "2012/07/14 10:30-15:45" {
		t.Errorf("flight 0 = %s", flights[0])
	}
	if len(sim.commands) != 1 || sim.commands[0] != CmdDirectory {
		t.Errorf("commands = %v", sim.commands)
	}
}

func TestDownloadFlightSwitchesBaudRate(t *testing.T) {
	flight := bytes.Repeat([]byte{0x10, 0x02, 0x41, 0x03}, 64)
	sim := newSimulator(map[Command][]byte{CmdGetFlight: flight})

	p := porttest.New(9600, nil)
	p.OnWrite = sim.onWrite
	d := New(p, model.DeviceConfig{BulkBaudRate: 115200}, zap.NewNop())

	path := filepath.Join(t.TempDir(), "flight.vlb")
	err := d.DownloadFlight(model.RecordedFlightInfo{Index: 3}, path, operation.NewNullEnv())
	if err != nil {
		t.Fatalf("DownloadFlight() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, flight) {
		t.Error("downloaded data differs")
	}

	if sim.params[0] != [2]byte{3, 5} {
		t.Errorf("command params = %v, want [3 5]", sim.params[0])
	}
	history := p.BaudHistory()
	if len(history) != 2 || history[0] != 115200 || history[1] != 9600 {
		t.Errorf("baud history = %v", history)
	}
}

func TestReadBulkCancelRestoresBaudRate(t *testing.T) {
	tests := []struct {
		name        string
		silentAfter int
		cancelAt    func(n int, cancel context.CancelFunc)
	}{
		{
			name: "cancelled while data flows",
			cancelAt: func(n int, cancel context.CancelFunc) {
				if n == 5 {
					cancel()
				}
			},
		},
		{
			name:        "cancelled after the logger went silent",
			silentAfter: 3,
			cancelAt: func(n int, cancel context.CancelFunc) {
				if n == 4 {
					time.AfterFunc(100*time.Millisecond, cancel)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sim := newSimulator(map[Command][]byte{CmdGetFlight: bytes.Repeat([]byte{'x'}, 100)})
			sim.silentAfter = tt.silentAfter
			sim.onAck = func(n int) { tt.cancelAt(n, cancel) }

			p := porttest.New(9600, nil)
			p.OnWrite = sim.onWrite
			env := operation.NewContextEnv(ctx, nil, nil)

			if err := ConnectAndFlush(p, env, connectTimeout); err != nil {
				t.Fatal(err)
			}
			p.ResetWritten()

			_, err := SendCommandReadBulkAt(p, env, CmdGetFlight, 0, maxFlightSize, 38400)
			if !errors.Is(err, operation.ErrCancelled) {
				t.Fatalf("error = %v, want ErrCancelled", err)
			}
			if p.GetBaudrate() != 9600 {
				t.Errorf("baud rate = %d, want 9600 restored", p.GetBaudrate())
			}

			written := p.Written()
			if !bytes.HasSuffix(written, []byte{bulk.CAN, bulk.CAN, bulk.CAN}) {
				t.Errorf("transfer not aborted with CAN, wrote tail % x", written[len(written)-4:])
			}
		})
	}
}

func TestSendCommandRejected(t *testing.T) {
	p := porttest.New(9600, nil)
	p.OnWrite = func(p *porttest.Port, data []byte) {
		// answer the final CRC byte with an error code
		if len(p.Writes()) == 10 {
			p.Feed([]byte{0x03})
		}
	}

	err := SendCommand(p, operation.NewNullEnv(), CmdInfo, 0, 0)
	if !errors.Is(err, ErrRejected) {
		t.Errorf("SendCommand() error = %v, want ErrRejected", err)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	p := porttest.New(9600, nil)
	if err := Handshake(p, operation.NewNullEnv(), 50*time.Millisecond); !errors.Is(err, ErrHandshake) {
		t.Errorf("Handshake() error = %v, want ErrHandshake", err)
	}
}
