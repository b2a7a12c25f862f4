// internal/driver/volkslogger/protocol.go
package volkslogger

import (
	"errors"
	"fmt"
	"time"

	"glider-device-service/internal/bulk"
	"glider-device-service/internal/operation"
	"glider-device-service/internal/port"
)

// Command is a Volkslogger command interpreter opcode
type Command byte

const (
	CmdInfo      Command = 0x00
	CmdDirectory Command = 0x01
	CmdGetFlight Command = 0x02
)

const (
	charDelay     = 2 * time.Millisecond
	handshakeTry  = 500 * time.Millisecond
	commandAnswer = 4 * time.Second
	byteTimeout   = time.Second
	baudSettle    = 300 * time.Millisecond
)

var (
	ErrHandshake = errors.New("volkslogger handshake failed")
	ErrRejected  = errors.New("volkslogger rejected command")
)

// Reset sends n CAN bytes, which aborts any running command
func Reset(p port.Port, env operation.Env, n int) error {
	for i := 0; i < n; i++ {
		if err := port.WriteByte(p, bulk.CAN); err != nil {
			return err
		}
		env.Sleep(charDelay)
	}
	return nil
}

// Handshake sends 'R' until the logger answers 'L', then waits for four
// 'L' in total, all within timeout.
func Handshake(p port.Port, env operation.Env, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if err := port.WriteByte(p, 'R'); err != nil {
			return err
		}

		remaining := time.Until(deadline)
		if remaining < 0 {
			return ErrHandshake
		}
		if remaining > handshakeTry {
			remaining = handshakeTry
		}

		result := port.WaitForChar(p, 'L', env, remaining)
		if result == port.WaitReady {
			break
		}
		if result != port.WaitTimeout {
			return fmt.Errorf("%w: %v", ErrHandshake, port.WaitResultError(result))
		}
	}

	for count := 1; count < 4; count++ {
		remaining := time.Until(deadline)
		if remaining < 0 {
			return ErrHandshake
		}
		if result := port.WaitForChar(p, 'L', env, remaining); result != port.WaitReady {
			return fmt.Errorf("%w: %v", ErrHandshake, port.WaitResultError(result))
		}
	}
	return nil
}

// Connect resets the logger and performs the handshake
func Connect(p port.Port, env operation.Env, timeout time.Duration) error {
	if err := Reset(p, env, 10); err != nil {
		return err
	}
	return Handshake(p, env, timeout)
}

// ConnectAndFlush connects and discards whatever the logger sent since
func ConnectAndFlush(p port.Port, env operation.Env, timeout time.Duration) error {
	p.Flush()

	if err := Connect(p, env, timeout); err != nil {
		return err
	}
	if !port.FullFlush(p, env, 50*time.Millisecond, 300*time.Millisecond) {
		return port.ErrFailed
	}
	return nil
}

func sendWithCRC(p port.Port, data []byte) error {
	if err := port.FullWrite(p, data, 2*time.Second); err != nil {
		return err
	}

	crc := bulk.CalculateCRC(data)
	if err := port.WriteByte(p, byte(crc>>8)); err != nil {
		return err
	}
	return port.WriteByte(p, byte(crc))
}

// SendCommand sends one command packet and waits for the logger to
// confirm it
func SendCommand(p port.Port, env operation.Env, cmd Command, param1, param2 byte) error {
	if !port.FullFlush(p, env, 20*time.Millisecond, 100*time.Millisecond) {
		if env.IsCancelled() {
			return operation.ErrCancelled
		}
		return port.ErrFailed
	}

	if err := Reset(p, env, 6); err != nil {
		return err
	}

	if err := port.WriteByte(p, bulk.ENQ); err != nil {
		return err
	}
	env.Sleep(charDelay)

	packet := []byte{byte(cmd), param1, param2, 0, 0, 0, 0, 0}
	if err := sendWithCRC(p, packet); err != nil {
		return err
	}

	if err := port.WaitResultError(port.WaitReadEnv(p, env, commandAnswer)); err != nil {
		return err
	}
	answer, err := port.GetChar(p)
	if err != nil {
		return err
	}
	if answer != 0 {
		return fmt.Errorf("%w: command 0x%02x answered 0x%02x", ErrRejected, byte(cmd), answer)
	}
	return nil
}

// baudRateIndex maps a baud rate to the logger's rate code
func baudRateIndex(baud uint) (byte, bool) {
	switch baud {
	case 9600:
		return 1, true
	case 19200:
		return 2, true
	case 38400:
		return 3, true
	case 57600:
		return 4, true
	case 115200:
		return 5, true
	}
	return 0, false
}

// SendCommandSwitchBaudRate sends a command that makes the logger answer
// at baud, then switches the port
func SendCommandSwitchBaudRate(p port.Port, env operation.Env, cmd Command, param1 byte, baud uint) error {
	index, ok := baudRateIndex(baud)
	if !ok {
		return fmt.Errorf("baud rate %d not supported by volkslogger", baud)
	}
	if err := SendCommand(p, env, cmd, param1, index); err != nil {
		return err
	}
	return p.SetBaudrate(baud)
}

// abortBulk tells the logger to stop a running bulk transfer. The sleep
// is detached because the environment is already cancelled.
func abortBulk(p port.Port) error {
	time.Sleep(10 * time.Millisecond)
	port.WriteString(p, string([]byte{bulk.CAN, bulk.CAN, bulk.CAN}))
	return operation.ErrCancelled
}

// ReadBulk receives one bulk frame, requesting every byte with an ACK.
// It returns the payload without the CRC.
func ReadBulk(p port.Port, env operation.Env, maxLength int) ([]byte, error) {
	decoder := bulk.NewDecoder(maxLength + 2)

	for {
		if err := port.WriteByte(p, bulk.ACK); err != nil {
			return nil, err
		}
		result := port.WaitReadEnv(p, env, byteTimeout)
		if result == port.WaitCancelled || env.IsCancelled() {
			return nil, abortBulk(p)
		}
		if err := port.WaitResultError(result); err != nil {
			return nil, err
		}

		c, err := port.GetChar(p)
		if err != nil {
			return nil, err
		}

		if env.IsCancelled() {
			return nil, abortBulk(p)
		}

		done, err := decoder.Feed(c)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	env.Sleep(100 * time.Millisecond)

	payload, err := decoder.Payload()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), payload...), nil
}

// SendCommandReadBulk sends a command and receives its bulk answer
func SendCommandReadBulk(p port.Port, env operation.Env, cmd Command, maxLength int) ([]byte, error) {
	if err := SendCommand(p, env, cmd, 0, 0); err != nil {
		return nil, err
	}
	return ReadBulk(p, env, maxLength)
}

// SendCommandReadBulkAt receives the bulk answer at baud. The original
// baud rate is restored on every path, including cancellation.
func SendCommandReadBulkAt(p port.Port, env operation.Env, cmd Command, param1 byte, maxLength int, baud uint) ([]byte, error) {
	oldBaud := p.GetBaudrate()

	if err := SendCommandSwitchBaudRate(p, env, cmd, param1, baud); err != nil {
		return nil, err
	}
	defer p.SetBaudrate(oldBaud)

	// verified experimentally
	if !env.Sleep(baudSettle) {
		return nil, operation.ErrCancelled
	}

	return ReadBulk(p, env, maxLength)
}
