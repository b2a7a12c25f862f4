// internal/buffer/line_splitter.go
package buffer

import "bytes"

// DefaultMaxLineLength bounds one reassembled line
const DefaultMaxLineLength = 256

// LineSplitter reassembles newline terminated lines from arbitrary chunks.
// Carriage returns and NUL bytes are stripped; a line that outgrows the
// buffer is discarded up to the next newline.
type LineSplitter struct {
	fifo      *Fifo
	overflown bool
}

// NewLineSplitter creates a splitter for lines up to maxLength bytes
func NewLineSplitter(maxLength int) *LineSplitter {
	if maxLength <= 0 {
		maxLength = DefaultMaxLineLength
	}
	return &LineSplitter{fifo: NewFifo(maxLength)}
}

// Feed appends data and calls onLine for every completed line
func (s *LineSplitter) Feed(data []byte, onLine func(line string)) {
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			s.push(data)
			return
		}

		s.push(data[:i])
		if !s.overflown {
			if line := s.take(); line != "" {
				onLine(line)
			}
		}
		s.fifo.Clear()
		s.overflown = false
		data = data[i+1:]
	}
}

// Reset drops a partially received line
func (s *LineSplitter) Reset() {
	s.fifo.Clear()
	s.overflown = false
}

func (s *LineSplitter) push(p []byte) {
	for _, b := range p {
		if b == '\r' || b == 0 {
			continue
		}
		if s.overflown {
			continue
		}
		if s.fifo.Push([]byte{b}) == 0 {
			s.overflown = true
		}
	}
}

func (s *LineSplitter) take() string {
	return string(s.fifo.Read())
}
