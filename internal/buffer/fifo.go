// internal/buffer/fifo.go
package buffer

// Fifo is a bounded byte queue. Data is appended at the tail and
// consumed from the head; free space is reclaimed by shifting.
type Fifo struct {
	data []byte
	head int
	tail int
}

// NewFifo creates a fifo that holds at most capacity bytes
func NewFifo(capacity int) *Fifo {
	return &Fifo{data: make([]byte, capacity)}
}

// Len returns the number of buffered bytes
func (f *Fifo) Len() int {
	return f.tail - f.head
}

// IsEmpty reports whether no bytes are buffered
func (f *Fifo) IsEmpty() bool {
	return f.head == f.tail
}

// IsFull reports whether no more bytes can be appended
func (f *Fifo) IsFull() bool {
	return f.head == 0 && f.tail == len(f.data)
}

// Clear drops all buffered bytes
func (f *Fifo) Clear() {
	f.head = 0
	f.tail = 0
}

// Read returns the buffered bytes without consuming them
func (f *Fifo) Read() []byte {
	return f.data[f.head:f.tail]
}

// Consume drops n bytes from the head
func (f *Fifo) Consume(n int) {
	if n >= f.Len() {
		f.Clear()
		return
	}
	f.head += n
}

// Write returns the free space at the tail, shifting data to make room
func (f *Fifo) Write() []byte {
	f.shift()
	return f.data[f.tail:]
}

// Append marks n bytes of the slice returned by Write as filled
func (f *Fifo) Append(n int) {
	f.tail += n
}

// Push copies p into the fifo and returns how many bytes fit
func (f *Fifo) Push(p []byte) int {
	n := copy(f.Write(), p)
	f.Append(n)
	return n
}

// Pop copies buffered bytes into p and consumes them
func (f *Fifo) Pop(p []byte) int {
	n := copy(p, f.Read())
	f.Consume(n)
	return n
}

func (f *Fifo) shift() {
	if f.head == 0 {
		return
	}
	n := copy(f.data, f.data[f.head:f.tail])
	f.head = 0
	f.tail = n
}
