package encode

import "errors"

const (
	InitialBufferSize = 1000
	MaxBufferSize     = 100000000
)

var ErrBufferFull = errors.New("cannot allocate enough memory for result string")

// Buffer is an append-only byte buffer with a capacity limit.
type Buffer struct {
	buf     []byte
	initial int
	max     int
}

func NewBuffer() *Buffer {
	return NewBufferSize(InitialBufferSize, MaxBufferSize)
}

// NewBufferSize returns a buffer starting at initial bytes that refuses to
// grow past max bytes.
func NewBufferSize(initial, max int) *Buffer {
	if initial <= 0 {
		initial = 1
	}
	if max < initial {
		max = initial
	}
	return &Buffer{buf: make([]byte, 0, initial), initial: initial, max: max}
}

// Grow makes room for n more bytes, doubling the capacity until they fit.
func (b *Buffer) Grow(n int) error {
	need := len(b.buf) + n
	if need <= cap(b.buf) {
		return nil
	}
	if need > b.max || need < 0 {
		return ErrBufferFull
	}
	size := cap(b.buf)
	if size == 0 {
		size = b.initial
	}
	for size < need {
		size *= 2
	}
	if size > b.max {
		size = b.max
	}
	grown := make([]byte, len(b.buf), size)
	copy(grown, b.buf)
	b.buf = grown
	return nil
}

func (b *Buffer) Write(p []byte) (int, error) {
	if err := b.Grow(len(p)); err != nil {
		return 0, err
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *Buffer) WriteString(s string) (int, error) {
	if err := b.Grow(len(s)); err != nil {
		return 0, err
	}
	b.buf = append(b.buf, s...)
	return len(s), nil
}

func (b *Buffer) WriteByte(c byte) error {
	if err := b.Grow(1); err != nil {
		return err
	}
	b.buf = append(b.buf, c)
	return nil
}

func (b *Buffer) Bytes() []byte { return b.buf }
func (b *Buffer) String() string { return string(b.buf) }
func (b *Buffer) Len() int { return len(b.buf) }
func (b *Buffer) Cap() int { return cap(b.buf) }

// Truncate discards everything after the first n bytes.
func (b *Buffer) Truncate(n int) {
	if n >= 0 && n < len(b.buf) {
		b.buf = b.buf[:n]
	}
}

// Reset empties the buffer for the next request. Capacity grown past the
// initial size is released.
func (b *Buffer) Reset() {
	if cap(b.buf) > b.initial {
		b.buf = make([]byte, 0, b.initial)
		return
	}
	b.buf = b.buf[:0]
}
